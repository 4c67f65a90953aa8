package study

import (
	"encoding/json"
	"sort"
)

// Series is one row of the TCIA series metadata table.
type Series struct {
	SeriesInstanceUID string `json:"SeriesInstanceUID"`
	StudyInstanceUID  string `json:"StudyInstanceUID,omitempty"`
	PatientID         string `json:"PatientID"`
	Collection        string `json:"Collection,omitempty"`
	Modality          string `json:"Modality,omitempty"`
	BodyPartExamined  string `json:"BodyPartExamined,omitempty"`
	SeriesDescription string `json:"SeriesDescription,omitempty"`
	ImageCount        int    `json:"ImageCount,omitempty"`
}

func (series *Series) String() string {
	b, _ := json.Marshal(series)
	return string(b)
}

// SeriesTable indexes series rows by patient id.
type SeriesTable struct {
	rows      []Series
	byPatient map[string][]Series
}

func NewSeriesTable(rows []Series) *SeriesTable {
	table := &SeriesTable{
		rows:      rows,
		byPatient: make(map[string][]Series),
	}
	for _, row := range rows {
		table.byPatient[row.PatientID] = append(table.byPatient[row.PatientID], row)
	}
	return table
}

func (table *SeriesTable) Len() int {
	return len(table.rows)
}

// ForPatient returns the rows of patientID in table order.
func (table *SeriesTable) ForPatient(patientID string) []Series {
	return table.byPatient[patientID]
}

// SeriesUIDs returns the distinct series uids of patientID, sorted.
func (table *SeriesTable) SeriesUIDs(patientID string) []string {
	seen := make(map[string]bool)
	uids := make([]string, 0)
	for _, row := range table.byPatient[patientID] {
		if row.SeriesInstanceUID == "" || seen[row.SeriesInstanceUID] {
			continue
		}
		seen[row.SeriesInstanceUID] = true
		uids = append(uids, row.SeriesInstanceUID)
	}
	sort.Strings(uids)
	return uids
}
