package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"tompei-viewer/constants"
)

// Record is one polygon annotation ready for drawing.
type Record struct {
	XCoords []float64 `json:"x_coords"`
	YCoords []float64 `json:"y_coords"`
	Label   string    `json:"label"`
	Color   string    `json:"color"`
}

type Point2D struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// rawAnnotation mirrors one element of the sidecar JSON array. CgPoints is a
// pointer so that a missing list can be told apart from an empty one.
type rawAnnotation struct {
	CgPoints *[]Point2D `json:"cgPoints"`
	Label    *string    `json:"label"`
	Color    *string    `json:"color"`
}

var errMissingCoordinate = errors.New("point is missing a numeric x or y")

// Load parses the annotation file at path. Elements without cgPoints are
// skipped. On any error the result is empty.
func Load(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return []Record{}, fmt.Errorf("read annotation file: %w", err)
	}
	records, err := Parse(b)
	if err != nil {
		return []Record{}, fmt.Errorf("parse annotation file %s: %w", path, err)
	}
	return records, nil
}

func Parse(data []byte) ([]Record, error) {
	raws := make([]rawAnnotation, 0)
	if err := json.Unmarshal(data, &raws); err != nil {
		return []Record{}, err
	}

	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		if raw.CgPoints == nil {
			continue
		}
		record, err := raw.toRecord()
		if err != nil {
			return []Record{}, fmt.Errorf("annotation %d: %w", i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (raw rawAnnotation) toRecord() (Record, error) {
	points := *raw.CgPoints
	record := Record{
		XCoords: make([]float64, 0, len(points)),
		YCoords: make([]float64, 0, len(points)),
		Label:   constants.DefaultLabel,
		Color:   constants.DefaultColor,
	}
	for _, p := range points {
		if p.X == nil || p.Y == nil {
			return Record{}, errMissingCoordinate
		}
		record.XCoords = append(record.XCoords, *p.X)
		record.YCoords = append(record.YCoords, *p.Y)
	}
	if raw.Label != nil {
		if label := strings.TrimSpace(*raw.Label); label != "" {
			record.Label = label
		}
	}
	if raw.Color != nil && strings.TrimSpace(*raw.Color) != "" {
		record.Color = strings.TrimSpace(*raw.Color)
	}
	return record, nil
}

// Closed returns the coordinates with the first point repeated at the end.
func (record Record) Closed() ([]float64, []float64) {
	n := len(record.XCoords)
	if n == 0 || n != len(record.YCoords) {
		return nil, nil
	}
	xs := append(append(make([]float64, 0, n+1), record.XCoords...), record.XCoords[0])
	ys := append(append(make([]float64, 0, n+1), record.YCoords...), record.YCoords[0])
	return xs, ys
}

func (record Record) IsPolygon() bool {
	return len(record.XCoords) > 0 && len(record.XCoords) == len(record.YCoords)
}

func (record *Record) String() string {
	b, _ := json.Marshal(record)
	return string(b)
}
