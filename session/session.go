package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"tompei-viewer/utils"

	"github.com/google/uuid"
)

var ErrUnknownPatient = errors.New("unknown patient id")

// ImageSet pairs each qualifying DICOM file with its annotation file by index.
type ImageSet struct {
	Images      []string `json:"images"`
	Annotations []string `json:"annotations"`
}

func (set ImageSet) Len() int {
	return len(set.Images)
}

// State is everything a viewer session remembers between requests. It is
// loaded, passed through the orchestrator and saved on every request.
type State struct {
	ID            string                     `json:"id"`
	Created       int64                      `json:"created"`
	CurrentIndex  int                        `json:"current_index"`
	Downloaded    map[string]bool            `json:"downloaded"`
	PatientImages map[string]ImageSet        `json:"patient_images"`
	Toggles       map[string]map[string]bool `json:"toggles"`
}

func NewState() *State {
	return &State{
		ID:            uuid.New().String(),
		Created:       time.Now().UnixNano() / int64(time.Millisecond),
		Downloaded:    make(map[string]bool),
		PatientImages: make(map[string]ImageSet),
		Toggles:       make(map[string]map[string]bool),
	}
}

// Clone returns a deep copy with every map allocated.
func (state State) Clone() State {
	clone := state
	clone.Downloaded = make(map[string]bool, len(state.Downloaded))
	for k, v := range state.Downloaded {
		clone.Downloaded[k] = v
	}
	clone.PatientImages = make(map[string]ImageSet, len(state.PatientImages))
	for k, v := range state.PatientImages {
		clone.PatientImages[k] = ImageSet{
			Images:      append([]string(nil), v.Images...),
			Annotations: append([]string(nil), v.Annotations...),
		}
	}
	clone.Toggles = make(map[string]map[string]bool, len(state.Toggles))
	for patientID, toggles := range state.Toggles {
		clone.Toggles[patientID] = make(map[string]bool, len(toggles))
		for label, shown := range toggles {
			clone.Toggles[patientID][label] = shown
		}
	}
	return clone
}

// Clamp keeps CurrentIndex inside a list of n patients.
func (state *State) Clamp(n int) {
	if n <= 0 {
		state.CurrentIndex = 0
		return
	}
	state.CurrentIndex = utils.Clamp(state.CurrentIndex, 0, n-1)
}

func (state *State) Prev(n int) {
	state.CurrentIndex--
	state.Clamp(n)
}

func (state *State) Next(n int) {
	state.CurrentIndex++
	state.Clamp(n)
}

// Select moves to patientID. An unknown id leaves the state unchanged.
func (state *State) Select(patientIDs []string, patientID string) error {
	i, found := utils.FindInSlice(patientIDs, patientID)
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownPatient, patientID)
	}
	state.CurrentIndex = i
	return nil
}

// EnsureLabels adds labels not seen before for patientID, shown by default.
func (state *State) EnsureLabels(patientID string, labels []string) {
	toggles := state.toggles(patientID)
	for _, label := range labels {
		if _, found := toggles[label]; !found {
			toggles[label] = true
		}
	}
}

// ApplyToggles sets every label in labels to whether it appears in shown.
func (state *State) ApplyToggles(patientID string, labels, shown []string) {
	toggles := state.toggles(patientID)
	for _, label := range labels {
		_, on := utils.FindInSlice(shown, label)
		toggles[label] = on
	}
}

// Visibility returns a copy of the toggles of patientID, never nil.
func (state *State) Visibility(patientID string) map[string]bool {
	visibility := make(map[string]bool)
	for label, shown := range state.Toggles[patientID] {
		visibility[label] = shown
	}
	return visibility
}

// Labels returns the toggled labels of patientID in lexical order.
func (state *State) Labels(patientID string) []string {
	labels := make([]string, 0, len(state.Toggles[patientID]))
	for label := range state.Toggles[patientID] {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func (state *State) toggles(patientID string) map[string]bool {
	if state.Toggles == nil {
		state.Toggles = make(map[string]map[string]bool)
	}
	toggles, found := state.Toggles[patientID]
	if !found {
		toggles = make(map[string]bool)
		state.Toggles[patientID] = toggles
	}
	return toggles
}

func (state *State) String() string {
	b, err := json.Marshal(state)
	if err != nil {
		return "{}"
	}
	return string(b)
}
