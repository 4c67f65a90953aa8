package annotation

// Label is a legend entry: the first color seen for a label wins.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DistinctLabels returns the labels of records in order of first appearance.
func DistinctLabels(records []Record) []Label {
	seen := make(map[string]bool)
	labels := make([]Label, 0)
	for _, record := range records {
		if seen[record.Label] {
			continue
		}
		seen[record.Label] = true
		labels = append(labels, Label{Name: record.Label, Color: record.Color})
	}
	return labels
}

// IsVisible reads visibility for label, defaulting to shown.
func IsVisible(visibility map[string]bool, label string) bool {
	shown, found := visibility[label]
	if !found {
		return true
	}
	return shown
}
