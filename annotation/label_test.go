package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistinctLabels(t *testing.T) {
	records := []Record{
		{Label: "mass", Color: "#FF0000"},
		{Label: "calc", Color: "#00FF00"},
		{Label: "mass", Color: "#0000FF"},
	}
	labels := DistinctLabels(records)
	assert.Equal(t, []Label{
		{Name: "mass", Color: "#FF0000"},
		{Name: "calc", Color: "#00FF00"},
	}, labels)
	assert.Empty(t, DistinctLabels(nil))
}

func TestIsVisible(t *testing.T) {
	visibility := map[string]bool{"mass": false, "calc": true}
	assert.Equal(t, false, IsVisible(visibility, "mass"))
	assert.Equal(t, true, IsVisible(visibility, "calc"))
	assert.Equal(t, true, IsVisible(visibility, "other"))
	assert.Equal(t, true, IsVisible(nil, "other"))
}
