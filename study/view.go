package study

import (
	"errors"
	"fmt"
	"strings"

	"tompei-viewer/constants"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
)

var (
	tagViewCodeSequence = tag.Tag{Group: 0x0054, Element: 0x0220}
	tagCodeMeaning      = tag.Tag{Group: 0x0008, Element: 0x0104}
	tagImageLaterality  = tag.Tag{Group: 0x0020, Element: 0x0062}
	tagLaterality       = tag.Tag{Group: 0x0020, Element: 0x0060}
	tagPhotometric      = tag.Tag{Group: 0x0028, Element: 0x0004}
)

// View describes the projection of one DICOM image.
type View struct {
	CodeMeaning string `json:"code_meaning,omitempty"`
	Laterality  string `json:"laterality,omitempty"`
	IsMLO       bool   `json:"is_mlo"`
}

// IsMLOView reports whether the first View Code Sequence item names the
// medio-lateral oblique projection. Malformed metadata is logged and counts
// as not matching.
func IsMLOView(ds dicom.Dataset, logger *zap.Logger) (isMLO bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Error checking MLO view", zap.Any("panic", r))
			isMLO = false
		}
	}()

	meaning, err := viewCodeMeaning(ds)
	if err != nil {
		if !errors.Is(err, dicom.ErrorElementNotFound) {
			logger.Warn("Error checking MLO view", zap.Error(err))
		}
		return false
	}
	return matchesMLO(meaning)
}

func matchesMLO(meaning string) bool {
	meaning = strings.ToLower(meaning)
	return strings.Contains(meaning, constants.ViewMLO) || strings.Contains(meaning, constants.ViewMLOShort)
}

// viewCodeMeaning returns the Code Meaning of the first View Code Sequence
// item, or "" when the sequence is empty.
func viewCodeMeaning(ds dicom.Dataset) (string, error) {
	elem, err := ds.FindElementByTag(tagViewCodeSequence)
	if err != nil {
		return "", err
	}
	if elem.Value == nil || elem.Value.ValueType() != dicom.Sequences {
		return "", fmt.Errorf("view code sequence has unexpected value %v", elem.Value)
	}
	items, ok := elem.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return "", fmt.Errorf("view code sequence items have type %T", elem.Value.GetValue())
	}
	if len(items) == 0 || items[0] == nil {
		return "", nil
	}
	elems, ok := items[0].GetValue().([]*dicom.Element)
	if !ok {
		return "", fmt.Errorf("view code item has type %T", items[0].GetValue())
	}
	for _, e := range elems {
		if e == nil || e.Tag != tagCodeMeaning {
			continue
		}
		return firstString(e)
	}
	return "", nil
}

// ReadView classifies a parsed dataset.
func ReadView(ds dicom.Dataset, logger *zap.Logger) View {
	view := View{IsMLO: IsMLOView(ds, logger)}
	if meaning, err := viewCodeMeaning(ds); err == nil {
		view.CodeMeaning = meaning
	}
	for _, t := range []tag.Tag{tagImageLaterality, tagLaterality} {
		if s, err := stringTag(ds, t); err == nil && s != "" {
			view.Laterality = strings.ToUpper(s)
			break
		}
	}
	return view
}

func stringTag(ds dicom.Dataset, t tag.Tag) (string, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return "", err
	}
	return firstString(elem)
}

func firstString(elem *dicom.Element) (string, error) {
	if elem.Value == nil || elem.Value.ValueType() != dicom.Strings {
		return "", fmt.Errorf("tag %s is not a string value", elem.Tag)
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok {
		return "", fmt.Errorf("tag %s has type %T", elem.Tag, elem.Value.GetValue())
	}
	if len(values) == 0 {
		return "", nil
	}
	return strings.TrimSpace(values[0]), nil
}
