package study

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func mustElement(t *testing.T, tg tag.Tag, data interface{}) *dicom.Element {
	t.Helper()
	elem, err := dicom.NewElement(tg, data)
	require.NoError(t, err)
	return elem
}

func viewDataset(t *testing.T, meaning string) dicom.Dataset {
	t.Helper()
	codeMeaning := mustElement(t, tagCodeMeaning, []string{meaning})
	seq := mustElement(t, tagViewCodeSequence, [][]*dicom.Element{{codeMeaning}})
	laterality := mustElement(t, tagImageLaterality, []string{"l"})
	return dicom.Dataset{Elements: []*dicom.Element{seq, laterality}}
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return zap.New(core), logs
}

func TestIsMLOView(t *testing.T) {
	logger, logs := observedLogger()

	assert.Equal(t, true, IsMLOView(viewDataset(t, "Medio-Lateral Oblique"), logger))
	assert.Equal(t, true, IsMLOView(viewDataset(t, "MLO"), logger))
	assert.Equal(t, true, IsMLOView(viewDataset(t, "medio-lateral oblique exaggerated"), logger))
	assert.Equal(t, false, IsMLOView(viewDataset(t, "Cranio-Caudal"), logger))
	assert.Equal(t, 0, logs.Len())
}

func TestIsMLOViewMissingSequence(t *testing.T) {
	logger, logs := observedLogger()

	assert.Equal(t, false, IsMLOView(dicom.Dataset{}, logger))
	assert.Equal(t, 0, logs.Len(), "a missing sequence is not a warning")
}

func TestIsMLOViewEmptySequence(t *testing.T) {
	logger, _ := observedLogger()
	seq := mustElement(t, tagViewCodeSequence, [][]*dicom.Element{})
	assert.Equal(t, false, IsMLOView(dicom.Dataset{Elements: []*dicom.Element{seq}}, logger))
}

func TestIsMLOViewMalformed(t *testing.T) {
	logger, logs := observedLogger()

	value, err := dicom.NewValue([]string{"Medio-Lateral Oblique"})
	require.NoError(t, err)
	ds := dicom.Dataset{Elements: []*dicom.Element{{Tag: tagViewCodeSequence, Value: value}}}

	assert.Equal(t, false, IsMLOView(ds, logger))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "Error checking MLO view", logs.All()[0].Message)
}

func TestReadView(t *testing.T) {
	logger, _ := observedLogger()
	view := ReadView(viewDataset(t, "Medio-Lateral Oblique"), logger)
	assert.Equal(t, View{CodeMeaning: "Medio-Lateral Oblique", Laterality: "L", IsMLO: true}, view)
}
