package study

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"
	"go.uber.org/zap"
)

// writeMammogram writes a 3x2 MLO image with pixel values 0..500 and the
// given photometric interpretation.
func writeMammogram(t *testing.T, photometric string) string {
	t.Helper()
	codeMeaning := mustElement(t, tagCodeMeaning, []string{"medio-lateral oblique"})
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.1.2"}),
		mustElement(t, tag.MediaStorageSOPInstanceUID, []string{"1.2.3.4.5.6.7"}),
		mustElement(t, tag.TransferSyntaxUID, []string{uid.ExplicitVRLittleEndian}),
		mustElement(t, tagViewCodeSequence, [][]*dicom.Element{{codeMeaning}}),
		mustElement(t, tagImageLaterality, []string{"R"}),
		mustElement(t, tagPhotometric, []string{photometric}),
		mustElement(t, tag.Rows, []int{2}),
		mustElement(t, tag.Columns, []int{3}),
		mustElement(t, tag.BitsAllocated, []int{16}),
		mustElement(t, tag.NumberOfFrames, []string{"1"}),
		mustElement(t, tag.SamplesPerPixel, []int{1}),
		mustElement(t, tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{
				NativeData: frame.NativeFrame{
					BitsPerSample: 16,
					Rows:          2,
					Cols:          3,
					Data:          [][]int{{0}, {100}, {200}, {300}, {400}, {500}},
				},
			}},
		}),
	}}

	path := filepath.Join(t.TempDir(), "1-1.dcm")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, dicom.Write(f, ds))
	return path
}

func TestReadViewFromFile(t *testing.T) {
	reader := NewDICOMReader(zap.NewNop())
	view, err := reader.ReadView(writeMammogram(t, "MONOCHROME2"))
	require.NoError(t, err)
	assert.Equal(t, true, view.IsMLO)
	assert.Equal(t, "R", view.Laterality)
	assert.Equal(t, "medio-lateral oblique", view.CodeMeaning)
}

func TestReadImageFromFile(t *testing.T) {
	reader := NewDICOMReader(zap.NewNop())
	img, err := reader.ReadImage(writeMammogram(t, "MONOCHROME2"))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(0), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(2, 1).Y)
}

func TestReadImageMonochrome1(t *testing.T) {
	reader := NewDICOMReader(zap.NewNop())
	img, err := reader.ReadImage(writeMammogram(t, "MONOCHROME1"))
	require.NoError(t, err)

	gray := img.(*image.Gray)
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(2, 1).Y)
}

func TestToDisplay(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 100})
	img.SetGray16(1, 0, color.Gray16{Y: 600})
	img.SetGray16(2, 0, color.Gray16{Y: 1100})

	out := ToDisplay(img, false)
	assert.Equal(t, image.Rect(0, 0, 3, 1), out.Bounds())
	assert.Equal(t, uint8(0), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(128), out.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(2, 0).Y)

	inverted := ToDisplay(img, true)
	assert.Equal(t, uint8(255), inverted.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), inverted.GrayAt(2, 0).Y)
}

func TestToDisplayFlatImage(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 2, 2))
	out := ToDisplay(img, false)
	assert.Equal(t, uint8(0), out.GrayAt(1, 1).Y)
}

func TestReadImageRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dcm")
	require.NoError(t, os.WriteFile(path, []byte("not a dicom file"), 0644))

	reader := NewDICOMReader(zap.NewNop())
	_, err := reader.ReadImage(path)
	assert.Error(t, err)
	_, err = reader.ReadView(path)
	assert.Error(t, err)
}
