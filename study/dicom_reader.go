package study

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
)

var ErrNoPixelData = errors.New("dicom file has no pixel frames")

// DICOMReader decodes DICOM files from disk.
type DICOMReader struct {
	logger *zap.Logger
}

func NewDICOMReader(logger *zap.Logger) *DICOMReader {
	return &DICOMReader{logger: logger}
}

// ReadView parses only the metadata of path and classifies its view.
func (reader *DICOMReader) ReadView(path string) (View, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return View{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return ReadView(ds, reader.logger), nil
}

// ReadImage decodes the first frame of path into an 8-bit grayscale raster,
// min/max windowed and inverted for MONOCHROME1.
func (reader *DICOMReader) ReadImage(path string) (image.Image, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPixelData)
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPixelData)
	}
	fr := info.Frames[0]
	img, err := fr.GetImage()
	if err != nil {
		return nil, fmt.Errorf("decode frame of %s: %w", path, err)
	}

	photometric, _ := stringTag(ds, tagPhotometric)
	return ToDisplay(img, strings.EqualFold(photometric, "MONOCHROME1")), nil
}

// ToDisplay maps img onto the full 8-bit range using its own min and max.
func ToDisplay(img image.Image, invert bool) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	lum := func(x, y int) uint16 {
		return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
	}

	minv, maxv := uint16(0xFFFF), uint16(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := lum(x, y)
			if v < minv {
				minv = v
			}
			if v > maxv {
				maxv = v
			}
		}
	}
	span := float64(maxv) - float64(minv)
	if span <= 0 {
		span = 1
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			l := (float64(lum(x, y)) - float64(minv)) / span
			if invert {
				l = 1 - l
			}
			out.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: uint8(l*255 + 0.5)})
		}
	}
	return out
}
