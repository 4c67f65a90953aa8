package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"tompei-viewer/annotation"
	"tompei-viewer/constants"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var ErrEmptyImage = errors.New("image has no pixels")

// ImageDecoder turns a DICOM file into a display raster.
type ImageDecoder interface {
	ReadImage(path string) (image.Image, error)
}

type LegendEntry struct {
	Label   string `json:"label"`
	Color   string `json:"color"`
	Visible bool   `json:"visible"`
}

// Figure is a rendered, PNG encoded overlay.
type Figure struct {
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	Legend   []LegendEntry       `json:"legend"`
	Polygons []annotation.Record `json:"polygons"`
	Warning  string              `json:"warning,omitempty"`
	PNG      []byte              `json:"png"`
}

type Renderer struct {
	strokeWidth float64
	fillAlpha   float64

	fontOnce sync.Once
	font     *truetype.Font
	fontErr  error
}

func NewRenderer(strokeWidth, fillAlpha float64) *Renderer {
	if strokeWidth <= 0 {
		strokeWidth = constants.DefaultStrokeWidth
	}
	if fillAlpha <= 0 || fillAlpha > 1 {
		fillAlpha = constants.DefaultFillAlpha
	}
	return &Renderer{strokeWidth: strokeWidth, fillAlpha: fillAlpha}
}

// RenderFile decodes dicomPath and overlays the annotations of
// annotationPath. Decode failures are returned; an unreadable annotation
// file yields a plain figure with Warning set. A nil visibility map draws
// no overlays.
func (renderer *Renderer) RenderFile(decoder ImageDecoder, dicomPath, annotationPath string, visibility map[string]bool) (*Figure, error) {
	img, err := decoder.ReadImage(dicomPath)
	if err != nil {
		return nil, err
	}

	var (
		records []annotation.Record
		warning string
	)
	if annotationPath != "" && visibility != nil {
		records, err = annotation.Load(annotationPath)
		if err != nil {
			warning = fmt.Sprintf("Error reading annotation file: %s", err)
		}
	}

	figure, err := renderer.Render(img, records, visibility)
	if err != nil {
		return nil, err
	}
	figure.Warning = warning
	return figure, nil
}

// Render draws img at native resolution with the visible polygons of
// records and a legend listing every label.
func (renderer *Renderer) Render(img image.Image, records []annotation.Record, visibility map[string]bool) (*Figure, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}

	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)
	dc := gg.NewContextForRGBA(canvas)

	figure := &Figure{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Legend:   make([]LegendEntry, 0),
		Polygons: make([]annotation.Record, 0),
	}

	for _, record := range records {
		if !annotation.IsVisible(visibility, record.Label) || !record.IsPolygon() {
			continue
		}
		renderer.drawPolygon(dc, record)
		figure.Polygons = append(figure.Polygons, record)
	}

	for _, label := range annotation.DistinctLabels(records) {
		figure.Legend = append(figure.Legend, LegendEntry{
			Label:   label.Name,
			Color:   label.Color,
			Visible: annotation.IsVisible(visibility, label.Name),
		})
	}
	if len(figure.Legend) > 0 {
		if err := renderer.drawLegend(dc, figure.Legend); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	figure.PNG = buf.Bytes()
	return figure, nil
}

func (renderer *Renderer) drawPolygon(dc *gg.Context, record annotation.Record) {
	xs, ys := record.Closed()
	c := parseColor(record.Color)

	dc.NewSubPath()
	dc.MoveTo(xs[0], ys[0])
	for i := 1; i < len(xs); i++ {
		dc.LineTo(xs[i], ys[i])
	}
	dc.ClosePath()

	dc.SetRGBA(c.R, c.G, c.B, renderer.fillAlpha)
	dc.FillPreserve()
	dc.SetRGBA(c.R, c.G, c.B, 1)
	dc.SetLineWidth(renderer.strokeWidth)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.Stroke()
}

func (renderer *Renderer) drawLegend(dc *gg.Context, entries []LegendEntry) error {
	size := math.Max(14, float64(dc.Width())/60)
	face, err := renderer.face(size)
	if err != nil {
		return err
	}
	dc.SetFontFace(face)

	pad := size * 0.5
	patch := size
	lineHeight := size * 1.5

	titleWidth, _ := dc.MeasureString(constants.LegendTitle)
	textWidth := 0.0
	for _, entry := range entries {
		if w, _ := dc.MeasureString(entry.Label); w > textWidth {
			textWidth = w
		}
	}
	boxWidth := math.Max(titleWidth, patch+pad+textWidth) + 2*pad
	boxHeight := pad + lineHeight*float64(len(entries)+1) + pad

	dc.DrawRectangle(0, 0, boxWidth, boxHeight)
	dc.SetRGBA(1, 1, 1, 0.8)
	dc.FillPreserve()
	dc.SetRGBA(0.8, 0.8, 0.8, 1)
	dc.SetLineWidth(1)
	dc.Stroke()

	dc.SetRGB(0, 0, 0)
	dc.DrawString(constants.LegendTitle, pad, pad+size)

	for i, entry := range entries {
		top := pad + lineHeight*float64(i+1) + (lineHeight-patch)/2
		c := parseColor(entry.Color)

		dc.DrawRectangle(pad, top, patch, patch)
		dc.SetRGBA(c.R, c.G, c.B, renderer.fillAlpha)
		dc.FillPreserve()
		dc.SetRGBA(c.R, c.G, c.B, 1)
		dc.SetLineWidth(1)
		dc.Stroke()

		dc.SetRGB(0, 0, 0)
		dc.DrawString(entry.Label, pad+patch+pad, top+patch*0.85)
	}
	return nil
}

func (renderer *Renderer) face(size float64) (font.Face, error) {
	renderer.fontOnce.Do(func() {
		renderer.font, renderer.fontErr = truetype.Parse(goregular.TTF)
	})
	if renderer.fontErr != nil {
		return nil, renderer.fontErr
	}
	return truetype.NewFace(renderer.font, &truetype.Options{Size: size}), nil
}

// parseColor reads a #RRGGBB or #RGB string, falling back to red.
func parseColor(hex string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		c, _ = colorful.Hex(constants.DefaultColor)
	}
	return c
}
