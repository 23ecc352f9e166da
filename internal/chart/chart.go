// Package chart renders the progress counters as a PNG bar chart.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"os"
	"strconv"

	"github.com/ashureev/bateson-coach/internal/domain"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const (
	defaultWidth  = 640
	defaultHeight = 400

	marginLeft   = 64.0
	marginRight  = 24.0
	marginTop    = 56.0
	marginBottom = 64.0
)

// Labels is the chart copy. It is only drawn with a TrueType font; the bitmap
// fallback font is ASCII-only.
type Labels struct {
	Title  string
	XLabel string
	YLabel string
}

// fallbackLabels are used with the bitmap font.
var fallbackLabels = Labels{
	Title:  "Learning progress",
	XLabel: "stage",
	YLabel: "turns",
}

var (
	background = color.White
	axisColor  = color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	gridColor  = color.NRGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
	barColors  = [...]color.NRGBA{
		{R: 0x8e, G: 0xb8, B: 0xe5, A: 0xff},
		{R: 0x4f, G: 0x8f, B: 0xd6, A: 0xff},
		{R: 0x2f, G: 0x6b, B: 0xb3, A: 0xff},
		{R: 0x1c, G: 0x45, B: 0x7a, A: 0xff},
	}
)

// Config controls chart rendering.
type Config struct {
	// FontPath is an optional TrueType font file. Without it the chart uses
	// ASCII labels and a bitmap font.
	FontPath string
	Width    int
	Height   int
}

// Renderer draws progress charts. It is safe for concurrent use; every
// Render call builds its own drawing context.
type Renderer struct {
	width, height int
	labels        Labels
	ttf           *truetype.Font
}

// NewRenderer returns a renderer with labels drawn when a TrueType font is configured.
func NewRenderer(cfg Config, labels Labels) (*Renderer, error) {
	r := &Renderer{
		width:  cfg.Width,
		height: cfg.Height,
		labels: fallbackLabels,
	}
	if r.width <= 0 {
		r.width = defaultWidth
	}
	if r.height <= 0 {
		r.height = defaultHeight
	}

	if cfg.FontPath != "" {
		f, err := loadFont(cfg.FontPath)
		if err != nil {
			return nil, err
		}
		r.ttf = f
		r.labels = labels
	}
	return r, nil
}

func loadFont(path string) (*truetype.Font, error) {
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return parsed, nil
}

// face returns a font face of the given size. Faces are not safe for
// concurrent use, so each render gets its own.
func (r *Renderer) face(size float64) font.Face {
	if r.ttf == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(r.ttf, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// Size returns the image dimensions in pixels.
func (r *Renderer) Size() (width, height int) {
	return r.width, r.height
}

// Render draws one bar per stage in stage order and returns the PNG bytes.
func (r *Renderer) Render(p domain.ProgressCounters) ([]byte, error) {
	w, h := float64(r.width), float64(r.height)
	dc := gg.NewContext(r.width, r.height)

	dc.SetColor(background)
	dc.Clear()

	plotW := w - marginLeft - marginRight
	plotH := h - marginTop - marginBottom
	originX, originY := marginLeft, h-marginBottom

	maxCount := 0
	for _, s := range domain.Stages {
		maxCount = max(maxCount, p.Count(s))
	}
	step := tickStep(maxCount)
	top := step * int(math.Ceil(float64(max(maxCount, 1))/float64(step)))

	// Grid and y ticks.
	dc.SetFontFace(r.face(12))
	for v := 0; v <= top; v += step {
		y := originY - plotH*float64(v)/float64(top)
		dc.SetColor(gridColor)
		dc.SetLineWidth(1)
		dc.DrawLine(originX, y, originX+plotW, y)
		dc.Stroke()
		dc.SetColor(axisColor)
		dc.DrawStringAnchored(strconv.Itoa(v), originX-8, y, 1, 0.5)
	}

	// Bars.
	slot := plotW / float64(len(domain.Stages))
	barW := slot * 0.6
	for i, s := range domain.Stages {
		n := p.Count(s)
		barH := plotH * float64(n) / float64(top)
		x := originX + slot*float64(i) + (slot-barW)/2

		dc.SetColor(barColors[i%len(barColors)])
		dc.DrawRectangle(x, originY-barH, barW, barH)
		dc.Fill()

		dc.SetColor(axisColor)
		dc.DrawStringAnchored(s.String(), x+barW/2, originY+16, 0.5, 0.5)
	}

	// Axes.
	dc.SetColor(axisColor)
	dc.SetLineWidth(2)
	dc.DrawLine(originX, originY, originX+plotW, originY)
	dc.DrawLine(originX, originY, originX, originY-plotH)
	dc.Stroke()

	// Axis labels and title.
	dc.DrawStringAnchored(r.labels.XLabel, originX+plotW/2, h-20, 0.5, 0.5)
	dc.Push()
	dc.RotateAbout(gg.Radians(-90), 18, originY-plotH/2)
	dc.DrawStringAnchored(r.labels.YLabel, 18, originY-plotH/2, 0.5, 0.5)
	dc.Pop()

	dc.SetFontFace(r.face(18))
	dc.DrawStringAnchored(r.labels.Title, w/2, marginTop/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// tickStep picks a y-axis step giving at most about five gridlines.
func tickStep(maxCount int) int {
	if maxCount <= 5 {
		return 1
	}
	raw := float64(maxCount) / 5
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 5, 10} {
		if m*mag >= raw {
			return int(m * mag)
		}
	}
	return int(10 * mag)
}
