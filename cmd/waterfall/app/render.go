package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi             = 120.0
	fontSize        = 10.0
	tickMarkHeight  = 5
	pixelsPerLabel  = 120.0
	pixelsPerRowTag = 40.0

	minPlotWidth  = 512
	minPlotHeight = 256

	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the waterfall
type BorderConfig struct {
	Top    int // Space for the Raman shift scale
	Left   int // Space for the iteration scale
	Bottom int // Space for the information bar
	Right  int
}

// RenderConfig holds the waterfall rendering options
type RenderConfig struct {
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	ColorTheme     ColorTheme
	NoAnnotations  bool

	// Manual intensity bounds, the percentile bounds of the data are used for nil values
	MinIntensity *float64
	MaxIntensity *float64

	BorderConfig BorderConfig
}

// Renderer draws FrameData as an image, pixels along X and iterations along Y. Small grids
// are scaled up by whole cells.
type Renderer struct {
	config RenderConfig
}

func NewRenderer(config RenderConfig) *Renderer {
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.NoAnnotations {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}
	return &Renderer{config: config}
}

// Bounds returns the intensity range the renderer maps data onto
func (r *Renderer) Bounds(data *FrameData) IntensityBounds {
	bounds := data.Bounds()
	if r.config.MinIntensity != nil {
		bounds.Min = *r.config.MinIntensity
	}
	if r.config.MaxIntensity != nil {
		bounds.Max = *r.config.MaxIntensity
	}
	return bounds
}

// Render creates an image of the frames with annotations
func (r *Renderer) Render(data *FrameData) (*image.RGBA, error) {
	g := newGeometry(data, r.config.BorderConfig)
	img := image.NewRGBA(image.Rect(0, 0, g.fullWidth(), g.fullHeight()))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(r.config, g)
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, data); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	r.renderFrames(img, g, data, NewColorMapper(r.config.ColorTheme, r.Bounds(data)))
	return img, nil
}

func (r *Renderer) renderFrames(img *image.RGBA, g geometry, data *FrameData, cm *ColorMapper) {
	for y, row := range data.Rows {
		for x, v := range row {
			c := cm.Color(v)
			cell := image.Rect(
				g.area.Min.X+x*g.scaleX,
				g.area.Min.Y+y*g.scaleY,
				g.area.Min.X+(x+1)*g.scaleX,
				g.area.Min.Y+(y+1)*g.scaleY,
			)
			draw.Draw(img, cell, image.NewUniform(c), image.Point{}, draw.Src)
		}
	}
}

// geometry places the grid inside the borders
type geometry struct {
	borders BorderConfig
	scaleX  int
	scaleY  int
	area    image.Rectangle
}

func newGeometry(data *FrameData, borders BorderConfig) geometry {
	g := geometry{
		borders: borders,
		scaleX:  max(1, int(math.Ceil(minPlotWidth/float64(data.Width)))),
		scaleY:  max(1, int(math.Ceil(minPlotHeight/float64(data.Height)))),
	}
	g.area = image.Rect(
		borders.Left,
		borders.Top,
		borders.Left+data.Width*g.scaleX,
		borders.Top+data.Height*g.scaleY,
	)
	return g
}

func (g geometry) fullWidth() int {
	return g.area.Max.X + g.borders.Right
}

func (g geometry) fullHeight() int {
	return g.area.Max.Y + g.borders.Bottom
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	geometry geometry
	fontFace font.Face
}

func newAnnotator(config RenderConfig, g geometry) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context:  ctx,
		config:   config,
		geometry: g,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, data *FrameData) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawShiftScale(img, data); err != nil {
		return fmt.Errorf("drawing Raman shift scale: %w", err)
	}
	if err := a.drawIterationScale(img, data); err != nil {
		return fmt.Errorf("drawing iteration scale: %w", err)
	}
	if err := a.drawInfoBar(img, data); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawShiftScale(img *image.RGBA, data *FrameData) error {
	area := a.geometry.area
	step := niceStep(data.ShiftMax-data.ShiftMin, float64(area.Dx())/pixelsPerLabel)
	textY := area.Min.Y - a.fontHeight()/2

	for shift := math.Ceil(data.ShiftMin/step) * step; shift <= data.ShiftMax; shift += step {
		col := data.ColumnOf(shift)
		x := area.Min.X + col*a.geometry.scaleX + a.geometry.scaleX/2

		for y := area.Min.Y - tickMarkHeight; y < area.Min.Y; y++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%.0f", shift)
		width := font.MeasureString(a.fontFace, label)
		if _, err := a.context.DrawString(label, freetype.Pt(x-width.Round()/2, textY)); err != nil {
			return fmt.Errorf("drawing Raman shift label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawIterationScale(img *image.RGBA, data *FrameData) error {
	area := a.geometry.area
	metrics := a.fontFace.Metrics()

	step := int(niceStep(float64(data.Height), float64(area.Dy())/pixelsPerRowTag))
	for row := 0; row < data.Height; row += max(1, step) {
		imgY := area.Min.Y + row*a.geometry.scaleY + a.geometry.scaleY/2

		for x := area.Min.X - tickMarkHeight; x < area.Min.X; x++ {
			img.Set(x, imgY, color.Black)
		}

		label := humanize.Comma(int64(data.FirstIteration + row))
		width := font.MeasureString(a.fontFace, label)
		textX := area.Min.X - tickMarkHeight - 4 - width.Round()
		textY := imgY + a.fontHeight()/2 - metrics.Descent.Round()
		if _, err := a.context.DrawString(label, freetype.Pt(textX, textY)); err != nil {
			return fmt.Errorf("drawing iteration label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *FrameData) error {
	var sb strings.Builder

	if s := data.Session; s != nil {
		if s.Label != "" {
			sb.WriteString(s.Label)
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s %d MHz, PN %d bits; ", data.Kind, s.ModulationMHz, s.PNBitLength))
	}
	sb.WriteString(fmt.Sprintf("Shift: %.0f - %.0f cm-1; %s px; ", data.ShiftMin, data.ShiftMax, humanize.Comma(int64(data.Width))))
	sb.WriteString(fmt.Sprintf("Started %s (%s)",
		data.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		humanize.Time(data.TimestampStart)))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - (a.geometry.borders.Bottom-a.fontHeight())/2 - metrics.Descent.Round()

	if _, err := a.context.DrawString(sb.String(), freetype.Pt(a.geometry.area.Min.X, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// niceStep returns a 1, 2 or 5 times power of ten step that puts about labels ticks over span
func niceStep(span, labels float64) float64 {
	if !(span > 0) || labels < 1 {
		return math.Max(span, 1)
	}

	rough := span / labels
	magnitude := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= rough {
			return step
		}
	}
	return 10 * magnitude
}
