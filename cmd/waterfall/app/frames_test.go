package app

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

func TestNewFrameData(t *testing.T) {
	frames := testFrames(3)
	frames[1].Values = frames[1].Values[:5]

	data, err := NewFrameData(&spectrum.ScanSession{ID: testSessionID}, spectrum.FrameFinal, frames)
	require.NoError(t, err)

	assert.Equal(t, len(testAxis), data.Width)
	assert.Equal(t, 3, data.Height)
	assert.Equal(t, 100.0, data.ShiftMin)
	assert.Equal(t, 1500.0, data.ShiftMax)
	assert.Equal(t, 1, data.FirstIteration)
	assert.Equal(t, 3, data.LastIteration)
	assert.Equal(t, frames[2].Timestamp, data.TimestampEnd)
	assert.True(t, math.IsNaN(data.Rows[1][5]))
	assert.Equal(t, 16.0, data.Rows[2][0])

	assert.Equal(t, 0, data.ColumnOf(0))
	assert.Equal(t, 2, data.ColumnOf(520))
	assert.Equal(t, 7, data.ColumnOf(5000))

	_, err = NewFrameData(nil, spectrum.FrameFinal, nil)
	assert.Error(t, err)
	_, err = NewFrameData(nil, spectrum.FrameFinal, []spectrum.Frame{{Iteration: 1}})
	assert.Error(t, err)
}

func TestFrameData_Bounds(t *testing.T) {
	row := make([]float64, 101)
	for i := range row {
		row[i] = float64(i)
	}
	row[0] = math.NaN()
	row[100] = math.Inf(1)

	data := &FrameData{Width: len(row), Height: 1, Rows: [][]float64{row}}
	bounds := data.Bounds()

	// 99 finite values 1-99, percentiles at indices 5 and 93
	assert.InDelta(t, 6-8.8, bounds.Min, 1e-9)
	assert.InDelta(t, 94+8.8, bounds.Max, 1e-9)

	flat := &FrameData{Width: 2, Height: 1, Rows: [][]float64{{3, 3}}}
	assert.Equal(t, IntensityBounds{Min: 2.5, Max: 3.5}, flat.Bounds())

	empty := &FrameData{Width: 1, Height: 1, Rows: [][]float64{{math.NaN()}}}
	assert.Equal(t, IntensityBounds{Min: 0, Max: 1}, empty.Bounds())
}

func TestColorMapper(t *testing.T) {
	cm := NewColorMapper(GrayscaleTheme, IntensityBounds{Min: 0, Max: 10})

	assert.Equal(t, color.RGBA{A: 255}, cm.Color(-5))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, cm.Color(20))
	assert.Equal(t, color.White, cm.Color(math.NaN()))

	for theme := range validThemes {
		cm = NewColorMapper(theme, IntensityBounds{Min: 0, Max: 1})
		for _, v := range []float64{0, 0.1, 0.3, 0.5, 0.7, 0.9, 1} {
			assert.NotNil(t, cm.Color(v), "theme %q value %g", theme, v)
		}
	}
}

func TestRenderer_Render(t *testing.T) {
	data, err := NewFrameData(&spectrum.ScanSession{ID: testSessionID, Label: "test"}, spectrum.FrameFinal, testFrames(4))
	require.NoError(t, err)

	lo, hi := 0.0, 30.0
	r := NewRenderer(RenderConfig{NoAnnotations: true, ColorTheme: GrayscaleTheme, MinIntensity: &lo, MaxIntensity: &hi})
	img, err := r.Render(data)
	require.NoError(t, err)

	assert.Equal(t, minPlotWidth, img.Bounds().Dx())
	assert.Equal(t, minPlotHeight, img.Bounds().Dy())
	// first cell is the minimum, last cell is above the maximum
	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, img.RGBAAt(minPlotWidth-1, minPlotHeight-1))

	img, err = NewRenderer(RenderConfig{}).Render(data)
	require.NoError(t, err)
	assert.Equal(t, defaultLeftBorder+minPlotWidth+defaultRightBorder, img.Bounds().Dx())
	assert.Equal(t, defaultTopBorder+minPlotHeight+defaultBottomBorder, img.Bounds().Dy())
}

func TestNiceStep(t *testing.T) {
	assert.Equal(t, 200.0, niceStep(1400, 8))
	assert.Equal(t, 500.0, niceStep(3000, 8))
	assert.Equal(t, 1.0, niceStep(0, 4))
}
