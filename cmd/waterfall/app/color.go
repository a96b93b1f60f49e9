package app

import (
	"image/color"
	"math"
)

// ColorTheme represents a predefined color scheme for intensity visualization
type ColorTheme string

const (
	DefaultTheme   ColorTheme = ""          // Blue through cyan and yellow to red
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256
)

var validThemes = map[ColorTheme]struct{}{
	DefaultTheme:   {},
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

// ColorMapper maps intensities onto a pre-computed gradient of the theme
type ColorMapper struct {
	colorMap     []color.Color
	boundsMin    float64
	perIndex     float64
	missingColor color.Color
}

// NewColorMapper creates a color mapper for the theme and bounds
func NewColorMapper(theme ColorTheme, bounds IntensityBounds) *ColorMapper {
	fn := getColorTheme(theme)

	cm := &ColorMapper{
		colorMap:     make([]color.Color, DefaultColorMapSize),
		boundsMin:    bounds.Min,
		perIndex:     (bounds.Max - bounds.Min) / float64(DefaultColorMapSize-1),
		missingColor: color.White,
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = fn(float64(i) / float64(DefaultColorMapSize-1))
	}
	return cm
}

// Color returns the color of an intensity, clamped to the bounds. NaN is drawn as background.
func (cm *ColorMapper) Color(v float64) color.Color {
	if math.IsNaN(v) {
		return cm.missingColor
	}
	if cm.perIndex <= 0 {
		return cm.colorMap[0]
	}

	index := int((v - cm.boundsMin) / cm.perIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= len(cm.colorMap) {
		return cm.colorMap[len(cm.colorMap)-1]
	}
	return cm.colorMap[index]
}

// HSV represents a color in HSV (Hue, Saturation, Value) color space
type HSV struct {
	H float64 // Hue angle in degrees [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value/Brightness [0-1]
}

// RGB converts HSV to RGB
func (hsv HSV) RGB() color.Color {
	value := math.Max(0, math.Min(1, hsv.V))
	if hsv.S <= 0.0 {
		v := uint8(value * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360)
	if h < 0 {
		h += 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)

	v := uint8(value * 255)
	p := uint8((value * (1 - hsv.S)) * 255)
	q := uint8((value * (1 - (hsv.S * f))) * 255)
	t := uint8((value * (1 - (hsv.S * (1 - f)))) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(n float64) color.Color {
			return HSV{H: 240 - (n * 240), S: 0.9 + (n * 0.1), V: math.Pow(n, 0.7)}.RGB()
		}

	case GrayscaleTheme:
		return func(n float64) color.Color {
			v := uint8(math.Pow(n, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(n float64) color.Color {
			return HSV{H: 120 - (n * 60), S: 1.0, V: 0.3 + (math.Pow(n, 0.6) * 0.7)}.RGB()
		}

	case ThermalTheme:
		return func(n float64) color.Color {
			switch {
			case n < 1.0/3:
				return color.RGBA{R: uint8(n * 3 * 255), A: 255}
			case n < 2.0/3:
				return color.RGBA{R: 255, G: uint8((n - 1.0/3) * 3 * 255), A: 255}
			default:
				return color.RGBA{R: 255, G: 255, B: uint8(math.Min(1, (n-2.0/3)*3) * 255), A: 255}
			}
		}

	case MarineTheme:
		return func(n float64) color.Color {
			return HSV{H: 240 - (n * 60), S: 1.0 - (n * 0.8), V: 0.3 + (math.Pow(n, 0.6) * 0.7)}.RGB()
		}

	default:
		return func(n float64) color.Color {
			enhanced := math.Pow(n, 0.7)

			switch {
			case n < 0.25:
				return HSV{H: 240, S: 1.0, V: enhanced * 4}.RGB()
			case n < 0.5:
				return HSV{H: 240 - ((n - 0.25) * 240), S: 1.0, V: enhanced * 1.5}.RGB()
			case n < 0.75:
				return HSV{H: 180 - ((n - 0.5) * 4 * 120), S: 1.0, V: enhanced * 1.5}.RGB()
			default:
				return HSV{H: 60 - ((n - 0.75) * 4 * 60), S: 1.0, V: 1.0}.RGB()
			}
		}
	}
}
