package spectrometer

import (
	"fmt"
	"math"

	"github.com/roman-kulish/pn-raman/internal/driver"
)

// MaxNonlinearityCoefficients is the largest polynomial order reported by supported devices
const MaxNonlinearityCoefficients = 10

// CorrectionStats reports what a Correct call did
type CorrectionStats struct {
	Baseline   float64 // dark baseline subtracted from every pixel
	DarkFill   int     // valid entries in the dark buffer after the call
	Degenerate int     // pixels left dark-corrected because the polynomial was zero or non-finite
}

// Corrector applies electronic-dark and nonlinearity correction to raw pixel values.
// It is owned by one acquisition worker and is not safe for concurrent use.
type Corrector struct {
	darkIndices []int
	coeffs      []float64
	dark        darkBuffer
}

func NewCorrector() *Corrector {
	return &Corrector{}
}

// SetDarkPixelIndices replaces the electronic-dark pixel positions
func (c *Corrector) SetDarkPixelIndices(indices []int) error {
	for _, i := range indices {
		if i < 0 {
			return driver.NewConfigError(fmt.Sprintf("negative dark pixel index %d", i))
		}
	}
	c.darkIndices = append([]int(nil), indices...)
	return nil
}

// SetNonlinearityCoefficients replaces the polynomial coefficients, lowest order first
func (c *Corrector) SetNonlinearityCoefficients(coeffs []float64) error {
	if len(coeffs) > MaxNonlinearityCoefficients {
		return driver.NewConfigError(fmt.Sprintf("%d nonlinearity coefficients, at most %d supported", len(coeffs), MaxNonlinearityCoefficients))
	}
	for i, v := range coeffs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return driver.NewConfigError(fmt.Sprintf("nonlinearity coefficient %d is not finite", i))
		}
	}
	c.coeffs = append([]float64(nil), coeffs...)
	return nil
}

func (c *Corrector) DarkPixelIndices() []int {
	return append([]int(nil), c.darkIndices...)
}

func (c *Corrector) NonlinearityCoefficients() []float64 {
	return append([]float64(nil), c.coeffs...)
}

// Baseline returns the mean of the dark buffer
func (c *Corrector) Baseline() float64 {
	return c.dark.mean()
}

// Reset empties the dark buffer, the configured indices and coefficients are kept
func (c *Corrector) Reset() {
	c.dark.reset()
}

// Correct corrects values in place. The dark buffer advances on every call, so the same raw
// spectrum must not be corrected twice.
func (c *Corrector) Correct(values []float64) (CorrectionStats, error) {
	for _, i := range c.darkIndices {
		if i >= len(values) {
			return CorrectionStats{}, fmt.Errorf("dark pixel index %d outside spectrum of %d pixels", i, len(values))
		}
	}

	for _, i := range c.darkIndices {
		c.dark.push(values[i])
	}

	stats := CorrectionStats{
		Baseline: c.dark.mean(),
		DarkFill: c.dark.len(),
	}
	for i := range values {
		values[i] -= stats.Baseline
	}

	if len(c.coeffs) == 0 {
		return stats, nil
	}

	for i, v := range values {
		y := polyval(c.coeffs, v)
		if y == 0 {
			stats.Degenerate++
			continue
		}
		q := v / y
		if math.IsNaN(q) || math.IsInf(q, 0) {
			stats.Degenerate++
			continue
		}
		values[i] = q
	}
	return stats, nil
}

// polyval evaluates c0 + c1*x + ... with Horner's scheme
func polyval(coeffs []float64, x float64) float64 {
	var y float64
	for i := len(coeffs) - 1; i >= 0; i-- {
		y = y*x + coeffs[i]
	}
	return y
}
