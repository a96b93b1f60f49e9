package spectrum

import (
	"fmt"
)

// DefaultLaserWavelength is the excitation wavelength of the rig in nm
const DefaultLaserWavelength = 638.318

// RamanShift converts a wavelength axis in nm to Raman shift in cm^-1 relative to the laser line
func RamanShift(laserNM float64, wavelengthsNM []float64) ([]float64, error) {
	if !(laserNM > 0) {
		return nil, fmt.Errorf("laser wavelength must be positive, got %g", laserNM)
	}

	out := make([]float64, len(wavelengthsNM))
	base := 1e7 / laserNM
	for i, w := range wavelengthsNM {
		if !(w > 0) {
			return nil, fmt.Errorf("wavelength %g at pixel %d is not positive", w, i)
		}
		out[i] = base - 1e7/w
	}
	return out, nil
}

// Multiply returns the point-wise product of a and b
func Multiply(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out, nil
}
