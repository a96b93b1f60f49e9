package spectrum

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrLengthMismatch = errors.New("frequencies and magnitudes differ in length")
	ErrEmpty          = errors.New("spectrum is empty")
)

// Spectrum is a one-sided magnitude spectrum. Frequencies are strictly ascending, start at
// the DC term and share their index with Magnitudes.
type Spectrum struct {
	Frequencies []float64
	Magnitudes  []float64
}

// Len returns the number of bins
func (s *Spectrum) Len() int {
	return len(s.Frequencies)
}

// Validate checks the structural invariants of the spectrum
func (s *Spectrum) Validate() error {
	if len(s.Frequencies) == 0 {
		return ErrEmpty
	}
	if len(s.Frequencies) != len(s.Magnitudes) {
		return fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(s.Frequencies), len(s.Magnitudes))
	}
	if s.Frequencies[0] != 0 {
		return fmt.Errorf("first frequency is %g, want DC", s.Frequencies[0])
	}
	for i := 1; i < len(s.Frequencies); i++ {
		if !(s.Frequencies[i] > s.Frequencies[i-1]) {
			return fmt.Errorf("frequencies not strictly ascending at bin %d", i)
		}
	}
	for i, m := range s.Magnitudes {
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("invalid magnitude %g at bin %d", m, i)
		}
	}
	return nil
}

// Clone returns a deep copy
func (s *Spectrum) Clone() *Spectrum {
	return &Spectrum{
		Frequencies: append([]float64(nil), s.Frequencies...),
		Magnitudes:  append([]float64(nil), s.Magnitudes...),
	}
}
