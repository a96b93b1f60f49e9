package spectrum

import (
	"fmt"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/dsputils"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/roman-kulish/pn-raman/internal/driver"
	"github.com/roman-kulish/pn-raman/internal/pn"
)

// SpeedOfLight in centimetres per microsecond. Dividing a frequency in MHz by it yields cm^-1.
const SpeedOfLight = 2.99792458e4

const DefaultSamplesPerBit = 512

// Unit selects the frequency axis unit of synthesized spectra
type Unit int

const (
	UnitWavenumber Unit = iota // cm^-1
	UnitMegahertz
)

func (u Unit) String() string {
	switch u {
	case UnitWavenumber:
		return "cm^-1"
	case UnitMegahertz:
		return "MHz"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

type synthKey struct {
	code          string
	modulationMHz float64
}

// Synthesizer computes the magnitude spectrum of an oversampled PN waveform. Results are
// memoised per code and modulation frequency, it is safe for concurrent use.
type Synthesizer struct {
	samplesPerBit int
	unit          Unit

	mu    sync.Mutex
	cache map[synthKey]*Spectrum
}

type SynthesizerOption func(*Synthesizer)

// WithSamplesPerBit sets the oversampling factor, it must be a power of two
func WithSamplesPerBit(n int) SynthesizerOption {
	return func(s *Synthesizer) {
		s.samplesPerBit = n
	}
}

// WithUnit sets the unit of the frequency axis
func WithUnit(u Unit) SynthesizerOption {
	return func(s *Synthesizer) {
		s.unit = u
	}
}

func NewSynthesizer(opts ...SynthesizerOption) (*Synthesizer, error) {
	s := &Synthesizer{
		samplesPerBit: DefaultSamplesPerBit,
		unit:          UnitWavenumber,
		cache:         make(map[synthKey]*Spectrum),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.samplesPerBit <= 0 || !dsputils.IsPowerOf2(s.samplesPerBit) {
		return nil, driver.NewConfigError(fmt.Sprintf("samples per bit must be a power of two, got %d", s.samplesPerBit))
	}
	if s.unit != UnitWavenumber && s.unit != UnitMegahertz {
		return nil, driver.NewConfigError(fmt.Sprintf("unknown unit %s", s.unit))
	}
	return s, nil
}

// SamplesPerBit returns the oversampling factor
func (s *Synthesizer) SamplesPerBit() int {
	return s.samplesPerBit
}

// Synthesize returns the one-sided magnitude spectrum of code held at modulationMHz.
// The returned spectrum is shared between callers and must not be modified.
func (s *Synthesizer) Synthesize(code pn.Code, modulationMHz float64) (*Spectrum, error) {
	if code.Len() == 0 {
		return nil, driver.NewConfigError("empty PN code")
	}
	if !(modulationMHz > 0) {
		return nil, driver.NewConfigError(fmt.Sprintf("modulation frequency must be positive, got %g", modulationMHz))
	}

	key := synthKey{code: code.String(), modulationMHz: modulationMHz}

	s.mu.Lock()
	defer s.mu.Unlock()

	if spec, ok := s.cache[key]; ok {
		return spec, nil
	}

	spec := s.synthesize(code, modulationMHz)
	s.cache[key] = spec
	return spec, nil
}

func (s *Synthesizer) synthesize(code pn.Code, modulationMHz float64) *Spectrum {
	total := code.Len() * s.samplesPerBit

	waveform := make([]float64, total)
	for i := 0; i < code.Len(); i++ {
		if code.Bit(i) == 0 {
			continue
		}
		block := waveform[i*s.samplesPerBit : (i+1)*s.samplesPerBit]
		for j := range block {
			block[j] = 1
		}
	}

	coeffs := fourier.NewFFT(total).Coefficients(nil, waveform)
	n := total/2 + 1

	// one bit lasts 1/modulationMHz microseconds
	duration := float64(code.Len()) / modulationMHz

	spec := &Spectrum{
		Frequencies: make([]float64, n),
		Magnitudes:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		f := float64(i) / duration
		if s.unit == UnitWavenumber {
			f /= SpeedOfLight
		}
		spec.Frequencies[i] = f
		spec.Magnitudes[i] = cmplx.Abs(coeffs[i]) / float64(n)
	}
	return spec
}
