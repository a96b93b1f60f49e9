// Package sim provides a deterministic simulated spectrometer. It emits a dark offset,
// Lorentzian Raman lines and seeded noise so scans can run without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roman-kulish/pn-raman/internal/spectrometer"
)

const (
	Model     = "SIM-QE"
	DefaultID = "SIM00001"

	DefaultPixels    = 1044
	DefaultDarkLevel = 1500.0
	DefaultNoise     = 4.0
	DefaultStartNM   = 645.0
	DefaultEndNM     = 1000.0
)

var (
	ErrNotOpen     = errors.New("spectrometer is not open")
	ErrUnknownID   = errors.New("unknown spectrometer")
	ErrInjected    = errors.New("injected failure")
	defaultDevices = []string{DefaultID}
)

// Peak is a Raman line at Shift cm^-1 with Width full width at half maximum
type Peak struct {
	Shift     float64
	Width     float64
	Amplitude float64 // counts per millisecond of integration
}

// DefaultPeaks approximates a polystyrene reference sample
var DefaultPeaks = []Peak{
	{Shift: 620, Width: 8, Amplitude: 0.8},
	{Shift: 1001, Width: 6, Amplitude: 3.0},
	{Shift: 1031, Width: 6, Amplitude: 1.2},
	{Shift: 1602, Width: 10, Amplitude: 1.5},
	{Shift: 3054, Width: 14, Amplitude: 2.0},
}

// Spectrometer is a simulated spectrometer. It is safe for concurrent use.
type Spectrometer struct {
	ids         []string
	pixels      int
	darkIndices []int
	coeffs      []float64
	darkLevel   float64
	noise       float64
	laserNM     float64
	peaks       []Peak
	delay       time.Duration
	seed        uint64

	// failSpectrumAfter returns ErrInjected from the n+1-th Spectrum call when > 0
	failSpectrumAfter int

	mu          sync.Mutex
	open        string
	integration time.Duration
	rng         *rand.Rand
	calls       map[string]int
	history     []time.Duration
}

type Option func(*Spectrometer)

func WithPixels(n int) Option {
	return func(s *Spectrometer) {
		s.pixels = n
	}
}

func WithDevices(ids ...string) Option {
	return func(s *Spectrometer) {
		s.ids = ids
	}
}

func WithDarkPixels(indices ...int) Option {
	return func(s *Spectrometer) {
		s.darkIndices = indices
	}
}

func WithNonlinearity(coeffs ...float64) Option {
	return func(s *Spectrometer) {
		s.coeffs = coeffs
	}
}

func WithDarkLevel(v float64) Option {
	return func(s *Spectrometer) {
		s.darkLevel = v
	}
}

func WithNoise(sigma float64) Option {
	return func(s *Spectrometer) {
		s.noise = sigma
	}
}

func WithPeaks(laserNM float64, peaks ...Peak) Option {
	return func(s *Spectrometer) {
		s.laserNM = laserNM
		s.peaks = peaks
	}
}

// WithDelay blocks every Spectrum call for d, or until its context is done
func WithDelay(d time.Duration) Option {
	return func(s *Spectrometer) {
		s.delay = d
	}
}

func WithSeed(seed uint64) Option {
	return func(s *Spectrometer) {
		s.seed = seed
	}
}

// WithSpectrumFailure makes every Spectrum call after the first n fail
func WithSpectrumFailure(n int) Option {
	return func(s *Spectrometer) {
		s.failSpectrumAfter = n
	}
}

func New(opts ...Option) *Spectrometer {
	s := &Spectrometer{
		ids:         defaultDevices,
		pixels:      DefaultPixels,
		darkIndices: []int{0, 1, 2, 3},
		coeffs:      []float64{1, 2e-6, -1e-11},
		darkLevel:   DefaultDarkLevel,
		noise:       DefaultNoise,
		laserNM:     638.318,
		peaks:       DefaultPeaks,
		seed:        1,
		calls:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	return s
}

func (s *Spectrometer) Devices(context.Context) ([]spectrometer.DeviceInfo, error) {
	s.count("devices")

	out := make([]spectrometer.DeviceInfo, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, spectrometer.DeviceInfo{ID: id, Model: Model, Pixels: s.pixels})
	}
	return out, nil
}

func (s *Spectrometer) Open(_ context.Context, id string) error {
	s.count("open")

	for _, known := range s.ids {
		if known == id {
			s.mu.Lock()
			s.open = id
			s.integration = spectrometer.IdleIntegrationTime
			s.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownID, id)
}

func (s *Spectrometer) Close(context.Context) error {
	s.count("close")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = ""
	return nil
}

func (s *Spectrometer) SetIntegrationTime(_ context.Context, d time.Duration) error {
	s.count("integration")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == "" {
		return ErrNotOpen
	}
	if d < spectrometer.MinIntegrationTime || d > spectrometer.MaxIntegrationTime {
		return fmt.Errorf("integration time %s out of range", d)
	}
	s.integration = d
	s.history = append(s.history, d)
	return nil
}

func (s *Spectrometer) PixelCount(context.Context) (int, error) {
	if err := s.checkOpen("pixels"); err != nil {
		return 0, err
	}
	return s.pixels, nil
}

func (s *Spectrometer) Wavelengths(context.Context) ([]float64, error) {
	if err := s.checkOpen("wavelengths"); err != nil {
		return nil, err
	}
	return s.wavelengths(), nil
}

func (s *Spectrometer) DarkPixelIndices(context.Context) ([]int, error) {
	if err := s.checkOpen("dark"); err != nil {
		return nil, err
	}
	return append([]int(nil), s.darkIndices...), nil
}

func (s *Spectrometer) NonlinearityCoefficients(context.Context) ([]float64, error) {
	if err := s.checkOpen("nonlinearity"); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.coeffs...), nil
}

func (s *Spectrometer) Spectrum(ctx context.Context) ([]float64, error) {
	if err := s.checkOpen("spectrum"); err != nil {
		return nil, err
	}

	if s.failSpectrumAfter > 0 && s.Calls("spectrum") > s.failSpectrumAfter {
		return nil, ErrInjected
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ms := float64(s.integration) / float64(time.Millisecond)
	dark := make(map[int]struct{}, len(s.darkIndices))
	for _, i := range s.darkIndices {
		dark[i] = struct{}{}
	}

	wl := s.wavelengths()
	out := make([]float64, s.pixels)
	for i, w := range wl {
		v := s.darkLevel + s.rng.NormFloat64()*s.noise
		if _, shielded := dark[i]; !shielded {
			shift := 1e7/s.laserNM - 1e7/w
			for _, p := range s.peaks {
				half := p.Width / 2
				d := shift - p.Shift
				v += p.Amplitude * ms * half * half / (d*d + half*half)
			}
		}
		out[i] = math.Max(v, 0)
	}
	return out, nil
}

// Calls returns how many times op was invoked
func (s *Spectrometer) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// IntegrationTime returns the current integration time
func (s *Spectrometer) IntegrationTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integration
}

// IntegrationHistory returns every integration time applied since creation
func (s *Spectrometer) IntegrationHistory() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.history...)
}

func (s *Spectrometer) count(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

func (s *Spectrometer) checkOpen(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	if s.open == "" {
		return ErrNotOpen
	}
	return nil
}

func (s *Spectrometer) wavelengths() []float64 {
	out := make([]float64, s.pixels)
	if s.pixels == 1 {
		out[0] = DefaultStartNM
		return out
	}
	step := (DefaultEndNM - DefaultStartNM) / float64(s.pixels-1)
	for i := range out {
		out[i] = DefaultStartNM + float64(i)*step
	}
	return out
}
