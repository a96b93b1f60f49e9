package waveform

import (
	"context"
	"sync"

	"github.com/roman-kulish/pn-raman/internal/pn"
)

// Simulator is an in-memory Generator. It builds the same segment the card would receive.
type Simulator struct {
	cards    int
	clockHz  float64
	startErr error
	stopErr  error

	mu      sync.Mutex
	running bool
	segment Segment
	starts  int
	stops   int
}

type SimulatorOption func(*Simulator)

// WithStartError makes every Start fail with err
func WithStartError(err error) SimulatorOption {
	return func(s *Simulator) {
		s.startErr = err
	}
}

// WithStopError makes every Stop fail with err
func WithStopError(err error) SimulatorOption {
	return func(s *Simulator) {
		s.stopErr = err
	}
}

func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{cards: 1, clockHz: DefaultClockHz}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) CardCount(context.Context) (int, error) {
	return s.cards, nil
}

func (s *Simulator) Start(_ context.Context, code pn.Code, modulationMHz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.starts++
	if s.startErr != nil {
		return s.startErr
	}

	seg, err := BuildSegment(code, modulationMHz, s.clockHz, HighLevel)
	if err != nil {
		return err
	}
	s.segment = seg
	s.running = true
	return nil
}

func (s *Simulator) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stops++
	if s.stopErr != nil {
		return s.stopErr
	}
	s.running = false
	return nil
}

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Segment returns the last segment started
func (s *Simulator) Segment() Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment
}

// Counts returns the number of Start and Stop calls
func (s *Simulator) Counts() (starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}
