package acquisition

import (
	"context"
	"time"

	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

// Iteration is the output of one repetition
type Iteration struct {
	Index     int
	Timestamp time.Time
	Axis      []float64 // Raman shift in cm^-1
	Corrected []float64 // dark and nonlinearity corrected spectrum
	Final     []float64 // Corrected times the interpolated PN spectrum, nil unless requested
}

// Sink receives the products of a session. Begin is called once before any other method and
// End once after the last, with the terminal state recorded in the session.
type Sink interface {
	Begin(ctx context.Context, session spectrum.ScanSession) error
	PNSpectrum(ctx context.Context, session spectrum.ScanSession, axis, magnitudes []float64) error
	Iteration(ctx context.Context, session spectrum.ScanSession, it Iteration) error
	End(ctx context.Context, session spectrum.ScanSession) error
}

type discardSink struct{}

func (discardSink) Begin(context.Context, spectrum.ScanSession) error { return nil }

func (discardSink) PNSpectrum(context.Context, spectrum.ScanSession, []float64, []float64) error {
	return nil
}

func (discardSink) Iteration(context.Context, spectrum.ScanSession, Iteration) error { return nil }

func (discardSink) End(context.Context, spectrum.ScanSession) error { return nil }
