package export

import (
	"context"
	"errors"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

// MultiSink fans every call out to each sink in order. All sinks are called even when one
// fails and the errors are joined.
type MultiSink []acquisition.Sink

func (m MultiSink) Begin(ctx context.Context, session spectrum.ScanSession) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Begin(ctx, session))
	}
	return errors.Join(errs...)
}

func (m MultiSink) PNSpectrum(ctx context.Context, session spectrum.ScanSession, axis, magnitudes []float64) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.PNSpectrum(ctx, session, axis, magnitudes))
	}
	return errors.Join(errs...)
}

func (m MultiSink) Iteration(ctx context.Context, session spectrum.ScanSession, it acquisition.Iteration) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Iteration(ctx, session, it))
	}
	return errors.Join(errs...)
}

func (m MultiSink) End(ctx context.Context, session spectrum.ScanSession) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.End(ctx, session))
	}
	return errors.Join(errs...)
}
