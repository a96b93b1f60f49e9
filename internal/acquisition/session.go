// Package acquisition runs PN-modulated acquisition sessions: repeated spectrometer reads,
// per-pixel correction and demodulation by the interpolated PN spectrum.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/pn-raman/internal/driver"
	"github.com/roman-kulish/pn-raman/internal/pn"
	"github.com/roman-kulish/pn-raman/internal/spectrometer"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
	"github.com/roman-kulish/pn-raman/internal/waveform"
)

const (
	deviceSpectrometer = "spectrometer"
	deviceWaveform     = "waveform generator"
)

// Deps are the collaborators of a session
type Deps struct {
	Spectrometer spectrometer.Driver
	Corrector    *spectrometer.Corrector
	Synthesizer  *spectrum.Synthesizer
	Waveform     waveform.Generator // optional
	Sink         Sink               // optional
	LaserNM      float64            // excitation wavelength, DefaultLaserWavelength when 0
}

// Result is the outcome of a session
type Result struct {
	SessionID string
	State     State
	Completed int
	Err       error
}

// Handle resolves when the session reaches a terminal state
type Handle struct {
	done   chan struct{}
	result Result
}

// Done is closed on the terminal transition
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the session ends or ctx is done. The returned error is Result.Err.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-h.done:
		return h.result, h.result.Err
	}
}

// Result returns the result and true once the session has ended
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) func(s *Session) {
	return func(s *Session) {
		s.logger = logger.With(slog.String("sessionID", s.id))
	}
}

// WithCallTimeout bounds every hardware call, 0 disables the bound
func WithCallTimeout(d time.Duration) func(s *Session) {
	return func(s *Session) {
		s.callTimeout = d
	}
}

// Session is one acquisition run. Only its worker goroutine touches the corrector and the
// cached PN spectrum; progress and cancellation cross goroutines through atomics.
type Session struct {
	id     string
	params Params
	deps   Deps

	state     atomic.Int32
	cancelled atomic.Bool
	completed atomic.Int64
	startedAt atomic.Int64 // unix nanoseconds, 0 before Preparing

	startOnce sync.Once
	handle    *Handle

	// released on the terminal transition
	axis     []float64
	pnScaled []float64

	callTimeout time.Duration
	logger      *slog.Logger
}

// NewSession validates params and deps. Errors are *driver.ConfigError and no device is touched.
func NewSession(params Params, deps Deps, options ...func(s *Session)) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if deps.Spectrometer == nil {
		return nil, driver.NewConfigError("no spectrometer driver")
	}
	if deps.Corrector == nil {
		return nil, driver.NewConfigError("no pixel corrector")
	}
	if deps.Synthesizer == nil && params.needsPNSpectrum() {
		return nil, driver.NewConfigError("no spectrum synthesizer")
	}
	if deps.Sink == nil {
		deps.Sink = discardSink{}
	}
	if deps.LaserNM == 0 {
		deps.LaserNM = spectrum.DefaultLaserWavelength
	}

	s := &Session{
		id:     uuid.NewString(),
		params: params,
		deps:   deps,
		handle: &Handle{done: make(chan struct{})},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Params() Params {
	return s.params
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Handle returns the session's completion handle
func (s *Session) Handle() *Handle {
	return s.handle
}

// Progress returns a snapshot of the iteration counter
func (s *Session) Progress() Progress {
	p := Progress{
		Completed:       int(s.completed.Load()),
		Total:           s.params.Repetitions,
		IntegrationTime: s.params.IntegrationTime,
	}
	if ns := s.startedAt.Load(); ns != 0 {
		p.StartedAt = time.Unix(0, ns)
	}
	return p
}

// Cancel requests a cooperative stop. It takes effect at the next iteration boundary.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Start launches the worker and returns the session's handle. Cancelling ctx has the same
// effect as Cancel. Subsequent calls return the same handle.
func (s *Session) Start(ctx context.Context) *Handle {
	s.startOnce.Do(func() {
		go s.work(ctx)
	})
	return s.handle
}

func (s *Session) work(ctx context.Context) {
	state, err := s.run(ctx)

	s.state.Store(int32(state))
	s.handle.result = Result{
		SessionID: s.id,
		State:     state,
		Completed: int(s.completed.Load()),
		Err:       err,
	}

	attrs := []any{
		slog.String("state", state.String()),
		slog.String("iterations", humanize.Comma(s.completed.Load())),
	}
	if err != nil {
		s.logger.Error("session ended", append(attrs, slog.String("error", err.Error()))...)
	} else {
		s.logger.Info("session ended", attrs...)
	}

	close(s.handle.done)
}

// run drives the state machine and returns the terminal state
func (s *Session) run(ctx context.Context) (state State, err error) {
	p := s.params
	deps := s.deps
	start := time.Now()

	s.startedAt.Store(start.UnixNano())
	s.state.Store(int32(StatePreparing))
	s.logger.Info("preparing session",
		slog.String("spectrometerID", p.SpectrometerID),
		slog.Int("pnBitLength", p.PNBitLength),
		slog.Int("modulationMHz", p.ModulationMHz),
		slog.Duration("integrationTime", p.IntegrationTime),
		slog.Int("repetitions", p.Repetitions),
	)

	record := s.record(start)

	var (
		integrationSet bool
		sinkBegun      bool
		waveformOn     bool
		cancelled      bool
	)

	defer func() {
		if err != nil {
			state = StateFailed
		} else if cancelled {
			state = StateCancelled
		} else {
			state = StateCompleted
		}

		end := time.Now()
		record.EndTime = &end
		record.State = state.String()

		cerr := s.cleanup(ctx, record, integrationSet, sinkBegun, waveformOn)
		if cerr == nil {
			return
		}
		if state == StateFailed {
			err = errors.Join(err, cerr)
			return
		}
		s.logger.Warn("session cleanup failed", slog.String("error", cerr.Error()))
	}()

	code, err := pn.Generate(p.PNBitLength)
	if err != nil {
		return StateFailed, err
	}

	if err = do(ctx, s.callTimeout, func(ctx context.Context) error {
		return deps.Spectrometer.SetIntegrationTime(ctx, p.IntegrationTime)
	}); err != nil {
		return StateFailed, driver.NewDeviceError(deviceSpectrometer, "set integration time", err)
	}
	integrationSet = true

	wavelengths, err := call(ctx, s.callTimeout, deps.Spectrometer.Wavelengths)
	if err != nil {
		return StateFailed, driver.NewDeviceError(deviceSpectrometer, "wavelengths", err)
	}
	if len(wavelengths) == 0 {
		return StateFailed, driver.NewDeviceError(deviceSpectrometer, "wavelengths", errors.New("empty wavelength axis"))
	}
	if s.axis, err = spectrum.RamanShift(deps.LaserNM, wavelengths); err != nil {
		return StateFailed, driver.NewDeviceError(deviceSpectrometer, "wavelengths", err)
	}

	if p.needsPNSpectrum() {
		synth, err := deps.Synthesizer.Synthesize(code, float64(p.ModulationMHz))
		if err != nil {
			return StateFailed, fmt.Errorf("synthesizing PN spectrum: %w", err)
		}
		if s.pnScaled, err = spectrum.Interpolate(synth, s.axis); err != nil {
			return StateFailed, driver.NewDeviceError(deviceSpectrometer, "wavelengths", err)
		}
	}

	if err = deps.Sink.Begin(context.WithoutCancel(ctx), record); err != nil {
		return StateFailed, fmt.Errorf("output sink: %w", err)
	}
	sinkBegun = true

	if deps.Waveform != nil {
		waveformOn = true // stopped on every exit path, even if the start call itself failed
		if err = do(ctx, s.callTimeout, func(ctx context.Context) error {
			return deps.Waveform.Start(ctx, code, float64(p.ModulationMHz))
		}); err != nil {
			return StateFailed, driver.NewDeviceError(deviceWaveform, "start", err)
		}
	}

	s.state.Store(int32(StateRunning))
	s.logger.Info("session running", slog.Int("pixels", len(s.axis)))

	for i := 0; i < p.Repetitions; i++ {
		if s.cancelled.Load() || ctx.Err() != nil {
			cancelled = true
			s.logger.Info("session cancelled", slog.Int("iteration", i))
			return StateCancelled, nil
		}

		// the diagnostic PN spectrum belongs to the first iteration's output
		if i == 0 && p.Outputs.PNSpectrum {
			if err = deps.Sink.PNSpectrum(context.WithoutCancel(ctx), record, s.axis, s.pnScaled); err != nil {
				return StateFailed, fmt.Errorf("output sink: %w", err)
			}
		}

		if err = s.iterate(ctx, record, i); err != nil {
			return StateFailed, err
		}
		s.completed.Add(1)
	}

	return StateCompleted, nil
}

// iterate acquires, corrects and hands one repetition to the sink
func (s *Session) iterate(ctx context.Context, record spectrum.ScanSession, i int) error {
	raw, err := call(ctx, s.callTimeout, s.deps.Spectrometer.Spectrum)
	if err != nil {
		return driver.NewDeviceError(deviceSpectrometer, "spectrum", err)
	}
	if len(raw) != len(s.axis) {
		return driver.NewDeviceError(deviceSpectrometer, "spectrum",
			fmt.Errorf("got %d pixels, wavelength axis has %d", len(raw), len(s.axis)))
	}

	stats, err := s.deps.Corrector.Correct(raw)
	if err != nil {
		return driver.NewDeviceError(deviceSpectrometer, "correct", err)
	}
	if stats.Degenerate > 0 {
		s.logger.Warn("nonlinearity correction degenerate",
			slog.Int("iteration", i),
			slog.Int("pixels", stats.Degenerate),
		)
	}

	it := Iteration{
		Index:     i,
		Timestamp: time.Now(),
		Axis:      s.axis,
		Corrected: raw,
	}
	if s.params.Outputs.Final {
		if it.Final, err = demodulate(i, raw, s.pnScaled); err != nil {
			return err
		}
	}

	if err = s.deps.Sink.Iteration(context.WithoutCancel(ctx), record, it); err != nil {
		return fmt.Errorf("output sink: %w", err)
	}

	s.logger.Debug("iteration done", slog.Int("iteration", i), slog.Float64("baseline", stats.Baseline))
	return nil
}

// demodulate multiplies a corrected spectrum by the interpolated PN spectrum
func demodulate(i int, corrected, pnScaled []float64) ([]float64, error) {
	final, err := spectrum.Multiply(corrected, pnScaled)
	if err != nil {
		return nil, fmt.Errorf("demodulating iteration %d: %w", i, err)
	}
	return final, nil
}

// cleanup releases every per-session resource acquired by run
func (s *Session) cleanup(ctx context.Context, record spectrum.ScanSession, integrationSet, sinkBegun, waveformOn bool) error {
	var errs []error

	if waveformOn {
		if err := do(ctx, s.callTimeout, s.deps.Waveform.Stop); err != nil {
			errs = append(errs, driver.NewDeviceError(deviceWaveform, "stop", err))
		}
	}

	s.deps.Corrector.Reset()

	if integrationSet {
		if err := do(ctx, s.callTimeout, func(ctx context.Context) error {
			return s.deps.Spectrometer.SetIntegrationTime(ctx, spectrometer.IdleIntegrationTime)
		}); err != nil {
			errs = append(errs, driver.NewDeviceError(deviceSpectrometer, "reset integration time", err))
		}
	}

	s.axis = nil
	s.pnScaled = nil

	if sinkBegun {
		if err := s.deps.Sink.End(context.WithoutCancel(ctx), record); err != nil {
			errs = append(errs, fmt.Errorf("output sink: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (s *Session) record(start time.Time) spectrum.ScanSession {
	return spectrum.ScanSession{
		ID:              s.id,
		StartTime:       start,
		State:           StatePreparing.String(),
		SpectrometerID:  s.params.SpectrometerID,
		ModulationMHz:   s.params.ModulationMHz,
		PNBitLength:     s.params.PNBitLength,
		IntegrationTime: s.params.IntegrationTime,
		Repetitions:     s.params.Repetitions,
		Label:           s.params.Label,
		Outputs:         s.params.Outputs,
	}
}
