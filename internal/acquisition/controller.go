package acquisition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/pn-raman/internal/driver"
	"github.com/roman-kulish/pn-raman/internal/spectrometer"
)

var (
	// ErrSessionActive is returned when a scan is requested while another one runs on the device
	ErrSessionActive = errors.New("a session is already active")

	// ErrNoSession is returned when there is no session to act on
	ErrNoSession = errors.New("no session")
)

// ControllerOption configures a Controller
type ControllerOption func(c *Controller)

func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithSessionOptions are applied to every session the controller starts
func WithSessionOptions(options ...func(s *Session)) ControllerOption {
	return func(c *Controller) {
		c.sessionOptions = append(c.sessionOptions, options...)
	}
}

// WithDeviceTimeout bounds the device calls made by the controller itself
func WithDeviceTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.callTimeout = d
	}
}

// Controller owns one spectrometer and its corrector and allows at most one session at a time
type Controller struct {
	deps           Deps
	sessionOptions []func(s *Session)
	callTimeout    time.Duration

	mu       sync.Mutex
	deviceID string
	current  *Session

	logger *slog.Logger
}

// NewController creates a controller. deps.Corrector is created when nil.
func NewController(deps Deps, options ...ControllerOption) (*Controller, error) {
	if deps.Spectrometer == nil {
		return nil, driver.NewConfigError("no spectrometer driver")
	}
	if deps.Corrector == nil {
		deps.Corrector = spectrometer.NewCorrector()
	}

	c := &Controller{
		deps:   deps,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// Devices lists the spectrometers visible to the driver
func (c *Controller) Devices(ctx context.Context) ([]spectrometer.DeviceInfo, error) {
	devices, err := call(ctx, c.callTimeout, c.deps.Spectrometer.Devices)
	if err != nil {
		return nil, driver.NewDeviceError(deviceSpectrometer, "devices", err)
	}
	return devices, nil
}

// Open opens the spectrometer and loads its dark pixel indices and nonlinearity coefficients
// into the corrector
func (c *Controller) Open(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return ErrSessionActive
	}
	return c.openLocked(ctx, id)
}

// DeviceID returns the open spectrometer, empty when none is open
func (c *Controller) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

func (c *Controller) openLocked(ctx context.Context, id string) error {
	if id == "" {
		return driver.NewConfigError("no spectrometer selected")
	}
	if c.deviceID == id {
		return nil
	}

	sp := c.deps.Spectrometer
	if c.deviceID != "" {
		prev := c.deviceID
		c.deviceID = ""
		if err := do(ctx, c.callTimeout, sp.Close); err != nil {
			return driver.NewDeviceError(deviceSpectrometer, "close", err)
		}
		c.logger.Info("spectrometer closed", slog.String("deviceID", prev))
	}

	if err := do(ctx, c.callTimeout, func(ctx context.Context) error { return sp.Open(ctx, id) }); err != nil {
		return driver.NewDeviceError(deviceSpectrometer, "open", err)
	}

	dark, err := call(ctx, c.callTimeout, sp.DarkPixelIndices)
	if err != nil {
		return driver.NewDeviceError(deviceSpectrometer, "dark pixel indices", err)
	}
	coeffs, err := call(ctx, c.callTimeout, sp.NonlinearityCoefficients)
	if err != nil {
		return driver.NewDeviceError(deviceSpectrometer, "nonlinearity coefficients", err)
	}

	if err = c.deps.Corrector.SetDarkPixelIndices(dark); err != nil {
		return driver.NewDeviceError(deviceSpectrometer, "dark pixel indices", err)
	}
	if err = c.deps.Corrector.SetNonlinearityCoefficients(coeffs); err != nil {
		return driver.NewDeviceError(deviceSpectrometer, "nonlinearity coefficients", err)
	}
	c.deps.Corrector.Reset()

	c.deviceID = id
	c.logger.Info("spectrometer ready",
		slog.String("deviceID", id),
		slog.Int("darkPixels", len(dark)),
		slog.Int("nonlinearityOrder", len(coeffs)),
	)
	return nil
}

// StartScan opens params.SpectrometerID if needed and starts a session. The session runs
// until it finishes, is cancelled, or ctx is done.
func (c *Controller) StartScan(ctx context.Context, params Params) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return nil, ErrSessionActive
	}
	if err := c.openLocked(ctx, params.SpectrometerID); err != nil {
		return nil, err
	}

	s, err := NewSession(params, c.deps, c.sessionOptions...)
	if err != nil {
		return nil, err
	}

	c.current = s
	s.Start(ctx)

	c.logger.Info("scan started", slog.String("sessionID", s.ID()))
	return s, nil
}

// Current returns the running or most recent session, nil if none ran
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Cancel requests cancellation of the running session
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeLocked() {
		return ErrNoSession
	}
	c.current.Cancel()
	return nil
}

// Close cancels the running session, waits for it to unwind and closes the spectrometer
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		c.current.Cancel()
		if _, err := c.current.Handle().Wait(ctx); err != nil && ctx.Err() != nil {
			return err
		}
	}

	if c.deviceID == "" {
		return nil
	}
	c.deviceID = ""

	if err := do(ctx, c.callTimeout, c.deps.Spectrometer.Close); err != nil {
		return driver.NewDeviceError(deviceSpectrometer, "close", err)
	}
	return nil
}

func (c *Controller) activeLocked() bool {
	if c.current == nil {
		return false
	}
	_, done := c.current.Handle().Result()
	return !done
}
