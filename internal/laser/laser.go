// Package laser sets the excitation laser power through a serial PWM controller
package laser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/roman-kulish/pn-raman/internal/driver"
)

const Device = "laser"

// PortPath turns a port name such as "ttyUSB0" or "COM2" into the device path of the platform.
// Absolute paths are returned unchanged.
func PortPath(port string) string {
	if filepath.IsAbs(port) {
		return port
	}
	if runtime.GOOS == "windows" {
		return `\\.\` + port
	}
	return "/dev/" + port
}

// Frame encodes a duty cycle with the controller's start and end markers
func Frame(percent float64) string {
	return fmt.Sprintf("<%f>", percent)
}

func WithLogger(logger *slog.Logger) func(c *Controller) {
	return func(c *Controller) {
		c.logger = logger.With(slog.String("device", Device), slog.String("port", c.path))
	}
}

// Controller writes duty cycles to the serial port. The port is opened for every write.
type Controller struct {
	path string

	mu   sync.Mutex
	last *float64

	logger *slog.Logger
}

func New(port string, options ...func(c *Controller)) (*Controller, error) {
	if port == "" {
		return nil, driver.NewConfigError("laser port is not set")
	}

	c := &Controller{
		path:   PortPath(port),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// Path returns the device path written to
func (c *Controller) Path() string {
	return c.path
}

// SetDutyCycle sets the laser power as a percentage of full scale
func (c *Controller) SetDutyCycle(ctx context.Context, percent float64) error {
	if !(percent >= 0 && percent <= 100) {
		return driver.NewConfigError(fmt.Sprintf("duty cycle %g outside 0-100", percent))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(Frame(percent)); err != nil {
		return driver.NewDeviceError(Device, "set duty cycle", err)
	}

	c.last = &percent
	c.logger.Info("duty cycle set", slog.Float64("percent", percent))
	return nil
}

// DutyCycle returns the last duty cycle written, if any
func (c *Controller) DutyCycle() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == nil {
		return 0, false
	}
	return *c.last, true
}

func (c *Controller) write(frame string) (err error) {
	f, err := os.OpenFile(c.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("error opening port: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing port: %w", cerr)
		}
	}()

	if _, err = io.WriteString(f, frame); err != nil {
		return fmt.Errorf("error writing port: %w", err)
	}
	return nil
}
