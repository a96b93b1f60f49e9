// Package seabreeze drives Ocean Optics spectrometers through the seabreeze bridge helper
package seabreeze

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/pn-raman/internal/bridge"
	"github.com/roman-kulish/pn-raman/internal/driver"
	"github.com/roman-kulish/pn-raman/internal/spectrometer"
)

const (
	Runtime = "seabreeze-bridge"
	Device  = "seabreeze"
)

// Caller is the request/response transport to the helper
type Caller interface {
	Call(ctx context.Context, command string, args ...string) (string, error)
	Close() error
}

func WithLogger(logger *slog.Logger) func(d *Driver) {
	return func(d *Driver) {
		d.logger = logger.With(slog.String("device", Device))
	}
}

// Driver implements spectrometer.Driver over the bridge protocol
type Driver struct {
	client Caller
	logger *slog.Logger
}

func New(client Caller, options ...func(d *Driver)) *Driver {
	d := &Driver{
		client: client,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Start locates the helper binary, spawns it and returns a driver connected to it.
// An empty path falls back to a PATH lookup of Runtime.
func Start(ctx context.Context, path string, args []string, logger *slog.Logger) (*Driver, error) {
	if path == "" {
		var err error
		if path, err = driver.FindRuntime(Runtime); err != nil {
			return nil, fmt.Errorf("error finding runtime: %w", err)
		}
	}

	client, err := bridge.Start(ctx, Device, path, args, bridge.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return New(client, WithLogger(logger)), nil
}

func (d *Driver) Devices(ctx context.Context) ([]spectrometer.DeviceInfo, error) {
	payload, err := d.client.Call(ctx, "devices")
	if err != nil {
		return nil, err
	}

	// "<id>:<model>:<pixels>" entries
	var out []spectrometer.DeviceInfo
	for _, entry := range strings.Fields(payload) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid device entry %q", entry)
		}
		pixels, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid pixel count in %q: %w", entry, err)
		}
		out = append(out, spectrometer.DeviceInfo{ID: parts[0], Model: parts[1], Pixels: pixels})
	}
	return out, nil
}

func (d *Driver) Open(ctx context.Context, id string) error {
	if strings.ContainsAny(id, " \t\n") {
		return driver.NewConfigError(fmt.Sprintf("invalid spectrometer id %q", id))
	}
	if _, err := d.client.Call(ctx, "open", id); err != nil {
		return err
	}
	d.logger.Info("spectrometer opened", slog.String("deviceID", id))
	return nil
}

// Close closes the open device. The helper keeps running so another device can be opened.
func (d *Driver) Close(ctx context.Context) error {
	_, err := d.client.Call(ctx, "close")
	return err
}

// Shutdown stops the helper process
func (d *Driver) Shutdown() error {
	return d.client.Close()
}

func (d *Driver) SetIntegrationTime(ctx context.Context, t time.Duration) error {
	_, err := d.client.Call(ctx, "integration", strconv.FormatInt(t.Microseconds(), 10))
	return err
}

func (d *Driver) PixelCount(ctx context.Context) (int, error) {
	payload, err := d.client.Call(ctx, "pixels")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(payload)
	if err != nil {
		return 0, fmt.Errorf("invalid pixel count %q: %w", payload, err)
	}
	return n, nil
}

func (d *Driver) Wavelengths(ctx context.Context) ([]float64, error) {
	return d.floats(ctx, "wavelengths")
}

func (d *Driver) Spectrum(ctx context.Context) ([]float64, error) {
	return d.floats(ctx, "spectrum")
}

func (d *Driver) NonlinearityCoefficients(ctx context.Context) ([]float64, error) {
	return d.floats(ctx, "nonlinearity")
}

func (d *Driver) DarkPixelIndices(ctx context.Context) ([]int, error) {
	payload, err := d.client.Call(ctx, "dark")
	if err != nil {
		return nil, err
	}
	return bridge.ParseInts(payload)
}

func (d *Driver) floats(ctx context.Context, command string) ([]float64, error) {
	payload, err := d.client.Call(ctx, command)
	if err != nil {
		return nil, err
	}
	v, err := bridge.ParseFloats(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return v, nil
}
