package spectrometer

import (
	"context"
	"time"
)

const (
	// IdleIntegrationTime is applied after every session so the detector does not sit on a long exposure
	IdleIntegrationTime = 10 * time.Millisecond

	MinIntegrationTime = time.Millisecond
	MaxIntegrationTime = 10 * time.Minute
)

// DeviceInfo describes a spectrometer visible to a driver
type DeviceInfo struct {
	ID     string `json:"id"`     // Driver-specific identifier, usually the serial number
	Model  string `json:"model"`  // e.g. "QE-PRO"
	Pixels int    `json:"pixels"` // Number of detector pixels, 0 if unknown before open
}

// Driver is the spectrometer boundary. Every method may block on the hardware.
type Driver interface {
	Devices(ctx context.Context) ([]DeviceInfo, error)
	Open(ctx context.Context, id string) error
	Close(ctx context.Context) error

	SetIntegrationTime(ctx context.Context, d time.Duration) error
	PixelCount(ctx context.Context) (int, error)
	Wavelengths(ctx context.Context) ([]float64, error)
	Spectrum(ctx context.Context) ([]float64, error)
	DarkPixelIndices(ctx context.Context) ([]int, error)
	NonlinearityCoefficients(ctx context.Context) ([]float64, error)
}
