package driver

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a hardware call does not complete within the configured bound
var ErrTimeout = errors.New("device call timed out")

// ConfigError is a custom error type for invalid or missing configuration (session parameters,
// unsupported PN lengths, device settings). It is always detected before any hardware side effect.
type ConfigError struct {
	msg string
	err error
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg: msg}
}

// WrapConfigError creates a ConfigError which unwraps to err
func WrapConfigError(msg string, err error) *ConfigError {
	return &ConfigError{msg: msg, err: err}
}

func (e *ConfigError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.err.Error())
	}
	return e.msg
}

func (e *ConfigError) Unwrap() error {
	return e.err
}

// DeviceError is a custom error type for hardware call failures (spectrometer, waveform
// generator, laser controller)
type DeviceError struct {
	Device string // device kind, e.g. "spectrometer"
	Op     string // failed operation, e.g. "spectrum"
	Err    error
}

func NewDeviceError(device, op string, err error) *DeviceError {
	return &DeviceError{Device: device, Op: op, Err: err}
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Device, e.Op, e.Err.Error())
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether any error in err's chain is a ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsDeviceError reports whether any error in err's chain is a DeviceError
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
