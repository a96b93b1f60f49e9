package spectrum

import (
	"time"
)

// FrameKind identifies which product of an acquisition a frame carries
type FrameKind string

const (
	FrameRaw        FrameKind = "raw"    // dark and nonlinearity corrected spectrum
	FrameFinal      FrameKind = "final"  // corrected spectrum multiplied by the PN spectrum
	FramePNSpectrum FrameKind = "pn_fft" // interpolated PN spectrum, written once per session
)

// Outputs selects which products of a session are persisted
type Outputs struct {
	Raw        bool `json:"raw" yaml:"raw"`               // corrected spectra
	PNSpectrum bool `json:"pnSpectrum" yaml:"pnSpectrum"` // interpolated PN spectrum, written once
	Final      bool `json:"final" yaml:"final"`           // demodulated spectra
}

// Any reports whether at least one product is selected
func (o Outputs) Any() bool {
	return o.Raw || o.PNSpectrum || o.Final
}

// ScanSession represents a single acquisition session with a specific spectrometer.
// Each session captures metadata about when and how the acquisition was performed.
type ScanSession struct {
	ID              string        `json:"id"`                // Session UUID
	StartTime       time.Time     `json:"startTime"`         // When the session entered Preparing
	EndTime         *time.Time    `json:"endTime,omitempty"` // When the session reached a terminal state
	State           string        `json:"state"`             // Last known state
	SpectrometerID  string        `json:"spectrometerID"`    // Spectrometer identifier (e.g., serial number)
	ModulationMHz   int           `json:"modulationMHz"`     // PN modulation frequency
	PNBitLength     int           `json:"pnBitLength"`       // PN code length
	IntegrationTime time.Duration `json:"integrationTime"`   // Per-repetition integration time
	Repetitions     int           `json:"repetitions"`       // Requested repetitions
	Label           string        `json:"label,omitempty"`   // Free-form label, used as output base name
	Outputs         Outputs       `json:"outputs"`           // Products requested for the session
}

// Frame is one spectrum handed to an output sink
type Frame struct {
	Iteration int       `json:"iteration"` // Repetition index, 0 for the PN spectrum
	Kind      FrameKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Axis      []float64 `json:"axis"`   // Raman shift in cm^-1, shared by every frame of a session
	Values    []float64 `json:"values"` // One value per axis point
}
