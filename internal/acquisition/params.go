package acquisition

import (
	"fmt"
	"time"

	"github.com/roman-kulish/pn-raman/internal/driver"
	"github.com/roman-kulish/pn-raman/internal/pn"
	"github.com/roman-kulish/pn-raman/internal/spectrometer"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

// MaxRepetitions bounds a single session
const MaxRepetitions = 100_000

// Params are the settings of one acquisition session
type Params struct {
	SpectrometerID  string           `yaml:"spectrometerID"`
	IntegrationTime time.Duration    `yaml:"integrationTime"`
	Repetitions     int              `yaml:"repetitions"`
	ModulationMHz   int              `yaml:"modulationMHz"`
	PNBitLength     int              `yaml:"pnBitLength"`
	Outputs         spectrum.Outputs `yaml:"outputs"`
	Label           string           `yaml:"label"`
}

// Validate checks that every parameter is present and in range
func (p Params) Validate() error {
	if p.SpectrometerID == "" {
		return driver.NewConfigError("no spectrometer selected")
	}
	if p.IntegrationTime < spectrometer.MinIntegrationTime || p.IntegrationTime > spectrometer.MaxIntegrationTime {
		return driver.NewConfigError(fmt.Sprintf("integration time %s outside %s-%s",
			p.IntegrationTime, spectrometer.MinIntegrationTime, spectrometer.MaxIntegrationTime))
	}
	if p.Repetitions < 1 || p.Repetitions > MaxRepetitions {
		return driver.NewConfigError(fmt.Sprintf("repetitions %d outside 1-%d", p.Repetitions, MaxRepetitions))
	}
	if p.ModulationMHz <= 0 {
		return driver.NewConfigError(fmt.Sprintf("modulation frequency must be positive, got %d MHz", p.ModulationMHz))
	}
	if !pn.IsSupported(p.PNBitLength) {
		return driver.WrapConfigError(fmt.Sprintf("PN bit length %d", p.PNBitLength), pn.ErrUnsupportedLength)
	}
	return nil
}

// needsPNSpectrum reports whether the session must synthesize the PN spectrum
func (p Params) needsPNSpectrum() bool {
	return p.Outputs.Final || p.Outputs.PNSpectrum
}
