package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/spectrometer/sim"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
	"github.com/roman-kulish/pn-raman/internal/waveform"
)

const (
	SpectrometerSim       = "sim"
	SpectrometerSeabreeze = "seabreeze"

	WaveformNone     = "none"
	WaveformSim      = "sim"
	WaveformDAx22000 = "dax22000"

	defaultOutputDir = "data"
)

// Config represents the main application configuration
type Config struct {
	Settings     Settings           `yaml:"settings"`
	Spectrometer SpectrometerConfig `yaml:"spectrometer"`
	Waveform     WaveformConfig     `yaml:"waveform"`
	Laser        LaserConfig        `yaml:"laser"`
	Scan         acquisition.Params `yaml:"scan"`
	Outputs      OutputsConfig      `yaml:"outputs"`
	Server       ServerConfig       `yaml:"server"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel    slog.Level    `yaml:"logLevel"`
	CallTimeout time.Duration `yaml:"callTimeout"` // bound on every device call, 0 waits forever
}

// SpectrometerConfig selects and configures the spectrometer driver
type SpectrometerConfig struct {
	Driver          string   `yaml:"driver"`          // sim or seabreeze
	BridgePath      string   `yaml:"bridgePath"`      // helper binary, looked up in PATH when empty
	BridgeArgs      []string `yaml:"bridgeArgs"`      // extra helper arguments
	LaserWavelength float64  `yaml:"laserWavelength"` // excitation wavelength in nm
	SamplesPerBit   int      `yaml:"samplesPerBit"`   // PN spectrum synthesis resolution
}

// WaveformConfig selects and configures the arbitrary waveform generator
type WaveformConfig struct {
	Driver     string   `yaml:"driver"` // none, sim or dax22000
	BridgePath string   `yaml:"bridgePath"`
	BridgeArgs []string `yaml:"bridgeArgs"`
	ClockHz    float64  `yaml:"clockHz"`
	Level      uint16   `yaml:"level"`
}

// LaserConfig represents the serial PWM laser controller settings
type LaserConfig struct {
	Port      string   `yaml:"port"`      // e.g. ttyUSB0 or COM2, disabled when empty
	DutyCycle *float64 `yaml:"dutyCycle"` // applied at startup when set
}

// OutputsConfig represents where session products are written
type OutputsConfig struct {
	Directory string `yaml:"directory"` // text files, disabled when Text is false
	Text      bool   `yaml:"text"`
	Sqlite    string `yaml:"sqlite"` // database path, disabled when empty
}

// ServerConfig represents the HTTP control API settings
type ServerConfig struct {
	Listen string `yaml:"listen"` // address to serve on, a single scan is run when empty
}

// DefaultConfig returns the configuration used for every field the file leaves out
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Spectrometer: SpectrometerConfig{
			Driver:          SpectrometerSim,
			LaserWavelength: spectrum.DefaultLaserWavelength,
			SamplesPerBit:   spectrum.DefaultSamplesPerBit,
		},
		Waveform: WaveformConfig{
			Driver:  WaveformNone,
			ClockHz: waveform.DefaultClockHz,
			Level:   waveform.HighLevel,
		},
		Scan: acquisition.Params{
			IntegrationTime: 100 * time.Millisecond,
			Repetitions:     1,
			ModulationMHz:   100,
			PNBitLength:     128,
			Outputs:         spectrum.Outputs{Final: true},
		},
		Outputs: OutputsConfig{
			Directory: defaultOutputDir,
			Text:      true,
		},
	}
}

// LoadConfig reads the YAML configuration file at path over DefaultConfig and validates it
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(p)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result
func ParseConfig(p []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(p, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if config.Scan.SpectrometerID == "" && config.Spectrometer.Driver == SpectrometerSim {
		config.Scan.SpectrometerID = sim.DefaultID
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks driver selections and the settings they need. Scan parameters are only
// checked for a single scan run; the server validates each request instead.
func (c *Config) Validate() error {
	if c.Settings.CallTimeout < 0 {
		return fmt.Errorf("settings.callTimeout must not be negative: %s", c.Settings.CallTimeout)
	}

	switch c.Spectrometer.Driver {
	case SpectrometerSim, SpectrometerSeabreeze:
	default:
		return fmt.Errorf("spectrometer.driver: unknown driver '%s'", c.Spectrometer.Driver)
	}
	if !(c.Spectrometer.LaserWavelength > 0) {
		return fmt.Errorf("spectrometer.laserWavelength must be positive: %g", c.Spectrometer.LaserWavelength)
	}

	switch c.Waveform.Driver {
	case WaveformNone, WaveformSim:
	case WaveformDAx22000:
		if !(c.Waveform.ClockHz > 0) {
			return fmt.Errorf("waveform.clockHz must be positive: %g", c.Waveform.ClockHz)
		}
		if c.Waveform.Level == 0 || c.Waveform.Level > waveform.MaxLevel {
			return fmt.Errorf("waveform.level must be within 1-%d: %d", waveform.MaxLevel, c.Waveform.Level)
		}
	default:
		return fmt.Errorf("waveform.driver: unknown driver '%s'", c.Waveform.Driver)
	}

	if c.Laser.DutyCycle != nil {
		if c.Laser.Port == "" {
			return fmt.Errorf("laser.dutyCycle is set but laser.port is not")
		}
		if d := *c.Laser.DutyCycle; !(d >= 0 && d <= 100) {
			return fmt.Errorf("laser.dutyCycle must be within 0-100: %g", d)
		}
	}

	if c.Outputs.Text && c.Outputs.Directory == "" {
		return fmt.Errorf("outputs.directory is required for text outputs")
	}

	if c.Server.Listen == "" {
		if err := c.Scan.Validate(); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if !c.Scan.Outputs.Any() {
			return fmt.Errorf("scan.outputs: no output selected")
		}
		if !c.Outputs.Text && c.Outputs.Sqlite == "" {
			return fmt.Errorf("outputs: neither text nor sqlite outputs are enabled")
		}
	}
	return nil
}
