package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/api"
	"github.com/roman-kulish/pn-raman/internal/export"
	"github.com/roman-kulish/pn-raman/internal/laser"
	"github.com/roman-kulish/pn-raman/internal/pn"
	"github.com/roman-kulish/pn-raman/internal/spectrometer"
	"github.com/roman-kulish/pn-raman/internal/spectrometer/seabreeze"
	"github.com/roman-kulish/pn-raman/internal/spectrometer/sim"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
	"github.com/roman-kulish/pn-raman/internal/storage"
	"github.com/roman-kulish/pn-raman/internal/waveform"
)

const progressInterval = 5 * time.Second

// Run wires the configured devices and sinks into a controller, then either serves the HTTP
// API until ctx is done or runs the configured scan once.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	// a corrupted polynomial table must abort startup
	pn.MustGenerateAll()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}()

	spec, closer, err := createSpectrometer(ctx, &config.Spectrometer, logger)
	if err != nil {
		return fmt.Errorf("failed to create spectrometer: %w", err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	gen, closer, err := createWaveform(ctx, &config.Waveform, logger)
	if err != nil {
		return fmt.Errorf("failed to create waveform generator: %w", err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	laserCtl, err := createLaser(ctx, &config.Laser, logger)
	if err != nil {
		return fmt.Errorf("failed to create laser controller: %w", err)
	}

	sink, store, err := createSinks(&config.Outputs, logger)
	if err != nil {
		return fmt.Errorf("failed to create outputs: %w", err)
	}
	if store != nil {
		closers = append(closers, store)
	}

	synth, err := spectrum.NewSynthesizer(spectrum.WithSamplesPerBit(config.Spectrometer.SamplesPerBit))
	if err != nil {
		return fmt.Errorf("failed to create synthesizer: %w", err)
	}

	deps := acquisition.Deps{
		Spectrometer: spec,
		Synthesizer:  synth,
		Sink:         sink,
		LaserNM:      config.Spectrometer.LaserWavelength,
	}
	if gen != nil {
		deps.Waveform = gen
	}

	controller, err := acquisition.NewController(deps,
		acquisition.WithControllerLogger(logger),
		acquisition.WithDeviceTimeout(config.Settings.CallTimeout),
		acquisition.WithSessionOptions(
			acquisition.WithLogger(logger),
			acquisition.WithCallTimeout(config.Settings.CallTimeout),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer func() {
		if cerr := controller.Close(context.WithoutCancel(ctx)); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if config.Server.Listen != "" {
		options := []func(s *api.Server){
			api.WithLogger(logger),
			api.WithDefaults(config.Scan),
		}
		if laserCtl != nil {
			options = append(options, api.WithLaser(laserCtl))
		}
		if store != nil {
			options = append(options, api.WithStore(store))
		}
		return api.New(controller, options...).Serve(ctx, config.Server.Listen)
	}

	return runScan(ctx, controller, config.Scan, logger)
}

// runScan runs one session to completion, logging progress. Cancelling ctx cancels the session.
func runScan(ctx context.Context, controller *acquisition.Controller, params acquisition.Params, logger *slog.Logger) error {
	session, err := controller.StartScan(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.Handle().Done():
			res, err := session.Handle().Wait(context.WithoutCancel(ctx))
			if err != nil {
				return fmt.Errorf("scan %s %s: %w", res.SessionID, res.State, err)
			}
			logger.Info("scan finished",
				slog.String("sessionID", res.SessionID),
				slog.String("state", res.State.String()),
				slog.String("iterations", humanize.Comma(int64(res.Completed))),
			)
			return nil

		case now := <-ticker.C:
			p := session.Progress()
			logger.Info("scan progress",
				slog.String("sessionID", session.ID()),
				slog.String("completed", fmt.Sprintf("%s/%s", humanize.Comma(int64(p.Completed)), humanize.Comma(int64(p.Total)))),
				slog.String("elapsed", humanize.FtoaWithDigits(p.Estimate(now)*100, 1)+"%"),
				slog.String("started", humanize.Time(p.StartedAt)),
			)
		}
	}
}

// closerFunc adapts a shutdown function to io.Closer
type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// createSpectrometer returns the driver and, for helper-backed drivers, the closer that stops
// the helper. Closing a device through the driver leaves the helper running.
func createSpectrometer(ctx context.Context, config *SpectrometerConfig, logger *slog.Logger) (spectrometer.Driver, io.Closer, error) {
	switch config.Driver {
	case SpectrometerSim:
		return sim.New(sim.WithPeaks(config.LaserWavelength, sim.DefaultPeaks...)), nil, nil

	case SpectrometerSeabreeze:
		d, err := seabreeze.Start(ctx, config.BridgePath, config.BridgeArgs, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("starting seabreeze bridge: %w", err)
		}
		return d, closerFunc(d.Shutdown), nil

	default:
		return nil, nil, fmt.Errorf("unknown spectrometer driver '%s'", config.Driver)
	}
}

func createWaveform(ctx context.Context, config *WaveformConfig, logger *slog.Logger) (waveform.Generator, io.Closer, error) {
	switch config.Driver {
	case WaveformNone:
		return nil, nil, nil

	case WaveformSim:
		return waveform.NewSimulator(), nil, nil

	case WaveformDAx22000:
		d, err := waveform.StartDAx22000(ctx, config.BridgePath, config.BridgeArgs, logger,
			waveform.WithClock(config.ClockHz),
			waveform.WithLevel(config.Level),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("starting DAx22000 bridge: %w", err)
		}

		cards, err := d.CardCount(ctx)
		if err != nil {
			_ = d.Close()
			return nil, nil, fmt.Errorf("counting DAx22000 cards: %w", err)
		}
		if cards == 0 {
			_ = d.Close()
			return nil, nil, errors.New("no DAx22000 card found")
		}
		logger.Info("waveform generator ready", slog.Int("cards", cards))
		return d, d, nil

	default:
		return nil, nil, fmt.Errorf("unknown waveform driver '%s'", config.Driver)
	}
}

func createLaser(ctx context.Context, config *LaserConfig, logger *slog.Logger) (*laser.Controller, error) {
	if config.Port == "" {
		return nil, nil
	}

	c, err := laser.New(config.Port, laser.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if config.DutyCycle != nil {
		if err = c.SetDutyCycle(ctx, *config.DutyCycle); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func createSinks(config *OutputsConfig, logger *slog.Logger) (acquisition.Sink, *storage.SqliteStore, error) {
	var sinks export.MultiSink

	if config.Text {
		text, err := export.NewTextSink(config.Directory, export.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, text)
	}

	var store *storage.SqliteStore
	if config.Sqlite != "" {
		store = storage.NewSqliteStore(config.Sqlite, storage.WithLogger(logger))
		sinks = append(sinks, store)
	}

	return sinks, store, nil
}
