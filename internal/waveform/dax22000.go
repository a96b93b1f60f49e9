package waveform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/roman-kulish/pn-raman/internal/bridge"
	"github.com/roman-kulish/pn-raman/internal/driver"
	"github.com/roman-kulish/pn-raman/internal/pn"
)

const (
	Runtime = "dax22000-bridge"
	Device  = "DAx22000"
)

// Caller is the request/response transport to the helper
type Caller interface {
	Call(ctx context.Context, command string, args ...string) (string, error)
	Close() error
}

func WithLogger(logger *slog.Logger) func(d *DAx22000) {
	return func(d *DAx22000) {
		d.logger = logger.With(slog.String("device", Device))
	}
}

func WithClock(hz float64) func(d *DAx22000) {
	return func(d *DAx22000) {
		d.clockHz = hz
	}
}

func WithLevel(level uint16) func(d *DAx22000) {
	return func(d *DAx22000) {
		d.level = level
	}
}

// DAx22000 drives a Wavepond DAx22000 card through its bridge helper. The helper builds the
// looped segment from "start <clockHz> <samplesPerBit> <bits> <level>".
type DAx22000 struct {
	client  Caller
	clockHz float64
	level   uint16
	running atomic.Bool
	logger  *slog.Logger
}

func NewDAx22000(client Caller, options ...func(d *DAx22000)) *DAx22000 {
	d := &DAx22000{
		client:  client,
		clockHz: DefaultClockHz,
		level:   HighLevel,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// StartDAx22000 spawns the helper at path, or the Runtime found in PATH when path is empty
func StartDAx22000(ctx context.Context, path string, args []string, logger *slog.Logger, options ...func(d *DAx22000)) (*DAx22000, error) {
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
	return NewDAx22000(client, append([]func(*DAx22000){WithLogger(logger)}, options...)...), nil
}

func (d *DAx22000) CardCount(ctx context.Context) (int, error) {
	payload, err := d.client.Call(ctx, "cards")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(payload)
	if err != nil {
		return 0, fmt.Errorf("invalid card count %q: %w", payload, err)
	}
	return n, nil
}

func (d *DAx22000) Start(ctx context.Context, code pn.Code, modulationMHz float64) error {
	// validates alignment and level before touching the card
	seg, err := BuildSegment(code, modulationMHz, d.clockHz, d.level)
	if err != nil {
		return err
	}

	_, err = d.client.Call(ctx, "start",
		strconv.FormatFloat(seg.ClockHz, 'f', -1, 64),
		strconv.Itoa(seg.SamplesPerBit),
		code.String(),
		strconv.Itoa(int(d.level)),
	)
	if err != nil {
		return err
	}

	d.running.Store(true)
	d.logger.Info("waveform started",
		slog.Int("bits", code.Len()),
		slog.Float64("modulationMHz", modulationMHz),
		slog.Int("points", len(seg.Samples)),
	)
	return nil
}

func (d *DAx22000) Stop(ctx context.Context) error {
	if _, err := d.client.Call(ctx, "stop"); err != nil {
		return err
	}
	d.running.Store(false)
	d.logger.Info("waveform stopped")
	return nil
}

// Running reports whether the last Start was not followed by a Stop
func (d *DAx22000) Running() bool {
	return d.running.Load()
}

// Close releases the helper
func (d *DAx22000) Close() error {
	return d.client.Close()
}
