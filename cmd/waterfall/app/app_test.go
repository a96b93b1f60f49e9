package app

import (
	"context"
	"flag"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
	"github.com/roman-kulish/pn-raman/internal/storage"
)

const testSessionID = "6f1c2a9e-3b4d-4e5f-8a7b-0c1d2e3f4a5b"

var testAxis = []float64{100, 300, 500, 700, 900, 1100, 1300, 1500}

func testFrames(n int) []spectrum.Frame {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	frames := make([]spectrum.Frame, n)
	for i := range frames {
		values := make([]float64, len(testAxis))
		for p := range values {
			values[p] = float64(i*len(testAxis) + p)
		}
		frames[i] = spectrum.Frame{
			Iteration: i + 1,
			Kind:      spectrum.FrameFinal,
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Axis:      testAxis,
			Values:    values,
		}
	}
	return frames
}

func recordTestSession(t *testing.T, path string, repetitions int) {
	t.Helper()
	ctx := context.Background()

	store := storage.NewSqliteStore(path)
	defer func() { require.NoError(t, store.Close()) }()

	session := spectrum.ScanSession{
		ID:              testSessionID,
		StartTime:       time.Now().Add(-time.Minute),
		State:           "preparing",
		SpectrometerID:  "SIM00001",
		ModulationMHz:   100,
		PNBitLength:     128,
		IntegrationTime: 100 * time.Millisecond,
		Repetitions:     repetitions,
		Label:           "cyclohexane",
		Outputs:         spectrum.Outputs{Raw: true, Final: true},
	}
	require.NoError(t, store.Begin(ctx, session))

	for _, f := range testFrames(repetitions) {
		require.NoError(t, store.Iteration(ctx, session, acquisition.Iteration{
			Index:     f.Iteration,
			Timestamp: f.Timestamp,
			Axis:      f.Axis,
			Corrected: f.Values,
			Final:     f.Values,
		}))
	}

	session.State = "completed"
	require.NoError(t, store.End(ctx, session))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "scans.db")
	recordTestSession(t, dbPath, 4)

	tt := []struct {
		name          string
		args          []string
		width, height int
	}{
		{
			name:   "annotated",
			args:   []string{"-k", "raw"},
			width:  defaultLeftBorder + minPlotWidth + defaultRightBorder,
			height: defaultTopBorder + minPlotHeight + defaultBottomBorder,
		},
		{
			name:   "plain range",
			args:   []string{"-no-annotations", "-first", "2", "-last", "3", "-theme", "thermal"},
			width:  minPlotWidth,
			height: 2 * int(math.Ceil(minPlotHeight/2.0)),
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			out := filepath.Join(dir, tc.name)
			args := append([]string{"-db", dbPath, "-s", testSessionID, "-o", out}, tc.args...)

			config, err := ParseConfig(flag.NewFlagSet("waterfall", flag.ContinueOnError), args)
			require.NoError(t, err)

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			require.NoError(t, Run(context.Background(), config, logger))

			f, err := os.Open(out + ".png")
			require.NoError(t, err)
			defer f.Close()

			img, err := png.Decode(f)
			require.NoError(t, err)
			assert.Equal(t, tc.width, img.Bounds().Dx())
			assert.Equal(t, tc.height, img.Bounds().Dy())
		})
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "scans.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	config := &Config{
		DBPath:     dbPath,
		SessionID:  testSessionID,
		Kind:       spectrum.FrameFinal,
		OutputFile: filepath.Join(dir, "out.png"),
		Format:     ImagePNG,
	}
	assert.Error(t, Run(context.Background(), config, logger), "missing database")

	recordTestSession(t, dbPath, 2)

	unknown := *config
	unknown.SessionID = "unknown"
	assert.ErrorIs(t, Run(context.Background(), &unknown, logger), storage.ErrNotFound)

	pn := *config
	pn.Kind = spectrum.FramePNSpectrum
	assert.Error(t, Run(context.Background(), &pn, logger), "no frames stored")
}

func TestParseConfig(t *testing.T) {
	parse := func(args ...string) (*Config, error) {
		fs := flag.NewFlagSet("waterfall", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		return ParseConfig(fs, args)
	}

	c, err := parse("-db", "scans.db", "-s", testSessionID, "-o", "out", "-f", "JPEG", "-min-intensity", "-5", "-theme", "marine")
	require.NoError(t, err)
	assert.Equal(t, "scans.db", c.DBPath)
	assert.Equal(t, testSessionID, c.SessionID)
	assert.Equal(t, spectrum.FrameFinal, c.Kind)
	assert.Equal(t, ImageFormat(ImageJPEG), c.Format)
	assert.Equal(t, MarineTheme, c.Theme)
	assert.Equal(t, "out.jpeg", c.OutputFile)
	require.NotNil(t, c.MinIntensity)
	assert.Equal(t, -5.0, *c.MinIntensity)
	assert.Nil(t, c.MaxIntensity)
	assert.Nil(t, c.FirstIter)

	tt := []struct {
		name string
		args []string
	}{
		{"no db", []string{"-s", testSessionID, "-o", "out"}},
		{"no session", []string{"-db", "scans.db", "-o", "out"}},
		{"no output", []string{"-db", "scans.db", "-s", testSessionID}},
		{"format", []string{"-db", "scans.db", "-s", testSessionID, "-o", "out", "-f", "gif"}},
		{"kind", []string{"-db", "scans.db", "-s", testSessionID, "-o", "out", "-k", "pn_fft"}},
		{"theme", []string{"-db", "scans.db", "-s", testSessionID, "-o", "out", "-theme", "neon"}},
		{"intensity", []string{"-db", "scans.db", "-s", testSessionID, "-o", "out", "-min-intensity", "5", "-max-intensity", "1"}},
		{"half range", []string{"-db", "scans.db", "-s", testSessionID, "-o", "out", "-first", "2"}},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(tc.args...)
			assert.Error(t, err)
		})
	}
}
