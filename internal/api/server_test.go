package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/driver"
	"github.com/roman-kulish/pn-raman/internal/spectrometer"
	"github.com/roman-kulish/pn-raman/internal/spectrometer/sim"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
	"github.com/roman-kulish/pn-raman/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLaser struct {
	mu   sync.Mutex
	last *float64
}

func (l *fakeLaser) SetDutyCycle(_ context.Context, pct float64) error {
	if pct < 0 || pct > 100 {
		return driver.NewConfigError("out of range")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = &pct
	return nil
}

func (l *fakeLaser) DutyCycle() (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return 0, false
	}
	return *l.last, true
}

var defaults = acquisition.Params{
	SpectrometerID:  "SIM00001",
	IntegrationTime: 5 * time.Millisecond,
	Repetitions:     2,
	ModulationMHz:   100,
	PNBitLength:     32,
	Outputs:         spectrum.Outputs{Final: true},
}

func newTestServer(t *testing.T, delay time.Duration, sink acquisition.Sink, options ...func(s *Server)) (*Server, *acquisition.Controller) {
	t.Helper()

	synth, err := spectrum.NewSynthesizer(spectrum.WithSamplesPerBit(8))
	require.NoError(t, err)

	c, err := acquisition.NewController(acquisition.Deps{
		Spectrometer: sim.New(sim.WithPixels(32), sim.WithDelay(delay)),
		Synthesizer:  synth,
		Sink:         sink,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	return New(c, append([]func(s *Server){WithDefaults(defaults)}, options...)...), c
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestServer_Devices(t *testing.T) {
	s, _ := newTestServer(t, 0, nil)

	w := do(t, s, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)

	devices := decode[[]spectrometer.DeviceInfo](t, w)
	require.Len(t, devices, 1)
	assert.Equal(t, "SIM00001", devices[0].ID)
	assert.Equal(t, 32, devices[0].Pixels)
}

func TestServer_ScanLifecycle(t *testing.T) {
	s, c := newTestServer(t, 0, nil)

	w := do(t, s, http.MethodGet, "/api/v1/scans/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/scans", ScanRequest{Label: "api", Repetitions: 3})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decode[startResponse](t, w).ID
	assert.NotEmpty(t, id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := c.Current().Handle().Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, acquisition.StateCompleted, res.State)

	w = do(t, s, http.MethodGet, "/api/v1/scans/current", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		ID       string `json:"id"`
		State    string `json:"state"`
		Label    string `json:"label"`
		Progress struct {
			Completed int     `json:"completed"`
			Total     int     `json:"total"`
			Fraction  float64 `json:"fraction"`
			Estimate  float64 `json:"estimate"`
		} `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, id, status.ID)
	assert.Equal(t, "completed", status.State)
	assert.Equal(t, "api", status.Label)
	assert.Equal(t, 3, status.Progress.Completed)
	assert.Equal(t, 3, status.Progress.Total)
	assert.Equal(t, 1.0, status.Progress.Fraction)
	assert.Equal(t, 1.0, status.Progress.Estimate)

	// nothing left to cancel
	w = do(t, s, http.MethodDelete, "/api/v1/scans/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ConflictAndCancel(t *testing.T) {
	s, c := newTestServer(t, 20*time.Millisecond, nil)

	w := do(t, s, http.MethodPost, "/api/v1/scans", ScanRequest{Repetitions: 10_000})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = do(t, s, http.MethodPost, "/api/v1/scans", ScanRequest{})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodDelete, "/api/v1/scans/current", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, _ := c.Current().Handle().Wait(ctx)
	assert.Equal(t, acquisition.StateCancelled, res.State)
	assert.Less(t, res.Completed, 10_000)
}

func TestServer_BadScanRequests(t *testing.T) {
	s, _ := newTestServer(t, 0, nil)

	tt := []struct {
		name string
		body any
	}{
		{"unsupported PN length", ScanRequest{PNBitLength: 48}},
		{"integration too short", map[string]any{"integrationMs": -5}},
		{"too many repetitions", ScanRequest{Repetitions: acquisition.MaxRepetitions + 1}},
		{"malformed", "not an object"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/v1/scans", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, w).Error)
		})
	}
}

func TestServer_Laser(t *testing.T) {
	s, _ := newTestServer(t, 0, nil)
	w := do(t, s, http.MethodPut, "/api/v1/laser", map[string]any{"dutyCycle": 10})
	assert.Equal(t, http.StatusNotFound, w.Code)

	l := &fakeLaser{}
	s, _ = newTestServer(t, 0, nil, WithLaser(l))

	w = do(t, s, http.MethodGet, "/api/v1/laser", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[laserRequest](t, w).DutyCycle)

	w = do(t, s, http.MethodPut, "/api/v1/laser", map[string]any{"dutyCycle": 42.5})
	require.Equal(t, http.StatusOK, w.Code)
	pct, ok := l.DutyCycle()
	assert.True(t, ok)
	assert.Equal(t, 42.5, pct)

	w = do(t, s, http.MethodPut, "/api/v1/laser", map[string]any{"dutyCycle": 120})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPut, "/api/v1/laser", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Sessions(t *testing.T) {
	st := storage.NewSqliteStore(filepath.Join(t.TempDir(), "scans.db"))
	t.Cleanup(func() { _ = st.Close() })

	s, c := newTestServer(t, 0, st, WithStore(st))

	w := do(t, s, http.MethodPost, "/api/v1/scans", ScanRequest{Label: "stored"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decode[startResponse](t, w).ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Current().Handle().Wait(ctx)
	require.NoError(t, err)

	w = do(t, s, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decode[[]spectrum.ScanSession](t, w)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, "completed", sessions[0].State)

	w = do(t, s, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stored", decode[spectrum.ScanSession](t, w).Label)

	w = do(t, s, http.MethodGet, "/api/v1/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScanRequest_Params(t *testing.T) {
	outputs := spectrum.Outputs{Raw: true}
	p := ScanRequest{IntegrationMS: 250, PNBitLength: 1024, Outputs: &outputs}.Params(defaults)

	assert.Equal(t, "SIM00001", p.SpectrometerID)
	assert.Equal(t, 250*time.Millisecond, p.IntegrationTime)
	assert.Equal(t, 2, p.Repetitions)
	assert.Equal(t, 100, p.ModulationMHz)
	assert.Equal(t, 1024, p.PNBitLength)
	assert.Equal(t, outputs, p.Outputs)
}
