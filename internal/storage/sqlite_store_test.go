package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

func newTestStore(t *testing.T, options ...func(s *SqliteStore)) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "scans.db"), options...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSession(id string) spectrum.ScanSession {
	return spectrum.ScanSession{
		ID:              id,
		StartTime:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		State:           "preparing",
		SpectrometerID:  "SIM00001",
		ModulationMHz:   200,
		PNBitLength:     128,
		IntegrationTime: 250 * time.Millisecond,
		Repetitions:     3,
		Label:           "cyclohexane",
		Outputs:         spectrum.Outputs{Raw: true, PNSpectrum: true, Final: true},
	}
}

func iteration(i int, axis []float64) acquisition.Iteration {
	corrected := make([]float64, len(axis))
	final := make([]float64, len(axis))
	for p := range axis {
		corrected[p] = float64(i*100 + p)
		final[p] = corrected[p] / 2
	}
	return acquisition.Iteration{
		Index:     i,
		Timestamp: time.Date(2024, 3, 1, 10, 0, i, 0, time.UTC),
		Axis:      axis,
		Corrected: corrected,
		Final:     final,
	}
}

func recordSession(t *testing.T, s *SqliteStore, session spectrum.ScanSession, axis []float64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Begin(ctx, session))
	require.NoError(t, s.PNSpectrum(ctx, session, axis, []float64{0.5, 0.25, 0.125, 0.0625, 0.03125}[:len(axis)]))
	for i := 0; i < session.Repetitions; i++ {
		require.NoError(t, s.Iteration(ctx, session, iteration(i, axis)))
	}

	end := session.StartTime.Add(time.Minute)
	session.EndTime = &end
	session.State = "completed"
	require.NoError(t, s.End(ctx, session))
}

func TestSqliteStore_Session(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := testSession("a9c5e1f0-0000-4000-8000-000000000001")
	recordSession(t, s, session, []float64{100, 200, 300})

	got, err := s.Session(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, session.ID, got.ID)
	assert.True(t, session.StartTime.Equal(got.StartTime))
	require.NotNil(t, got.EndTime)
	assert.True(t, session.StartTime.Add(time.Minute).Equal(*got.EndTime))
	assert.Equal(t, "completed", got.State)
	assert.Equal(t, session.SpectrometerID, got.SpectrometerID)
	assert.Equal(t, 200, got.ModulationMHz)
	assert.Equal(t, 128, got.PNBitLength)
	assert.Equal(t, 250*time.Millisecond, got.IntegrationTime)
	assert.Equal(t, 3, got.Repetitions)
	assert.Equal(t, "cyclohexane", got.Label)
	assert.Equal(t, session.Outputs, got.Outputs)

	_, err = s.Session(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSqliteStore_Sessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	later := testSession("later")
	later.StartTime = later.StartTime.Add(time.Hour)
	later.Label = ""
	earlier := testSession("earlier")

	require.NoError(t, s.Begin(ctx, later))
	require.NoError(t, s.Begin(ctx, earlier))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "earlier", sessions[0].ID)
	assert.Equal(t, "later", sessions[1].ID)
	assert.Empty(t, sessions[1].Label)
	assert.Nil(t, sessions[1].EndTime)
	assert.Equal(t, "preparing", sessions[1].State)
}

func TestSqliteStore_Frames(t *testing.T) {
	// a batch size below the pixel count splits every frame over several statements
	s := newTestStore(t, WithMaxBatchSize(2))
	ctx := context.Background()

	axis := []float64{100, 200, 300, 400, 500}
	session := testSession("frames")
	recordSession(t, s, session, axis)

	fr, err := s.ReadFrames(ctx, session.ID, spectrum.FrameRaw)
	require.NoError(t, err)
	assert.Equal(t, 3, fr.Len())
	assert.Equal(t, session.ID, fr.Session().ID)

	frames, err := ReadAll(ctx, fr)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	for i, f := range frames {
		want := iteration(i, axis)
		assert.Equal(t, i, f.Iteration)
		assert.Equal(t, spectrum.FrameRaw, f.Kind)
		assert.True(t, want.Timestamp.Equal(f.Timestamp))
		assert.Equal(t, axis, f.Axis)
		assert.Equal(t, want.Corrected, f.Values)
	}

	fr, err = s.ReadFrames(ctx, session.ID, spectrum.FrameFinal, WithIterationRange(1, 2))
	require.NoError(t, err)
	frames, err = ReadAll(ctx, fr)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 1, frames[0].Iteration)
	assert.Equal(t, iteration(2, axis).Final, frames[1].Values)

	fr, err = s.ReadFrames(ctx, session.ID, spectrum.FramePNSpectrum)
	require.NoError(t, err)
	frames, err = ReadAll(ctx, fr)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []float64{0.5, 0.25, 0.125, 0.0625, 0.03125}, frames[0].Values)
}

func TestSqliteStore_OutputsSelectFrames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	axis := []float64{1, 2}
	session := testSession("final-only")
	session.Outputs = spectrum.Outputs{Final: true}
	require.NoError(t, s.Begin(ctx, session))
	require.NoError(t, s.Iteration(ctx, session, iteration(0, axis)))

	fr, err := s.ReadFrames(ctx, session.ID, spectrum.FrameRaw)
	require.NoError(t, err)
	frames, err := ReadAll(ctx, fr)
	require.NoError(t, err)
	assert.Empty(t, frames)

	fr, err = s.ReadFrames(ctx, session.ID, spectrum.FrameFinal)
	require.NoError(t, err)
	frames, err = ReadAll(ctx, fr)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestSqliteStore_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := testSession("errors")
	require.NoError(t, s.Begin(ctx, session))

	// primary key
	assert.Error(t, s.Begin(ctx, session))

	err := s.PNSpectrum(ctx, session, []float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, spectrum.ErrLengthMismatch)

	// frames need a recorded session
	assert.Error(t, s.Iteration(ctx, testSession("unknown"), iteration(0, []float64{1})))

	assert.ErrorIs(t, s.End(ctx, testSession("unknown")), ErrNotFound)

	_, err = s.ReadFrames(ctx, "unknown", spectrum.FrameRaw)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadFrames(ctx, session.ID, spectrum.FrameKind("bogus"))
	assert.Error(t, err)

	_, err = s.ReadFrames(ctx, session.ID, spectrum.FrameRaw, WithIterationRange(3, 1))
	assert.Error(t, err)
}

func TestSqliteStore_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scans.db")

	s := NewSqliteStore(path)
	require.NoError(t, s.Begin(context.Background(), testSession("close")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// a new store reads what the closed one wrote
	s = NewSqliteStore(path)
	t.Cleanup(func() { _ = s.Close() })
	sessions, err := s.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "close", sessions[0].ID)
}

func TestSqliteStore_ReadBeforeFirstSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = s.Session(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// the store still records sessions after the database was created by a read
	require.NoError(t, s.Begin(ctx, testSession("later")))
	sessions, err = s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}
