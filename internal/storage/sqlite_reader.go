package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

// ReaderOption configures a frame reader
type ReaderOption func(r *SqliteFrameReader)

// WithIterationRange limits the reader to iterations from first to last, inclusive
func WithIterationRange(first, last int) ReaderOption {
	return func(r *SqliteFrameReader) {
		r.first = &first
		r.last = &last
	}
}

// newSqliteFrameReader creates a new frame reader for a session, applying optional filters.
func newSqliteFrameReader(ctx context.Context, db *sql.DB, sessionID string, kind spectrum.FrameKind, opts ...ReaderOption,
) (*SqliteFrameReader, error) {
	fr := &SqliteFrameReader{
		db:        db,
		sessionID: sessionID,
		kind:      kind,
	}
	for _, opt := range opts {
		opt(fr)
	}
	if err := fr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return fr, nil
}

// SqliteFrameReader iterates over the frames of one kind stored for a session. Rows are
// grouped into a frame until the iteration number changes.
type SqliteFrameReader struct {
	db *sql.DB

	sessionID string
	session   *spectrum.ScanSession
	kind      spectrum.FrameKind
	numFrames int
	pixels    int

	first *int // Optional first iteration
	last  *int // Optional last iteration

	currentFrame    *spectrum.Frame
	nextSample      sampleData // First sample of next frame
	nextSampleValid bool
	rows            *sql.Rows
	err             error
}

func (fr *SqliteFrameReader) init(ctx context.Context) error {
	if fr.db == nil {
		return errors.New("database connection required")
	}
	if fr.sessionID == "" {
		return errors.New("session ID required")
	}
	switch fr.kind {
	case spectrum.FrameRaw, spectrum.FrameFinal, spectrum.FramePNSpectrum:
	default:
		return fmt.Errorf("unknown frame kind %q", fr.kind)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: fr.loadSession},
		{msg: "initializing filters", fn: fr.initFilters},
		{msg: "initializing query", fn: fr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (fr *SqliteFrameReader) loadSession(ctx context.Context) (err error) {
	stmt, err := fr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	fr.session, err = scanSession(stmt.QueryRowContext(ctx, fr.sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, fr.sessionID)
	}
	return err
}

func (fr *SqliteFrameReader) initFilters(ctx context.Context) (err error) {
	if fr.first != nil && fr.last != nil {
		if *fr.first > *fr.last {
			return fmt.Errorf("first iteration %d is after last iteration %d", *fr.first, *fr.last)
		}
	}

	stmt, err := fr.db.PrepareContext(ctx, selectIterationRangeSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var first, last, count int
	if err = stmt.QueryRowContext(ctx, fr.sessionID, string(fr.kind)).Scan(&first, &last, &count); err != nil {
		return fmt.Errorf("scanning filters data: %w", err)
	}

	if fr.first == nil {
		fr.first = &first
	}
	if fr.last == nil {
		fr.last = &last
	}
	fr.numFrames = count
	return nil
}

func (fr *SqliteFrameReader) initQuery(ctx context.Context) (err error) {
	stmt, err := fr.db.PrepareContext(ctx, selectSpectraSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if fr.rows, err = stmt.QueryContext(ctx, fr.sessionID, string(fr.kind), *fr.first, *fr.last); err != nil {
		return err
	}
	return nil
}

func (fr *SqliteFrameReader) scanSample() (sampleData, error) {
	var sample sampleData
	if err := fr.rows.Scan(&sample.Iteration, &sample.Timestamp, &sample.Pixel, &sample.Shift, &sample.Value); err != nil {
		return sampleData{}, fmt.Errorf("scanning sample: %w", err)
	}
	return sample, nil
}

func (fr *SqliteFrameReader) newFrame(sample sampleData) *spectrum.Frame {
	f := &spectrum.Frame{
		Iteration: sample.Iteration,
		Kind:      fr.kind,
		Timestamp: sample.Timestamp,
		Axis:      make([]float64, 0, fr.pixels),
		Values:    make([]float64, 0, fr.pixels),
	}
	f.Axis = append(f.Axis, sample.Shift)
	f.Values = append(f.Values, sample.Value)
	return f
}

// Session returns the session the frames belong to
func (fr *SqliteFrameReader) Session() *spectrum.ScanSession {
	return fr.session
}

// Len returns the number of iterations stored for the session and kind, ignoring the range filter
func (fr *SqliteFrameReader) Len() int {
	return fr.numFrames
}

// Next advances to the next frame. It returns false when there are no more frames or an
// error occurred; Error tells them apart.
func (fr *SqliteFrameReader) Next(ctx context.Context) bool {
	if fr.err != nil || fr.rows == nil {
		return false
	}

	fr.currentFrame = nil
	if fr.nextSampleValid {
		fr.currentFrame = fr.newFrame(fr.nextSample)
		fr.nextSampleValid = false
	}

	for {
		select {
		case <-ctx.Done():
			fr.err = ctx.Err()
			return false
		default:
		}

		if !fr.rows.Next() {
			if fr.currentFrame != nil {
				fr.err = ErrNoData
				return true
			}
			return false
		}

		var sample sampleData
		if sample, fr.err = fr.scanSample(); fr.err != nil {
			return false
		}

		if fr.currentFrame == nil {
			fr.currentFrame = fr.newFrame(sample)
			continue
		}

		// Iteration rolled over - complete current frame
		if sample.Iteration != fr.currentFrame.Iteration {
			if fr.pixels == 0 {
				fr.pixels = len(fr.currentFrame.Values)
			}
			fr.nextSample = sample
			fr.nextSampleValid = true
			return true
		}

		fr.currentFrame.Axis = append(fr.currentFrame.Axis, sample.Shift)
		fr.currentFrame.Values = append(fr.currentFrame.Values, sample.Value)
	}
}

func (fr *SqliteFrameReader) Current() *spectrum.Frame {
	return fr.currentFrame
}

func (fr *SqliteFrameReader) Error() error {
	if fr.err != nil && !errors.Is(fr.err, ErrNoData) {
		return fr.err
	}
	if fr.rows != nil {
		return fr.rows.Err()
	}
	return nil
}

func (fr *SqliteFrameReader) Close() error {
	if fr.rows != nil {
		err := fr.rows.Close()
		fr.currentFrame = nil
		fr.nextSampleValid = false
		fr.rows = nil
		return err
	}
	return nil
}

// ReadAll drains a reader into a slice and closes it
func ReadAll(ctx context.Context, fr *SqliteFrameReader) (frames []spectrum.Frame, err error) {
	defer closeWithError(fr, &err)

	for fr.Next(ctx) {
		frames = append(frames, *fr.Current())
	}
	if err = fr.Error(); err != nil {
		return nil, err
	}
	return frames, nil
}
