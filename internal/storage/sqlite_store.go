package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

// DefaultMaxBatchSize is the number of pixels inserted by a single statement
const DefaultMaxBatchSize = 1000

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) func(s *SqliteStore) {
	return func(s *SqliteStore) {
		s.logger = logger.With(slog.String("sink", "sqlite"), slog.String("path", s.dbPath))
	}
}

// WithMaxBatchSize caps the rows of one multi-row INSERT
func WithMaxBatchSize(n int) func(s *SqliteStore) {
	return func(s *SqliteStore) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath       string
	maxBatchSize int

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error

	logger *slog.Logger
}

// NewSqliteStore creates a new store backed by the Sqlite database at dbPath. Connections
// are opened and the schema is initialized on first use.
func NewSqliteStore(dbPath string, options ...func(s *SqliteStore)) *SqliteStore {
	s := &SqliteStore{
		dbPath:       dbPath,
		maxBatchSize: DefaultMaxBatchSize,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

// getReadDB opens the read-only connection. A database that does not exist yet is created
// with an empty schema first, so reads before the first session find no rows.
func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		if _, err := os.Stat(s.dbPath); errors.Is(err, fs.ErrNotExist) {
			if _, err = s.getWriteDB(); err != nil {
				s.readDBErr = fmt.Errorf("creating database: %w", err)
				return
			}
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// Begin records a new session
func (s *SqliteStore) Begin(ctx context.Context, session spectrum.ScanSession) (err error) {
	data, err := toSessionData(session)
	if err != nil {
		return err
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	_, err = stmt.ExecContext(
		ctx,
		data.ID,
		data.StartTime,
		data.State,
		data.SpectrometerID,
		data.ModulationMHz,
		data.PNBitLength,
		data.IntegrationUS,
		data.Repetitions,
		data.Label,
		data.Outputs,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Info("recording session", slog.String("sessionID", session.ID))
	return nil
}

// PNSpectrum stores the interpolated PN spectrum as iteration 0 of the pn_fft frames
func (s *SqliteStore) PNSpectrum(ctx context.Context, session spectrum.ScanSession, axis, magnitudes []float64) error {
	return s.storeFrame(ctx, session.ID, spectrum.Frame{
		Kind:      spectrum.FramePNSpectrum,
		Timestamp: time.Now(),
		Axis:      axis,
		Values:    magnitudes,
	})
}

// Iteration stores the products of one repetition selected by the session outputs.
// Raw and final frames of an iteration are written in one transaction.
func (s *SqliteStore) Iteration(ctx context.Context, session spectrum.ScanSession, it acquisition.Iteration) error {
	var frames []spectrum.Frame
	if session.Outputs.Raw {
		frames = append(frames, spectrum.Frame{
			Iteration: it.Index,
			Kind:      spectrum.FrameRaw,
			Timestamp: it.Timestamp,
			Axis:      it.Axis,
			Values:    it.Corrected,
		})
	}
	if session.Outputs.Final && it.Final != nil {
		frames = append(frames, spectrum.Frame{
			Iteration: it.Index,
			Kind:      spectrum.FrameFinal,
			Timestamp: it.Timestamp,
			Axis:      it.Axis,
			Values:    it.Final,
		})
	}
	return s.storeFrame(ctx, session.ID, frames...)
}

// End records the terminal state and end time of the session
func (s *SqliteStore) End(ctx context.Context, session spectrum.ScanSession) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, updateSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	end := time.Now()
	if session.EndTime != nil {
		end = *session.EndTime
	}

	result, err := stmt.ExecContext(ctx, end.UTC(), session.State, session.ID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, session.ID)
	}

	s.logger.Info("session recorded", slog.String("sessionID", session.ID), slog.String("state", session.State))
	return nil
}

func (s *SqliteStore) storeFrame(ctx context.Context, sessionID string, frames ...spectrum.Frame) (err error) {
	if len(frames) == 0 {
		return nil
	}
	for _, f := range frames {
		if len(f.Axis) != len(f.Values) {
			return fmt.Errorf("%s frame %d: %w", f.Kind, f.Iteration, spectrum.ErrLengthMismatch)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for _, f := range frames {
		timestamp := f.Timestamp.UTC()
		for start := 0; start < len(f.Values); start += s.maxBatchSize {
			end := min(start+s.maxBatchSize, len(f.Values))
			if err = s.insertBatch(ctx, tx, sessionID, f, timestamp, start, end); err != nil {
				return fmt.Errorf("batch inserting %s frame %d: %w", f.Kind, f.Iteration, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) insertBatch(ctx context.Context, tx *sql.Tx, sessionID string, f spectrum.Frame, timestamp time.Time, start, end int) error {
	values := make([]interface{}, 0, (end-start)*7)

	// Build batch insert query
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?)"

	var sb strings.Builder

	sb.WriteString(insertSpectraSQL)

	for i := start; i < end; i++ {
		values = append(values,
			sessionID,
			string(f.Kind),
			f.Iteration,
			timestamp,
			i,
			f.Axis[i],
			f.Values[i],
		)

		if i > start {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	_, err := tx.ExecContext(ctx, sb.String(), values...)
	return err
}

func (s *SqliteStore) Session(ctx context.Context, id string) (session *spectrum.ScanSession, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	session, err = scanSession(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return session, nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*spectrum.ScanSession, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *spectrum.ScanSession
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

// ReadFrames creates a reader over the frames of one kind recorded for a session. Each
// iteration is returned as one frame with pixels in order.
func (s *SqliteStore) ReadFrames(ctx context.Context, sessionID string, kind spectrum.FrameKind, opts ...ReaderOption) (*SqliteFrameReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteFrameReader(ctx, db, sessionID, kind, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			if err := runSQLCommand(s.writeDB, initIndexesSQL); err != nil {
				s.logger.Warn("creating indexes", slog.String("error", err.Error()))
			}

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
