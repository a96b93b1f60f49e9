// Package storage persists acquisition sessions and their spectra
package storage

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

var (
	// ErrNoData is returned by the frame reader once all frames have been read
	ErrNoData = errors.New("no more data")

	// ErrNotFound is returned when a session does not exist
	ErrNotFound = errors.New("session not found")
)

var _ Store = (*SqliteStore)(nil)

// Store provides an interface for managing acquisition data storage operations.
// It receives session products as an acquisition.Sink and reads them back for
// analysis and rendering. All operations that write to the database should be
// considered atomic.
type Store interface {
	acquisition.Sink

	// Session retrieves a specific acquisition session by its ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Session UUID
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: ErrNotFound if the session does not exist, or if retrieval fails
	Session(ctx context.Context, id string) (session *spectrum.ScanSession, err error)

	// Sessions returns all acquisition sessions stored in the database.
	// Results are ordered by start time in ascending order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - sessions: Slice of pointers to session data
	//   - error: If retrieval fails or context is cancelled
	Sessions(ctx context.Context) (sessions []*spectrum.ScanSession, err error)

	// ReadFrames creates a reader over the frames of one kind recorded for a session,
	// in iteration order. The returned reader must be closed after use.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: Session UUID
	//   - kind: Which product to read (raw, final or the PN spectrum)
	//   - opts: Optional filters (WithIterationRange)
	//
	// Returns error if reader creation fails or session doesn't exist.
	ReadFrames(ctx context.Context, sessionID string, kind spectrum.FrameKind, opts ...ReaderOption) (*SqliteFrameReader, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}
