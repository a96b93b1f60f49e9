// Package export persists acquisition products
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

// WithLogger sets the logger for the sink
func WithLogger(logger *slog.Logger) func(s *TextSink) {
	return func(s *TextSink) {
		s.logger = logger.With(slog.String("sink", "text"), slog.String("dir", s.dir))
	}
}

// TextSink writes every product to its own comma separated text file in dir:
//
//	<base>_raw_<i>.txt    corrected spectrum of iteration i
//	<base>_pn_fft.txt     interpolated PN spectrum
//	<base>_final_<i>.txt  demodulated spectrum of iteration i
//
// base is the session label, or the session ID when no label is set.
type TextSink struct {
	dir    string
	logger *slog.Logger
}

func NewTextSink(dir string, options ...func(s *TextSink)) (*TextSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is not set")
	}

	s := &TextSink{
		dir:    dir,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

func (s *TextSink) Begin(_ context.Context, session spectrum.ScanSession) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	s.logger.Info("writing session", slog.String("base", s.base(session)))
	return nil
}

func (s *TextSink) PNSpectrum(_ context.Context, session spectrum.ScanSession, axis, magnitudes []float64) error {
	return s.write(s.path(session, "_pn_fft.txt"), Header(session), axis, magnitudes)
}

func (s *TextSink) Iteration(_ context.Context, session spectrum.ScanSession, it acquisition.Iteration) error {
	if session.Outputs.Raw {
		name := fmt.Sprintf("_raw_%d.txt", it.Index)
		if err := s.write(s.path(session, name), "", it.Axis, it.Corrected); err != nil {
			return err
		}
	}
	if session.Outputs.Final && it.Final != nil {
		name := fmt.Sprintf("_final_%d.txt", it.Index)
		if err := s.write(s.path(session, name), Header(session), it.Axis, it.Final); err != nil {
			return err
		}
	}
	return nil
}

func (s *TextSink) End(context.Context, spectrum.ScanSession) error {
	return nil
}

// Header describes the acquisition settings at the top of PN and final files
func Header(session spectrum.ScanSession) string {
	return fmt.Sprintf("Data modulated at %d MHz with a PN code length of %d, and integrated for %d msec\nWavenumber (cm^-1), intensity\n",
		session.ModulationMHz, session.PNBitLength, session.IntegrationTime.Milliseconds())
}

func (s *TextSink) base(session spectrum.ScanSession) string {
	base := strings.TrimSpace(session.Label)
	if base == "" {
		base = session.ID
	}
	// keep every file inside dir
	return filepath.Base(filepath.Clean("/" + base))
}

func (s *TextSink) path(session spectrum.ScanSession, suffix string) string {
	return filepath.Join(s.dir, s.base(session)+suffix)
}

func (s *TextSink) write(path, header string, x, y []float64) (err error) {
	if len(x) != len(y) {
		return fmt.Errorf("%s: %w", path, spectrum.ErrLengthMismatch)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing output file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if header != "" {
		if _, err = w.WriteString(header); err != nil {
			return fmt.Errorf("error writing output file: %w", err)
		}
	}
	if err = WriteRows(w, x, y); err != nil {
		return fmt.Errorf("error writing output file: %w", err)
	}
	return w.Flush()
}

// WriteRows writes "x,y" lines with six and fifteen decimals
func WriteRows(w io.Writer, x, y []float64) error {
	for i := range x {
		if _, err := fmt.Fprintf(w, "%f,%.15f\n", x[i], y[i]); err != nil {
			return err
		}
	}
	return nil
}
