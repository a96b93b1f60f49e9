package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/pn-raman/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	if _, err = os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath, storage.WithLogger(logger))
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	data, err := readFrames(ctx, store, config, logger)
	if err != nil {
		return err
	}

	renderer := NewRenderer(RenderConfig{
		ColorTheme:    config.Theme,
		NoAnnotations: config.NoAnnotations,
		MinIntensity:  config.MinIntensity,
		MaxIntensity:  config.MaxIntensity,
	})
	bounds := renderer.Bounds(data)

	logger.Info("rendering waterfall",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", data.Width),
			slog.Int("height", data.Height),
			slog.String("minIntensity", humanize.FtoaWithDigits(bounds.Min, 2)),
			slog.String("maxIntensity", humanize.FtoaWithDigits(bounds.Max, 2)),
		))

	img, err := renderer.Render(data)
	if err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	return encode(out, img, config.Format)
}

func readFrames(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*FrameData, error) {
	var opts []storage.ReaderOption
	if config.FirstIter != nil && config.LastIter != nil {
		opts = append(opts, storage.WithIterationRange(*config.FirstIter, *config.LastIter))
		logger.Info("iterator configuration",
			slog.Int("first", *config.FirstIter),
			slog.Int("last", *config.LastIter))
	}

	reader, err := store.ReadFrames(ctx, config.SessionID, config.Kind, opts...)
	if err != nil {
		return nil, err
	}
	session := reader.Session()

	logger.Info("reading frames",
		slog.String("sessionID", session.ID),
		slog.String("kind", string(config.Kind)),
		slog.String("stored", humanize.Comma(int64(reader.Len()))))

	frames, err := storage.ReadAll(ctx, reader)
	if err != nil {
		return nil, fmt.Errorf("reading frames: %w", err)
	}

	data, err := NewFrameData(session, config.Kind, frames)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", session.ID, err)
	}

	logger.Info("finished reading frames",
		slog.Group("stats",
			slog.String("started", data.TimestampStart.Local().Format(time.DateTime)),
			slog.String("finished", data.TimestampEnd.Local().Format(time.DateTime)),
			slog.Int("firstIteration", data.FirstIteration),
			slog.Int("lastIteration", data.LastIteration),
			slog.String("minShift", fmt.Sprintf("%0.2fcm-1", data.ShiftMin)),
			slog.String("maxShift", fmt.Sprintf("%0.2fcm-1", data.ShiftMax)),
		))
	return data, nil
}

func encode(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImagePNG:
		return png.Encode(w, img)
	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 98})
	default:
		return fmt.Errorf("unsupported image format: %s", format)
	}
}
