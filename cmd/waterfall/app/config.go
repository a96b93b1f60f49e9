package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     string
	Kind          spectrum.FrameKind
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	MinIntensity  *float64
	MaxIntensity  *float64
	FirstIter     *int
	LastIter      *int
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validKinds = map[spectrum.FrameKind]struct{}{
	spectrum.FrameRaw:   {},
	spectrum.FrameFinal: {},
}

func NewConfig() *Config {
	return &Config{
		Kind:   spectrum.FrameFinal,
		Format: ImagePNG,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return ParseConfig(flag.CommandLine, os.Args[1:])
}

// ParseConfig parses args into a Config using fs. The image extension is appended to the
// output file name.
func ParseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat, kind, theme string
	var minIntensity, maxIntensity float64
	var firstIter, lastIter int
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.StringVar(&c.SessionID, "s", "", "Session ID")
	fs.StringVar(&kind, "k", string(spectrum.FrameFinal), "Frame kind to render. [raw, final]")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", "", "Color theme. [classic, grayscale, jungle, thermal, marine]")
	fs.Float64Var(&minIntensity, "min-intensity", 0, "Define a manual minimum intensity")
	fs.Float64Var(&maxIntensity, "max-intensity", 0, "Define a manual maximum intensity")
	fs.IntVar(&firstIter, "first", 0, "First iteration to render")
	fs.IntVar(&lastIter, "last", 0, "Last iteration to render")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as Raman shift and iteration scales")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-intensity":
			c.MinIntensity = &minIntensity
		case "max-intensity":
			c.MaxIntensity = &maxIntensity
		case "first":
			c.FirstIter = &firstIter
		case "last":
			c.LastIter = &lastIter
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID == "" {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok = validKinds[spectrum.FrameKind(kind)]; !ok {
		err = fmt.Errorf("invalid frame kind: %s", kind)
	} else if _, ok = validThemes[ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if c.MinIntensity != nil && c.MaxIntensity != nil && *c.MinIntensity >= *c.MaxIntensity {
		err = fmt.Errorf("min intensity %g must be below max intensity %g", *c.MinIntensity, *c.MaxIntensity)
	} else if (c.FirstIter == nil) != (c.LastIter == nil) {
		err = errors.New("first and last iterations must be set together")
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Kind = spectrum.FrameKind(kind)
	c.Theme = ColorTheme(theme)
	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
