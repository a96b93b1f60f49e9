package app

import (
	"errors"
	"math"
	"slices"
	"time"

	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

const (
	lowerPercentile = 0.05
	upperPercentile = 0.95
	boundsMargin    = 0.1
)

// IntensityBounds is the intensity range mapped onto the color theme
type IntensityBounds struct {
	Min float64
	Max float64
}

// FrameData is a session's frames of one kind laid out as a grid, one row per iteration and
// one column per pixel.
type FrameData struct {
	Session *spectrum.ScanSession
	Kind    spectrum.FrameKind

	Width  int // pixels
	Height int // iterations

	Axis           []float64 // Raman shift of every column
	ShiftMin       float64
	ShiftMax       float64
	FirstIteration int
	LastIteration  int
	TimestampStart time.Time
	TimestampEnd   time.Time

	Rows [][]float64 // NaN where a frame is shorter than the widest one
}

// NewFrameData lays frames out in the order given
func NewFrameData(session *spectrum.ScanSession, kind spectrum.FrameKind, frames []spectrum.Frame) (*FrameData, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames to render")
	}

	fd := &FrameData{
		Session:        session,
		Kind:           kind,
		Height:         len(frames),
		FirstIteration: frames[0].Iteration,
		LastIteration:  frames[len(frames)-1].Iteration,
		TimestampStart: frames[0].Timestamp,
		TimestampEnd:   frames[len(frames)-1].Timestamp,
		Rows:           make([][]float64, len(frames)),
	}

	for _, f := range frames {
		if len(f.Values) > fd.Width {
			fd.Width = len(f.Values)
			fd.Axis = f.Axis
		}
	}
	if fd.Width == 0 {
		return nil, errors.New("frames carry no values")
	}

	fd.ShiftMin, fd.ShiftMax = math.Inf(1), math.Inf(-1)
	for _, shift := range fd.Axis {
		fd.ShiftMin = math.Min(fd.ShiftMin, shift)
		fd.ShiftMax = math.Max(fd.ShiftMax, shift)
	}

	for y, f := range frames {
		row := make([]float64, fd.Width)
		for x := range row {
			if x < len(f.Values) {
				row[x] = f.Values[x]
			} else {
				row[x] = math.NaN()
			}
		}
		fd.Rows[y] = row
	}
	return fd, nil
}

// Bounds returns the 5th to 95th percentile of the finite values, widened by a margin of
// 10% on each side. An empty or flat grid gets a unit wide range.
func (fd *FrameData) Bounds() IntensityBounds {
	values := make([]float64, 0, fd.Width*fd.Height)
	for _, row := range fd.Rows {
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return IntensityBounds{Min: 0, Max: 1}
	}
	slices.Sort(values)

	lo := values[percentileIndex(len(values), lowerPercentile)]
	hi := values[percentileIndex(len(values), upperPercentile)]
	if hi <= lo {
		return IntensityBounds{Min: lo - 0.5, Max: lo + 0.5}
	}

	margin := (hi - lo) * boundsMargin
	return IntensityBounds{Min: lo - margin, Max: hi + margin}
}

// ColumnOf returns the column whose Raman shift is closest to shift
func (fd *FrameData) ColumnOf(shift float64) int {
	best, bestDist := 0, math.Inf(1)
	for x, s := range fd.Axis {
		if d := math.Abs(s - shift); d < bestDist {
			best, bestDist = x, d
		}
	}
	return best
}

func percentileIndex(n int, p float64) int {
	i := int(math.Round(p * float64(n-1)))
	return max(0, min(n-1, i))
}
