package spectrum

import (
	"fmt"
	"math"
)

// SnapTolerance is the relative distance under which a target frequency takes the magnitude
// of a source bin without interpolation
const SnapTolerance = 0.05

// Interpolate resamples src onto the ascending target axis. A forward-only cursor walks the
// source bins, so the cost is linear in len(src)+len(target).
//
// Targets at or below the first source frequency take the first magnitude, targets at or
// above the last source frequency take the last magnitude. Every output index is written.
func Interpolate(src *Spectrum, target []float64) ([]float64, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("source spectrum: %w", err)
	}
	for i := 1; i < len(target); i++ {
		if target[i] < target[i-1] {
			return nil, fmt.Errorf("target frequencies not ascending at index %d", i)
		}
	}

	freqs, mags := src.Frequencies, src.Magnitudes
	n := len(freqs)
	out := make([]float64, len(target))

	j := 0
	for k, t := range target {
		if t <= freqs[0] {
			out[k] = mags[0]
			continue
		}
		if t >= freqs[n-1] {
			out[k] = mags[n-1]
			continue
		}

		// freqs[j] <= t < freqs[j+1]
		for freqs[j+1] <= t {
			j++
		}

		nearest := j
		if t-freqs[j] > freqs[j+1]-t {
			nearest = j + 1
		}
		if snaps(t, freqs[nearest]) {
			out[k] = mags[nearest]
			continue
		}
		out[k] = lerp(freqs[j], mags[j], freqs[j+1], mags[j+1], t)
	}
	return out, nil
}

func snaps(t, f float64) bool {
	if t == 0 {
		return f == 0
	}
	return math.Abs(t-f)/math.Abs(t) < SnapTolerance
}

func lerp(x1, y1, x2, y2, t float64) float64 {
	m := (y2 - y1) / (x2 - x1)
	return m*(t-x1) + y1
}
