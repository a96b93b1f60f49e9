package acquisition

import (
	"time"
)

// Progress is a snapshot of a session's iteration counter
type Progress struct {
	Completed       int           `json:"completed"`
	Total           int           `json:"total"`
	StartedAt       time.Time     `json:"startedAt"`
	IntegrationTime time.Duration `json:"integrationTime"`
}

// Fraction returns completed iterations over requested iterations
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

// Estimate returns the fraction of the expected wall time elapsed at now. One extra
// integration period is allowed for the first spectrum. The result is clamped to [0, 1].
func (p Progress) Estimate(now time.Time) float64 {
	if p.StartedAt.IsZero() || p.Total <= 0 || p.IntegrationTime <= 0 {
		return 0
	}

	total := p.IntegrationTime*time.Duration(p.Total) + p.IntegrationTime
	f := float64(now.Sub(p.StartedAt)) / float64(total)
	return min(max(f, 0), 1)
}
