package api

import (
	"time"

	"github.com/roman-kulish/pn-raman/internal/acquisition"
	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

// ScanRequest is the body of POST /api/v1/scans. Zero fields take the server defaults.
type ScanRequest struct {
	SpectrometerID string            `json:"spectrometerID"`
	IntegrationMS  int64             `json:"integrationMs"`
	Repetitions    int               `json:"repetitions"`
	ModulationMHz  int               `json:"modulationMHz"`
	PNBitLength    int               `json:"pnBitLength"`
	Outputs        *spectrum.Outputs `json:"outputs"`
	Label          string            `json:"label"`
}

// Params merges the request over defaults
func (r ScanRequest) Params(defaults acquisition.Params) acquisition.Params {
	p := defaults
	if r.SpectrometerID != "" {
		p.SpectrometerID = r.SpectrometerID
	}
	if r.IntegrationMS != 0 {
		p.IntegrationTime = time.Duration(r.IntegrationMS) * time.Millisecond
	}
	if r.Repetitions != 0 {
		p.Repetitions = r.Repetitions
	}
	if r.ModulationMHz != 0 {
		p.ModulationMHz = r.ModulationMHz
	}
	if r.PNBitLength != 0 {
		p.PNBitLength = r.PNBitLength
	}
	if r.Outputs != nil {
		p.Outputs = *r.Outputs
	}
	if r.Label != "" {
		p.Label = r.Label
	}
	return p
}

type startResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type laserRequest struct {
	DutyCycle *float64 `json:"dutyCycle"`
}

type progressResponse struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
	Estimate  float64 `json:"estimate"` // elapsed share of the expected wall time
}

type scanStatus struct {
	ID             string            `json:"id"`
	State          acquisition.State `json:"state"`
	SpectrometerID string            `json:"spectrometerID"`
	Label          string            `json:"label,omitempty"`
	StartedAt      *time.Time        `json:"startedAt,omitempty"`
	Progress       progressResponse  `json:"progress"`
	Error          string            `json:"error,omitempty"`
}

func newScanStatus(s *acquisition.Session, now time.Time) scanStatus {
	p := s.Progress()
	params := s.Params()

	st := scanStatus{
		ID:             s.ID(),
		State:          s.State(),
		SpectrometerID: params.SpectrometerID,
		Label:          params.Label,
		Progress: progressResponse{
			Completed: p.Completed,
			Total:     p.Total,
			Fraction:  p.Fraction(),
			Estimate:  p.Estimate(now),
		},
	}
	if !p.StartedAt.IsZero() {
		st.StartedAt = &p.StartedAt
	}
	if res, done := s.Handle().Result(); done {
		st.State = res.State
		if res.Err != nil {
			st.Error = res.Err.Error()
		}
		if res.State == acquisition.StateCompleted {
			st.Progress.Estimate = 1
		}
	}
	return st
}
