package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/pn-raman/internal/spectrum"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toSessionData(s spectrum.ScanSession) (*sessionData, error) {
	outputs, err := json.Marshal(s.Outputs)
	if err != nil {
		return nil, fmt.Errorf("marshaling outputs: %w", err)
	}

	data := &sessionData{
		ID:             s.ID,
		StartTime:      s.StartTime.UTC(),
		State:          s.State,
		SpectrometerID: s.SpectrometerID,
		ModulationMHz:  s.ModulationMHz,
		PNBitLength:    s.PNBitLength,
		IntegrationUS:  s.IntegrationTime.Microseconds(),
		Repetitions:    s.Repetitions,
		Label:          sql.NullString{String: s.Label, Valid: s.Label != ""},
		Outputs:        string(outputs),
	}
	if s.EndTime != nil {
		data.EndTime = sql.NullTime{Time: s.EndTime.UTC(), Valid: true}
	}
	return data, nil
}

func fromSessionData(d *sessionData) (*spectrum.ScanSession, error) {
	s := &spectrum.ScanSession{
		ID:              d.ID,
		StartTime:       d.StartTime,
		State:           d.State,
		SpectrometerID:  d.SpectrometerID,
		ModulationMHz:   d.ModulationMHz,
		PNBitLength:     d.PNBitLength,
		IntegrationTime: time.Duration(d.IntegrationUS) * time.Microsecond,
		Repetitions:     d.Repetitions,
		Label:           d.Label.String,
	}
	if d.EndTime.Valid {
		end := d.EndTime.Time
		s.EndTime = &end
	}
	if err := json.Unmarshal([]byte(d.Outputs), &s.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshaling outputs: %w", err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*spectrum.ScanSession, error) {
	var d sessionData
	err := r.Scan(
		&d.ID,
		&d.StartTime,
		&d.EndTime,
		&d.State,
		&d.SpectrometerID,
		&d.ModulationMHz,
		&d.PNBitLength,
		&d.IntegrationUS,
		&d.Repetitions,
		&d.Label,
		&d.Outputs,
	)
	if err != nil {
		return nil, err
	}
	return fromSessionData(&d)
}
