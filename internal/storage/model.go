package storage

import (
	"database/sql"
	"time"
)

// sessionData is a row of the sessions table
type sessionData struct {
	ID             string
	StartTime      time.Time
	EndTime        sql.NullTime
	State          string
	SpectrometerID string
	ModulationMHz  int
	PNBitLength    int
	IntegrationUS  int64
	Repetitions    int
	Label          sql.NullString
	Outputs        string // JSON encoded spectrum.Outputs
}

// sampleData is a row of the spectra table, one pixel of one frame
type sampleData struct {
	Iteration int
	Timestamp time.Time
	Pixel     int
	Shift     float64
	Value     float64
}
