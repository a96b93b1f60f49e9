package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

// initIndexesSQL is applied when the write connection closes, inserts run without the indexes
//
//go:embed indexes.sql
var initIndexesSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (id,
                      start_time,
                      state,
                      spectrometer_id,
                      modulation_mhz,
                      pn_bit_length,
                      integration_us,
                      repetitions,
                      label,
                      outputs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateSessionSQL = `
UPDATE sessions
SET end_time = ?,
    state    = ?
WHERE id = ?`

	selectSessionSQL = `
SELECT id,
       start_time,
       end_time,
       state,
       spectrometer_id,
       modulation_mhz,
       pn_bit_length,
       integration_us,
       repetitions,
       label,
       outputs
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       start_time,
       end_time,
       state,
       spectrometer_id,
       modulation_mhz,
       pn_bit_length,
       integration_us,
       repetitions,
       label,
       outputs
FROM sessions
ORDER BY start_time`

	insertSpectraSQL = `
INSERT INTO spectra (session_id,
                     kind,
                     iteration,
                     timestamp,
                     pixel,
                     shift,
                     value)
VALUES `

	selectSpectraSQL = `
SELECT iteration,
       timestamp,
       pixel,
       shift,
       value
FROM spectra
WHERE session_id = ?
  AND kind = ?
  AND iteration BETWEEN ? AND ?
ORDER BY iteration, pixel`

	selectIterationRangeSQL = `
SELECT COALESCE(MIN(iteration), 0),
       COALESCE(MAX(iteration), -1),
       COUNT(DISTINCT iteration)
FROM spectra
WHERE session_id = ?
  AND kind = ?`
)
