// Package utils holds small helpers shared by the pipeline stages.
package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Slow-operation thresholds. A full multi-year simulation is expected to finish
// well under the info threshold.
var (
	InfoThreshold = 10 * time.Second
	WarnThreshold = 30 * time.Second
)

// Timer measures the duration of a pipeline stage
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

// NewTimer creates a new timer with the given name
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
	}
}

// Stop stops the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)

	t.log.Debug().
		Str("operation", t.name).
		Dur("duration_ms", duration).
		Msg("Performance measurement")

	if duration > WarnThreshold {
		t.log.Warn().
			Str("operation", t.name).
			Dur("duration", duration).
			Msg("Slow operation detected")
	} else if duration > InfoThreshold {
		t.log.Info().
			Str("operation", t.name).
			Dur("duration", duration).
			Msg("Operation took longer than expected")
	}

	return duration
}

// MeasureDBQuery measures a results database query.
//
// Usage:
//
//	done := utils.MeasureDBQuery("insert_totals", log)
//	defer func() { done(n) }()
func MeasureDBQuery(queryName string, log zerolog.Logger) func(rowsAffected int64) {
	start := time.Now()

	return func(rowsAffected int64) {
		duration := time.Since(start)

		log.Debug().
			Str("query", queryName).
			Dur("duration_ms", duration).
			Int64("rows_affected", rowsAffected).
			Msg("Database query completed")

		if duration > 5*time.Second {
			log.Warn().
				Str("query", queryName).
				Dur("duration", duration).
				Msg("Slow database query detected")
		}
	}
}
