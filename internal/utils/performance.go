// Package utils holds small helpers shared by the service packages.
package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Operations slower than SlowOperation are logged at warn level.
const SlowOperation = 30 * time.Second

// Queries slower than SlowQuery are logged at warn level.
const SlowQuery = 5 * time.Second

// OperationTimer measures an operation and logs its duration when the
// returned function is called.
//
// Usage:
//
//	done := utils.OperationTimer("pmf", log)
//	defer func() { done(zerolog.Dict().Int("members", n)) }()
func OperationTimer(operation string, log zerolog.Logger) func(fields *zerolog.Event) time.Duration {
	start := time.Now()

	return func(fields *zerolog.Event) time.Duration {
		duration := time.Since(start)

		event := log.Debug()
		if duration > SlowOperation {
			event = log.Warn()
		}
		event = event.Str("operation", operation).Dur("duration", duration)
		if fields != nil {
			event = event.Dict("fields", fields)
		}
		if duration > SlowOperation {
			event.Msg("Slow operation detected")
		} else {
			event.Msg("Operation completed")
		}
		return duration
	}
}

// MeasureDBQuery measures a database query and logs its duration together
// with the number of affected rows.
func MeasureDBQuery(queryName string, log zerolog.Logger) func(rowsAffected int64) {
	start := time.Now()

	return func(rowsAffected int64) {
		duration := time.Since(start)

		if duration > SlowQuery {
			log.Warn().
				Str("query", queryName).
				Dur("duration", duration).
				Int64("rows_affected", rowsAffected).
				Msg("Slow database query detected")
			return
		}
		log.Debug().
			Str("query", queryName).
			Dur("duration", duration).
			Int64("rows_affected", rowsAffected).
			Msg("Database query completed")
	}
}
