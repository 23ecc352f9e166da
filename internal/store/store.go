// Package store persists the turn journal used for aggregate statistics.
// It never restores coaching sessions.
package store

import (
	"context"
	"time"

	"github.com/ashureev/bateson-coach/internal/domain"
)

// Journal records processed turns and aggregates them.
type Journal interface {
	// RecordTurn appends one turn record.
	RecordTurn(ctx context.Context, rec domain.TurnRecord) error

	// StageTotals aggregates turns recorded at or after since.
	StageTotals(ctx context.Context, since time.Time) (*domain.StageTotals, error)

	// CleanupOlderThan removes records older than age and returns how many were deleted.
	CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
