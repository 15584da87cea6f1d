package repository

import (
	"context"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
)

// AuditRepository persists the lifecycle of every routed operation.
// It is the single source of truth for whether an operation happened
// and how it ended.
type AuditRepository interface {
	// Start inserts a new in_progress record
	Start(ctx context.Context, record *operation.Record) error

	// End finalizes an in_progress record with a terminal outcome.
	// Finalization happens exactly once; a second call is an error.
	End(ctx context.Context, trackingID string, outcome operation.Outcome) error

	// Find retrieves a record by tracking ID
	Find(ctx context.Context, trackingID string) (*operation.Record, error)

	// List returns records newest-first, up to limit.
	// An empty store yields an empty slice, not an error.
	List(ctx context.Context, limit int) ([]*operation.Record, error)
}
