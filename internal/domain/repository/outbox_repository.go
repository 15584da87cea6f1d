package repository

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/notification"
)

// OutboxRepository persists the durable notification queue.
// Records are never deleted; failed deliveries are rescheduled or parked.
type OutboxRepository interface {
	// Enqueue inserts a pending record and assigns its row ID
	Enqueue(ctx context.Context, record *notification.Record) error

	// FindDue returns pending records whose next attempt time has passed,
	// oldest first, up to limit
	FindDue(ctx context.Context, now time.Time, limit int) ([]*notification.Record, error)

	// MarkSent transitions a record to sent. A record transitions to sent
	// at most once.
	MarkSent(ctx context.Context, id int64, at time.Time) error

	// MarkRetry increments the retry count and reschedules the record
	MarkRetry(ctx context.Context, id int64, at, next time.Time, lastError string) error

	// MarkFailed parks a record as permanently failed; the row is retained
	// for later inspection
	MarkFailed(ctx context.Context, id int64, at time.Time, lastError string) error

	// List returns records newest-first, up to limit
	List(ctx context.Context, limit int) ([]*notification.Record, error)
}
