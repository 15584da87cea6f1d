package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/notification"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/repository"
)

// OutboxRepositoryImpl implements repository.OutboxRepository with SQLite
type OutboxRepositoryImpl struct {
	db *sql.DB
}

// NewOutboxRepository creates a new SQLite-based notification outbox
func NewOutboxRepository(db *sql.DB) repository.OutboxRepository {
	return &OutboxRepositoryImpl{db: db}
}

// Enqueue inserts a pending row and assigns its auto-increment ID
func (r *OutboxRepositoryImpl) Enqueue(ctx context.Context, record *notification.Record) error {
	query := `
		INSERT INTO notifications (operation_id, actor, status, message, created_at, next_attempt_at, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`
	result, err := r.db.ExecContext(ctx, query,
		record.OperationID(),
		record.Actor(),
		string(record.Status()),
		record.Message(),
		record.CreatedAt().Format(time.RFC3339Nano),
		record.NextAttemptAt().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get notification id: %w", err)
	}
	record.SetID(id)
	return nil
}

// FindDue returns pending rows whose next attempt time has passed, oldest first
func (r *OutboxRepositoryImpl) FindDue(ctx context.Context, now time.Time, limit int) ([]*notification.Record, error) {
	query := `
		SELECT id, operation_id, actor, status, message, created_at, last_attempt_at, next_attempt_at, retry_count, last_error
		FROM notifications
		WHERE status = 'pending' AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, now.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// MarkSent transitions a pending row to sent. The status guard keeps the
// transition single-shot.
func (r *OutboxRepositoryImpl) MarkSent(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = 'sent', last_attempt_at = ?, last_error = NULL
		WHERE id = ? AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification %d not pending", id)
	}
	return nil
}

// MarkRetry increments the retry count and reschedules the row
func (r *OutboxRepositoryImpl) MarkRetry(ctx context.Context, id int64, at, next time.Time, lastError string) error {
	query := `
		UPDATE notifications
		SET retry_count = retry_count + 1, last_attempt_at = ?, next_attempt_at = ?, last_error = ?
		WHERE id = ? AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query,
		at.UTC().Format(time.RFC3339Nano),
		next.UTC().Format(time.RFC3339Nano),
		lastError,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark notification retry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification %d not pending", id)
	}
	return nil
}

// MarkFailed parks a row as permanently failed. The row is retained for
// later inspection, never deleted.
func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id int64, at time.Time, lastError string) error {
	query := `
		UPDATE notifications
		SET status = 'failed', retry_count = retry_count + 1, last_attempt_at = ?, last_error = ?
		WHERE id = ? AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339Nano), lastError, id)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification %d not pending", id)
	}
	return nil
}

// List returns rows newest-first
func (r *OutboxRepositoryImpl) List(ctx context.Context, limit int) ([]*notification.Record, error) {
	query := `
		SELECT id, operation_id, actor, status, message, created_at, last_attempt_at, next_attempt_at, retry_count, last_error
		FROM notifications
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func scanNotifications(rows *sql.Rows) ([]*notification.Record, error) {
	records := []*notification.Record{}
	for rows.Next() {
		var (
			id            int64
			operationID   string
			actor         string
			status        string
			message       string
			createdAt     string
			lastAttemptAt sql.NullString
			nextAttemptAt string
			retryCount    int
			lastError     sql.NullString
		)
		if err := rows.Scan(&id, &operationID, &actor, &status, &message,
			&createdAt, &lastAttemptAt, &nextAttemptAt, &retryCount, &lastError); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}

		createdAtTime, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		nextAttemptTime, err := time.Parse(time.RFC3339Nano, nextAttemptAt)
		if err != nil {
			return nil, fmt.Errorf("parse next_attempt_at: %w", err)
		}

		var lastAttemptTime *time.Time
		if lastAttemptAt.Valid && lastAttemptAt.String != "" {
			t, err := time.Parse(time.RFC3339Nano, lastAttemptAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_attempt_at: %w", err)
			}
			lastAttemptTime = &t
		}

		records = append(records, notification.Reconstruct(
			id, operationID, actor,
			notification.Status(status),
			message,
			createdAtTime,
			lastAttemptTime,
			nextAttemptTime,
			retryCount,
			lastError.String,
		))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return records, nil
}
