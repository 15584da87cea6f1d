package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/postpone"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/repository"
)

// PostponeRepositoryImpl implements repository.PostponeRepository with SQLite
type PostponeRepositoryImpl struct {
	db *sql.DB
}

// NewPostponeRepository creates a new SQLite-based postponement store
func NewPostponeRepository(db *sql.DB) repository.PostponeRepository {
	return &PostponeRepositoryImpl{db: db}
}

// Save inserts a new postponement entry
func (r *PostponeRepositoryImpl) Save(ctx context.Context, record *postpone.Record) error {
	optionsJSON, err := json.Marshal(record.Options())
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	query := `
		INSERT INTO postponements (id, actor, payload, options, phase, created_at, retry_notify_at, expires_at, resolved_with)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.ID(),
		record.Actor(),
		record.Payload(),
		string(optionsJSON),
		string(record.Phase()),
		record.CreatedAt().Format(time.RFC3339Nano),
		record.RetryNotifyAt().Format(time.RFC3339Nano),
		record.ExpiresAt().Format(time.RFC3339Nano),
		nullable(record.ResolvedWith()),
	)
	if err != nil {
		return fmt.Errorf("insert postponement: %w", err)
	}
	return nil
}

// Update persists a phase transition. Terminal rows stay terminal: the
// guard refuses to move a row that already reached resumed or cancelled.
func (r *PostponeRepositoryImpl) Update(ctx context.Context, record *postpone.Record) error {
	query := `
		UPDATE postponements
		SET phase = ?, resolved_with = ?
		WHERE id = ? AND phase NOT IN ('resumed', 'cancelled')
	`
	result, err := r.db.ExecContext(ctx, query,
		string(record.Phase()),
		nullable(record.ResolvedWith()),
		record.ID(),
	)
	if err != nil {
		return fmt.Errorf("update postponement: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("postponement %s not found or already terminal", record.ID())
	}
	return nil
}

// Find retrieves an entry by ID
func (r *PostponeRepositoryImpl) Find(ctx context.Context, id string) (*postpone.Record, error) {
	query := selectPostponement + ` WHERE id = ?`
	record, err := scanPostponement(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("postponement not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// FindPending returns all non-terminal entries
func (r *PostponeRepositoryImpl) FindPending(ctx context.Context) ([]*postpone.Record, error) {
	query := selectPostponement + ` WHERE phase IN ('awaiting_clarification', 'retry_sent') ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pending postponements: %w", err)
	}
	defer rows.Close()
	return scanPostponements(rows)
}

// List returns entries newest-first
func (r *PostponeRepositoryImpl) List(ctx context.Context, limit int) ([]*postpone.Record, error) {
	query := selectPostponement + ` ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query postponements: %w", err)
	}
	defer rows.Close()
	return scanPostponements(rows)
}

const selectPostponement = `
	SELECT id, actor, payload, options, phase, created_at, retry_notify_at, expires_at, resolved_with
	FROM postponements`

func scanPostponement(row rowScanner) (*postpone.Record, error) {
	var (
		id            string
		actor         string
		payload       string
		optionsJSON   string
		phase         string
		createdAt     string
		retryNotifyAt string
		expiresAt     string
		resolvedWith  sql.NullString
	)
	if err := row.Scan(&id, &actor, &payload, &optionsJSON, &phase,
		&createdAt, &retryNotifyAt, &expiresAt, &resolvedWith); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan postponement: %w", err)
	}

	var options []string
	if optionsJSON != "" {
		if err := json.Unmarshal([]byte(optionsJSON), &options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}

	createdAtTime, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	retryNotifyTime, err := time.Parse(time.RFC3339Nano, retryNotifyAt)
	if err != nil {
		return nil, fmt.Errorf("parse retry_notify_at: %w", err)
	}
	expiresAtTime, err := time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	return postpone.Reconstruct(
		id, actor, payload, options,
		postpone.Phase(phase),
		createdAtTime, retryNotifyTime, expiresAtTime,
		resolvedWith.String,
	), nil
}

func scanPostponements(rows *sql.Rows) ([]*postpone.Record, error) {
	records := []*postpone.Record{}
	for rows.Next() {
		record, err := scanPostponement(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate postponements: %w", err)
	}
	return records, nil
}
