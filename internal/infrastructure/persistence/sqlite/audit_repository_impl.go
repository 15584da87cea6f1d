package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/repository"
)

// AuditRepositoryImpl implements repository.AuditRepository with SQLite
type AuditRepositoryImpl struct {
	db *sql.DB
}

// NewAuditRepository creates a new SQLite-based audit ledger
func NewAuditRepository(db *sql.DB) repository.AuditRepository {
	return &AuditRepositoryImpl{db: db}
}

// Start inserts a new in_progress row for a routed operation
func (r *AuditRepositoryImpl) Start(ctx context.Context, record *operation.Record) error {
	pathsJSON, err := json.Marshal(record.Paths())
	if err != nil {
		return fmt.Errorf("marshal paths: %w", err)
	}

	query := `
		INSERT INTO operations (tracking_id, created_at, capability, action, actor, tier, status, paths)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.TrackingID(),
		record.CreatedAt().Format(time.RFC3339Nano),
		record.Capability(),
		record.Action(),
		record.Actor(),
		int(record.Tier()),
		string(record.Status()),
		string(pathsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert operation record: %w", err)
	}
	return nil
}

// End finalizes an in_progress row exactly once. The status guard in the
// WHERE clause makes a second finalization a no-op at the SQL level, which
// is then reported as an error.
func (r *AuditRepositoryImpl) End(ctx context.Context, trackingID string, outcome operation.Outcome) error {
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("outcome status %s is not terminal", outcome.Status)
	}

	var errJSON sql.NullString
	if outcome.Err != nil {
		data, err := json.Marshal(outcome.Err)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		errJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		UPDATE operations
		SET status = ?, snapshot_ref = ?, duration_ms = ?, error = ?
		WHERE tracking_id = ? AND status = 'in_progress'
	`
	result, err := r.db.ExecContext(ctx, query,
		string(outcome.Status),
		nullable(outcome.SnapshotRef),
		outcome.Duration.Milliseconds(),
		errJSON,
		trackingID,
	)
	if err != nil {
		return fmt.Errorf("finalize operation record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("operation %s not found or already finalized", trackingID)
	}
	return nil
}

// Find retrieves a record by tracking ID
func (r *AuditRepositoryImpl) Find(ctx context.Context, trackingID string) (*operation.Record, error) {
	query := `
		SELECT tracking_id, created_at, capability, action, actor, tier, status, paths, snapshot_ref, duration_ms, error
		FROM operations
		WHERE tracking_id = ?
	`
	record, err := scanOperation(r.db.QueryRowContext(ctx, query, trackingID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("operation not found: %s", trackingID)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// List returns records newest-first
func (r *AuditRepositoryImpl) List(ctx context.Context, limit int) ([]*operation.Record, error) {
	query := `
		SELECT tracking_id, created_at, capability, action, actor, tier, status, paths, snapshot_ref, duration_ms, error
		FROM operations
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	records := []*operation.Record{}
	for rows.Next() {
		record, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return records, nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*operation.Record, error) {
	var (
		trackingID  string
		createdAt   string
		capability  string
		action      string
		actor       string
		tier        int
		status      string
		pathsJSON   string
		snapshotRef sql.NullString
		durationMs  int64
		errJSON     sql.NullString
	)

	if err := row.Scan(&trackingID, &createdAt, &capability, &action, &actor,
		&tier, &status, &pathsJSON, &snapshotRef, &durationMs, &errJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan operation: %w", err)
	}

	createdAtTime, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	var paths []string
	if pathsJSON != "" {
		if err := json.Unmarshal([]byte(pathsJSON), &paths); err != nil {
			return nil, fmt.Errorf("unmarshal paths: %w", err)
		}
	}

	var brokerErr *operation.BrokerError
	if errJSON.Valid && errJSON.String != "" {
		brokerErr = &operation.BrokerError{}
		if err := json.Unmarshal([]byte(errJSON.String), brokerErr); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return operation.ReconstructRecord(
		trackingID,
		createdAtTime,
		capability, action, actor,
		operation.RiskTier(tier),
		operation.Status(status),
		paths,
		snapshotRef.String,
		time.Duration(durationMs)*time.Millisecond,
		brokerErr,
	), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
