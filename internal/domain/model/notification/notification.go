package notification

import "time"

// Status represents the delivery state of an outbox record
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Record is one durable status message awaiting delivery to an actor.
// Rows are never deleted; failed attempts reschedule the record instead.
type Record struct {
	id            int64
	operationID   string
	actor         string
	status        Status
	message       string
	createdAt     time.Time
	lastAttemptAt *time.Time
	nextAttemptAt time.Time
	retryCount    int
	lastError     string
}

// NewRecord creates a pending notification eligible for immediate delivery
func NewRecord(operationID, actor, message string) *Record {
	now := time.Now().UTC()
	return &Record{
		operationID:   operationID,
		actor:         actor,
		status:        StatusPending,
		message:       message,
		createdAt:     now,
		nextAttemptAt: now,
	}
}

// Reconstruct rebuilds a Record from persisted data
func Reconstruct(
	id int64,
	operationID, actor string,
	status Status,
	message string,
	createdAt time.Time,
	lastAttemptAt *time.Time,
	nextAttemptAt time.Time,
	retryCount int,
	lastError string,
) *Record {
	return &Record{
		id:            id,
		operationID:   operationID,
		actor:         actor,
		status:        status,
		message:       message,
		createdAt:     createdAt,
		lastAttemptAt: lastAttemptAt,
		nextAttemptAt: nextAttemptAt,
		retryCount:    retryCount,
		lastError:     lastError,
	}
}

// SetID assigns the store-generated row ID after insert
func (r *Record) SetID(id int64) { r.id = id }

// Getters
func (r *Record) ID() int64                { return r.id }
func (r *Record) OperationID() string      { return r.operationID }
func (r *Record) Actor() string            { return r.actor }
func (r *Record) Status() Status           { return r.status }
func (r *Record) Message() string          { return r.message }
func (r *Record) CreatedAt() time.Time     { return r.createdAt }
func (r *Record) LastAttemptAt() *time.Time { return r.lastAttemptAt }
func (r *Record) NextAttemptAt() time.Time { return r.nextAttemptAt }
func (r *Record) RetryCount() int          { return r.retryCount }
func (r *Record) LastError() string        { return r.lastError }
