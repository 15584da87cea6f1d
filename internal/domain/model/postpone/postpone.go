package postpone

import (
	"fmt"
	"time"
)

// Phase represents the clarification state of an ambiguous request
type Phase string

const (
	PhaseAwaiting  Phase = "awaiting_clarification"
	PhaseRetrySent Phase = "retry_sent"
	PhaseResumed   Phase = "resumed"
	PhaseCancelled Phase = "cancelled"
)

// IsTerminal reports whether the phase is final
func (p Phase) IsTerminal() bool {
	return p == PhaseResumed || p == PhaseCancelled
}

// Record captures an ambiguous request parked for human clarification.
// Deadlines are absolute so that timers can be recomputed after a restart.
type Record struct {
	id            string
	actor         string
	payload       string
	options       []string
	phase         Phase
	createdAt     time.Time
	retryNotifyAt time.Time
	expiresAt     time.Time
	resolvedWith  string
}

// NewRecord creates a fresh awaiting-clarification entry.
// retryNotifyAt is when a reminder is due; expiresAt is the final deadline
// after which the request is cancelled and discarded.
func NewRecord(id, actor, payload string, options []string, retryNotifyAt, expiresAt time.Time) *Record {
	return &Record{
		id:            id,
		actor:         actor,
		payload:       payload,
		options:       options,
		phase:         PhaseAwaiting,
		createdAt:     time.Now().UTC(),
		retryNotifyAt: retryNotifyAt,
		expiresAt:     expiresAt,
	}
}

// Reconstruct rebuilds a Record from persisted data
func Reconstruct(
	id, actor, payload string,
	options []string,
	phase Phase,
	createdAt, retryNotifyAt, expiresAt time.Time,
	resolvedWith string,
) *Record {
	return &Record{
		id:            id,
		actor:         actor,
		payload:       payload,
		options:       options,
		phase:         phase,
		createdAt:     createdAt,
		retryNotifyAt: retryNotifyAt,
		expiresAt:     expiresAt,
		resolvedWith:  resolvedWith,
	}
}

// MarkRetrySent transitions awaiting -> retry_sent
func (r *Record) MarkRetrySent() error {
	if r.phase != PhaseAwaiting {
		return fmt.Errorf("cannot send retry from phase %s", r.phase)
	}
	r.phase = PhaseRetrySent
	return nil
}

// Resolve transitions a non-terminal record to resumed, recording the
// clarification choice the operator supplied
func (r *Record) Resolve(choice string) error {
	if r.phase.IsTerminal() {
		return fmt.Errorf("already terminal: %s", r.phase)
	}
	r.phase = PhaseResumed
	r.resolvedWith = choice
	return nil
}

// Cancel transitions a non-terminal record to cancelled.
// The original request is discarded and never executed.
func (r *Record) Cancel() error {
	if r.phase.IsTerminal() {
		return fmt.Errorf("already terminal: %s", r.phase)
	}
	r.phase = PhaseCancelled
	return nil
}

// RetryDue reports whether the reminder notification is due
func (r *Record) RetryDue(now time.Time) bool {
	return r.phase == PhaseAwaiting && !now.Before(r.retryNotifyAt)
}

// Expired reports whether the final deadline has passed
func (r *Record) Expired(now time.Time) bool {
	return !r.phase.IsTerminal() && !now.Before(r.expiresAt)
}

// Getters
func (r *Record) ID() string               { return r.id }
func (r *Record) Actor() string            { return r.actor }
func (r *Record) Payload() string          { return r.payload }
func (r *Record) Options() []string        { return r.options }
func (r *Record) Phase() Phase             { return r.phase }
func (r *Record) CreatedAt() time.Time     { return r.createdAt }
func (r *Record) RetryNotifyAt() time.Time { return r.retryNotifyAt }
func (r *Record) ExpiresAt() time.Time     { return r.expiresAt }
func (r *Record) ResolvedWith() string     { return r.resolvedWith }
