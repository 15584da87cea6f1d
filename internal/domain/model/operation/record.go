package operation

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record is the audit trail entry for a single routed operation.
// Exactly one Record exists per tracking ID; it is created before any
// side-effecting work begins and finalized exactly once.
type Record struct {
	trackingID  string
	createdAt   time.Time
	capability  string
	action      string
	actor       string
	tier        RiskTier
	status      Status
	paths       []string
	snapshotRef string
	duration    time.Duration
	err         *BrokerError
}

// Outcome captures how an operation ended
type Outcome struct {
	Status      Status
	SnapshotRef string
	Duration    time.Duration
	Err         *BrokerError
}

// GenerateTrackingID generates a new operation tracking ID using ULID
func GenerateTrackingID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewRecord creates an in-progress audit record for a freshly routed operation
func NewRecord(trackingID, capability, action, actor string, tier RiskTier, paths []string) *Record {
	return &Record{
		trackingID: trackingID,
		createdAt:  time.Now().UTC(),
		capability: capability,
		action:     action,
		actor:      actor,
		tier:       tier,
		status:     StatusInProgress,
		paths:      paths,
	}
}

// ReconstructRecord reconstructs a Record from persisted data.
// Used by the repository when loading from the database.
func ReconstructRecord(
	trackingID string,
	createdAt time.Time,
	capability, action, actor string,
	tier RiskTier,
	status Status,
	paths []string,
	snapshotRef string,
	duration time.Duration,
	err *BrokerError,
) *Record {
	return &Record{
		trackingID:  trackingID,
		createdAt:   createdAt,
		capability:  capability,
		action:      action,
		actor:       actor,
		tier:        tier,
		status:      status,
		paths:       paths,
		snapshotRef: snapshotRef,
		duration:    duration,
		err:         err,
	}
}

// Finalize applies a terminal outcome to the record.
// A record that is already terminal is never reverted.
func (r *Record) Finalize(outcome Outcome) bool {
	if r.status.IsTerminal() {
		return false
	}
	r.status = outcome.Status
	r.snapshotRef = outcome.SnapshotRef
	r.duration = outcome.Duration
	r.err = outcome.Err
	return true
}

// Getters
func (r *Record) TrackingID() string      { return r.trackingID }
func (r *Record) CreatedAt() time.Time    { return r.createdAt }
func (r *Record) Capability() string      { return r.capability }
func (r *Record) Action() string          { return r.action }
func (r *Record) Actor() string           { return r.actor }
func (r *Record) Tier() RiskTier          { return r.tier }
func (r *Record) Status() Status          { return r.status }
func (r *Record) Paths() []string         { return r.paths }
func (r *Record) SnapshotRef() string     { return r.snapshotRef }
func (r *Record) Duration() time.Duration { return r.duration }
func (r *Record) Err() *BrokerError       { return r.err }
