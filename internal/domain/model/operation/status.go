package operation

// Status represents the lifecycle state of a routed operation
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPostponed  Status = "postponed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status is final and may never change again
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPostponed, StatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether the status is one of the known enum values
func (s Status) IsValid() bool {
	return s == StatusInProgress || s.IsTerminal()
}
