package operation

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification
type Code string

const (
	// Security
	CodeScopeViolation       Code = "scope_violation"
	CodeConfirmationRequired Code = "confirmation_required"

	// Environment
	CodeToolNotFound   Code = "tool_not_found"
	CodeNotARepository Code = "not_a_version_controlled_directory"

	// Timing
	CodeOperationTimeout Code = "operation_timeout"
	CodeSnapshotTimeout  Code = "snapshot_timeout"

	// Execution
	CodeExecutionError Code = "execution_error"
	CodeCommitFailed   Code = "commit_failed"
	CodeRollbackFailed Code = "rollback_failed"

	// Delivery
	CodeNotificationFailed Code = "notification_failed"

	// Ambiguity - explicit non-executing terminal states, not failures
	CodePostponed Code = "postponed"
	CodeCancelled Code = "cancelled"
)

// BrokerError is the structured error contract carried across every
// failure path in the broker. It is the only error shape exposed to callers.
type BrokerError struct {
	Code      Code              `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Retryable bool              `json:"retryable"`
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a non-retryable BrokerError
func NewError(code Code, message string) *BrokerError {
	return &BrokerError{Code: code, Message: message}
}

// NewRetryableError creates a retryable BrokerError
func NewRetryableError(code Code, message string) *BrokerError {
	return &BrokerError{Code: code, Message: message, Retryable: true}
}

// WithDetail attaches a key/value pair to the error's detail map
func (e *BrokerError) WithDetail(key, value string) *BrokerError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// AsBrokerError extracts a BrokerError from an error chain.
// Returns nil if the chain does not contain one.
func AsBrokerError(err error) *BrokerError {
	var be *BrokerError
	if errors.As(err, &be) {
		return be
	}
	return nil
}
