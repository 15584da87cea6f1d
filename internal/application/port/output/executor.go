package output

import "context"

// Executor is the minimal contract the broker requires of a concrete
// capability implementation. The broker never interprets how an action
// is performed, only whether it succeeded, timed out, or raised.
//
// Failures should be reported as *operation.BrokerError so the code,
// detail map, and retryable flag survive the trip back to the caller;
// any other error is wrapped as a non-retryable execution error.
type Executor interface {
	Execute(ctx context.Context, capability, action string, params map[string]interface{}) (map[string]interface{}, error)
}
