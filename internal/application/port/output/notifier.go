package output

import "context"

// Notifier is the external transport that delivers status messages to a
// human. Delivery may fail transiently; the outbox worker owns retries.
type Notifier interface {
	Notify(ctx context.Context, operationID, actor, message string) error
}
