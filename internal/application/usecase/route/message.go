package route

import (
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
)

// RenderOutcome builds the human-readable status message enqueued for
// an operation's terminal state
func RenderOutcome(
	trackingID, capability, action string,
	status operation.Status,
	tier operation.RiskTier,
	snapshotRef string,
	be *operation.BrokerError,
) string {
	var b strings.Builder
	switch status {
	case operation.StatusCompleted:
		fmt.Fprintf(&b, "Completed %s/%s (operation %s, %s).", capability, action, trackingID, tier)
		if snapshotRef != "" {
			fmt.Fprintf(&b, " Recovery point: %s.", snapshotRef)
		}
	case operation.StatusFailed:
		fmt.Fprintf(&b, "Failed %s/%s (operation %s, %s).", capability, action, trackingID, tier)
		if be != nil {
			fmt.Fprintf(&b, " Reason: %s.", be.Message)
			if be.Retryable {
				b.WriteString(" The operation can be retried.")
			}
		}
		if snapshotRef != "" {
			fmt.Fprintf(&b, " A recovery point was taken first: %s.", snapshotRef)
		}
	default:
		fmt.Fprintf(&b, "Operation %s (%s/%s) ended as %s.", trackingID, capability, action, status)
	}
	return b.String()
}
