package route

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
)

func TestRenderOutcome_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	const id = "01HXEXAMPLE"

	tests := []struct {
		name        string
		capability  string
		action      string
		status      operation.Status
		tier        operation.RiskTier
		snapshotRef string
		err         *operation.BrokerError
	}{
		{
			name:        "completed_with_snapshot",
			capability:  "file", action: "patch",
			status:      operation.StatusCompleted,
			tier:        operation.TierSingleUnit,
			snapshotRef: "snapshot/patch-2026-03-14-0926",
		},
		{
			name:       "completed_read_only",
			capability: "file", action: "read",
			status: operation.StatusCompleted,
			tier:   operation.TierReadOnly,
		},
		{
			name:        "failed_retryable",
			capability:  "git", action: "commit",
			status:      operation.StatusFailed,
			tier:        operation.TierSingleUnit,
			snapshotRef: "snapshot/commit-2026-03-14-0926",
			err:         operation.NewRetryableError(operation.CodeOperationTimeout, "execution exceeded 5m0s"),
		},
		{
			name:       "failed_permanent",
			capability: "file", action: "delete",
			status: operation.StatusFailed,
			tier:   operation.TierDestructive,
			err:    operation.NewError(operation.CodeExecutionError, "permission denied"),
		},
		{
			name:       "postponed",
			capability: "file", action: "patch",
			status: operation.StatusPostponed,
			tier:   operation.TierMultiUnit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message := RenderOutcome(id, tt.capability, tt.action, tt.status, tt.tier, tt.snapshotRef, tt.err)
			g.Assert(t, tt.name, []byte(message))
		})
	}
}
