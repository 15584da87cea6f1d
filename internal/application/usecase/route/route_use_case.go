package route

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/app"
	appconfig "github.com/YoshitsuguKoike/guardbroker/internal/app/config"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/port/output"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/registry"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/service"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/repository"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/service/classify"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/service/scope"
)

// Request is one operation the agent runtime wants performed
type Request struct {
	Capability string                 `json:"capability"`
	Action     string                 `json:"action"`
	Actor      string                 `json:"actor"`
	Params     map[string]interface{} `json:"params"`
}

// Result is the caller-facing outcome of routing one request
type Result struct {
	Allowed     bool                   `json:"allowed"`
	TrackingID  string                 `json:"tracking_id"`
	Tier        operation.RiskTier     `json:"tier"`
	SnapshotRef string                 `json:"snapshot_ref,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Err         *operation.BrokerError `json:"error,omitempty"`
}

// pathParamKeys are the parameter names the router treats as
// path-bearing, in both singular and plural forms
var pathParamKeys = []string{"path", "file_path", "repo_path", "paths", "file_paths"}

// UseCase is the broker's pipeline orchestrator. For every request it
// runs, in strict order: classify, validate scope, audit-start,
// snapshot, execute, audit-end, notify. Each step's failure
// short-circuits all later steps; the order is never rearranged.
// Destructive-tier requests never reach the snapshot or execute steps:
// no confirmation mechanism lives in this core, so they are refused
// right after audit-start.
type UseCase struct {
	scope      *scope.Validator
	classifier *classify.Classifier
	registry   *registry.Registry
	audit      repository.AuditRepository
	outbox     *service.OutboxService
	snapshots  output.Snapshotter
	configs    appconfig.Provider
	logger     app.Logger
	repoLocks  *keyedMutex
}

// NewUseCase wires the router
func NewUseCase(
	scopeValidator *scope.Validator,
	classifier *classify.Classifier,
	reg *registry.Registry,
	audit repository.AuditRepository,
	outbox *service.OutboxService,
	snapshots output.Snapshotter,
	configs appconfig.Provider,
	logger app.Logger,
) *UseCase {
	if logger == nil {
		logger = app.NopLogger()
	}
	return &UseCase{
		scope:      scopeValidator,
		classifier: classifier,
		registry:   reg,
		audit:      audit,
		outbox:     outbox,
		snapshots:  snapshots,
		configs:    configs,
		logger:     logger,
		repoLocks:  newKeyedMutex(),
	}
}

// Route runs one request through the full pipeline
func (uc *UseCase) Route(ctx context.Context, req Request) (*Result, error) {
	// 1. Tracking identifier
	trackingID := operation.GenerateTrackingID()

	// 2. Risk tier
	paths := collectPaths(req.Params)
	tier := uc.classifier.Classify(req.Capability, req.Action, len(paths))

	// 3. Scope validation happens before any side effect, so a denial
	// leaves no in-flight audit record to clean up
	for _, p := range paths {
		res := uc.scope.Validate(p)
		if res.Allowed {
			continue
		}
		uc.logger.Warn("scope violation for %s/%s by %s: path %q rejected: %s",
			req.Capability, req.Action, req.Actor, p, res.Reason)
		return &Result{
			TrackingID: trackingID,
			Tier:       tier,
			Err: operation.NewError(operation.CodeScopeViolation,
				fmt.Sprintf("path %q is outside the allowed scope", p)).
				WithDetail("path", p).
				WithDetail("reason", res.Reason),
		}, nil
	}

	// 4. Audit-start: the record exists before any side-effecting work
	record := operation.NewRecord(trackingID, req.Capability, req.Action, req.Actor, tier, paths)
	if err := uc.audit.Start(ctx, record); err != nil {
		return nil, fmt.Errorf("write audit-start for %s: %w", trackingID, err)
	}

	start := time.Now()
	repoPath := uc.repoPathFor(req, paths)

	// 5. Destructive tier is reserved. Confirmation lives outside this
	// core, so the request is refused before any snapshot or executor
	// involvement; the refusal is ledgered like any other outcome.
	if tier == operation.TierDestructive {
		be := operation.NewError(operation.CodeConfirmationRequired,
			fmt.Sprintf("%s/%s is classified destructive and will not run without explicit confirmation",
				req.Capability, req.Action))
		return uc.finish(ctx, req, trackingID, tier, "", nil, start, be), nil
	}

	// Mutating operations against the same repository are serialized
	// here; concurrent operations on different repositories proceed
	// freely (see DESIGN.md on the upstream race).
	if tier.RequiresSnapshot() && repoPath != "" {
		unlock := uc.repoLocks.lock(repoPath)
		defer unlock()
	}

	// 6. Recovery snapshot. Recovery actions restore state and do not
	// need protecting from themselves, so they skip this step.
	var snapshotRef string
	if tier.RequiresSnapshot() && !isRecoveryAction(req.Capability, req.Action) {
		if repoPath == "" {
			be := operation.NewError(operation.CodeNotARepository,
				"operation requires a recovery snapshot but carries no path-bearing parameter")
			return uc.finish(ctx, req, trackingID, tier, "", nil, start, be), nil
		}
		ref, err := uc.snapshots.Create(ctx, repoPath, req.Action, trackingID)
		if err != nil {
			be := operation.AsBrokerError(err)
			if be == nil {
				be = operation.NewError(operation.CodeExecutionError,
					fmt.Sprintf("create snapshot: %v", err))
			}
			return uc.finish(ctx, req, trackingID, tier, "", nil, start, be), nil
		}
		snapshotRef = ref
	}

	// 7. Execute under the hot-reloaded timeout
	executor, ok := uc.registry.Resolve(req.Capability, req.Action)
	if !ok {
		be := operation.NewError(operation.CodeExecutionError,
			fmt.Sprintf("no executor registered for %s/%s", req.Capability, req.Action))
		return uc.finish(ctx, req, trackingID, tier, snapshotRef, nil, start, be), nil
	}

	timeout := uc.configs.Config().Timeout()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	payload, execErr := executor.Execute(execCtx, req.Capability, req.Action, req.Params)
	cancel()

	// 8-9. Finalize, notify, reply
	var be *operation.BrokerError
	if execErr != nil {
		switch {
		case errors.Is(execErr, context.DeadlineExceeded):
			be = operation.NewRetryableError(operation.CodeOperationTimeout,
				fmt.Sprintf("execution exceeded %s", timeout))
		default:
			if b := operation.AsBrokerError(execErr); b != nil {
				be = b
			} else {
				be = operation.NewError(operation.CodeExecutionError, execErr.Error())
			}
		}
	}
	return uc.finish(ctx, req, trackingID, tier, snapshotRef, payload, start, be), nil
}

// finish writes the audit-end record, enqueues the best-effort
// notification, and builds the caller-facing result. Notification
// problems never alter the recorded outcome.
func (uc *UseCase) finish(
	ctx context.Context,
	req Request,
	trackingID string,
	tier operation.RiskTier,
	snapshotRef string,
	payload map[string]interface{},
	start time.Time,
	be *operation.BrokerError,
) *Result {
	status := operation.StatusCompleted
	if be != nil {
		status = operation.StatusFailed
	}
	outcome := operation.Outcome{
		Status:      status,
		SnapshotRef: snapshotRef,
		Duration:    time.Since(start),
		Err:         be,
	}
	if err := uc.audit.End(ctx, trackingID, outcome); err != nil {
		// The operation already happened; losing the result would be
		// worse than a ledger row stuck in_progress
		uc.logger.Error("write audit-end for %s: %v", trackingID, err)
	}

	message := RenderOutcome(trackingID, req.Capability, req.Action, status, tier, snapshotRef, be)
	if err := uc.outbox.Enqueue(ctx, trackingID, req.Actor, message); err != nil {
		uc.logger.Warn("enqueue notification for %s: %v", trackingID, err)
	}

	return &Result{
		Allowed:     true,
		TrackingID:  trackingID,
		Tier:        tier,
		SnapshotRef: snapshotRef,
		Payload:     payload,
		Err:         be,
	}
}

// repoPathFor picks the repository an operation affects: an explicit
// repo_path parameter wins, otherwise the directory of the first
// affected path
func (uc *UseCase) repoPathFor(req Request, paths []string) string {
	if rp, ok := req.Params["repo_path"].(string); ok && rp != "" {
		return rp
	}
	if len(paths) > 0 {
		return filepath.Dir(paths[0])
	}
	return ""
}

// isRecoveryAction reports whether the action itself restores or
// manages recovery state
func isRecoveryAction(capability, action string) bool {
	if capability == "snapshot" {
		return true
	}
	return capability == "git" && action == "rollback"
}

// collectPaths extracts every path-bearing parameter, singular and
// plural forms alike
func collectPaths(params map[string]interface{}) []string {
	var paths []string
	for _, key := range pathParamKeys {
		value, ok := params[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				paths = append(paths, v)
			}
		case []string:
			for _, p := range v {
				if p != "" {
					paths = append(paths, p)
				}
			}
		case []interface{}:
			for _, item := range v {
				if p, ok := item.(string); ok && p != "" {
					paths = append(paths, p)
				}
			}
		}
	}
	return paths
}
