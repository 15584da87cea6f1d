package executor

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
	"github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/gitcli"
)

// GitReadExecutor handles the read-only git capability actions the
// broker ships with: status, diff and log. Anything state-changing
// stays with the external agent-side executors.
type GitReadExecutor struct {
	runner *gitcli.Runner
}

// NewGitReadExecutor creates a read-only git executor
func NewGitReadExecutor(runner *gitcli.Runner) *GitReadExecutor {
	return &GitReadExecutor{runner: runner}
}

// Execute runs the requested read-only action against the repository
// named by the repo_path parameter
func (e *GitReadExecutor) Execute(ctx context.Context, capability, action string, params map[string]interface{}) (map[string]interface{}, error) {
	repoPath, _ := params["repo_path"].(string)
	if repoPath == "" {
		return nil, operation.NewError(operation.CodeExecutionError,
			"git executor requires a repo_path parameter")
	}

	var args []string
	switch action {
	case "status":
		args = []string{"status", "--porcelain"}
	case "diff":
		args = []string{"diff"}
	case "log":
		args = []string{"log", "--oneline", "-20"}
	default:
		return nil, operation.NewError(operation.CodeExecutionError,
			fmt.Sprintf("unsupported git read action %q", action))
	}

	out, err := e.runner.Run(ctx, repoPath, args...)
	if err != nil {
		if be := operation.AsBrokerError(err); be != nil {
			// The runner reports timeouts in snapshot terms; here the
			// clock bounded a capability execution
			if be.Code == operation.CodeSnapshotTimeout {
				be = &operation.BrokerError{
					Code:      operation.CodeOperationTimeout,
					Message:   be.Message,
					Details:   be.Details,
					Retryable: true,
				}
			}
			return nil, be
		}
		return nil, operation.NewError(operation.CodeExecutionError, err.Error())
	}
	return map[string]interface{}{"output": out}, nil
}
