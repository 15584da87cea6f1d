package gitcli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/app"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/snapshot"
)

// Runner wraps the version-control binary for snapshot management.
// Every invocation names the target repository explicitly via -C, passes
// direct argument arrays, and is bounded by Timeout with forced-kill
// cleanup through exec.CommandContext.
type Runner struct {
	Bin     string
	Timeout time.Duration
	Logger  app.Logger
}

// NewRunner creates a Runner with the given binary and per-call timeout
func NewRunner(bin string, timeout time.Duration, logger app.Logger) *Runner {
	if logger == nil {
		logger = app.NopLogger()
	}
	return &Runner{Bin: bin, Timeout: timeout, Logger: logger}
}

// Run executes a single bounded git invocation against repoPath and
// returns trimmed combined output
func (r *Runner) Run(ctx context.Context, repoPath string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	argv := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(cctx, r.Bin, argv...)
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))

	if err != nil {
		return output, r.classify(cctx, err, output, args)
	}
	return output, nil
}

// classify maps a subprocess failure to the broker's error taxonomy,
// distinguishing tool-missing from not-a-repository from timed-out.
func (r *Runner) classify(ctx context.Context, err error, output string, args []string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return operation.NewRetryableError(operation.CodeSnapshotTimeout,
			fmt.Sprintf("%s %s timed out after %s", r.Bin, firstArg(args), r.Timeout)).
			WithDetail("args", strings.Join(args, " "))
	}
	if errors.Is(err, exec.ErrNotFound) {
		return operation.NewError(operation.CodeToolNotFound,
			fmt.Sprintf("%s binary not found in PATH", r.Bin))
	}
	if strings.Contains(output, "not a git repository") {
		return operation.NewError(operation.CodeNotARepository,
			"target directory is not version-controlled").
			WithDetail("output", output)
	}
	return fmt.Errorf("%s %s failed: %w (output: %s)", r.Bin, firstArg(args), err, output)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// RepoRoot resolves the repository root containing path. The tool itself
// answers, which handles nested and linked repository layouts correctly.
func (r *Runner) RepoRoot(ctx context.Context, path string) (string, error) {
	out, err := r.Run(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return out, nil
}

// Create marks a recovery point at the current head without switching
// the working tree's branch. On a name collision within the same minute
// a short suffix from the operation ID is appended and creation retried
// once.
func (r *Runner) Create(ctx context.Context, repoPath, kind, operationID string) (string, error) {
	root, err := r.RepoRoot(ctx, repoPath)
	if err != nil {
		return "", err
	}

	name := snapshot.BuildName(kind, time.Now())
	out, err := r.Run(ctx, root, "branch", name)
	if err != nil {
		if !strings.Contains(out, "already exists") {
			return "", err
		}
		name = snapshot.WithSuffix(name, operationID)
		if _, err := r.Run(ctx, root, "branch", name); err != nil {
			return "", err
		}
	}

	r.Logger.Info("created snapshot %s in %s", name, root)
	return name, nil
}

// List enumerates recovery points newest-first. Names that do not follow
// the convention are returned flagged as unparseable rather than dropped,
// so pruning never deletes something it could not understand.
func (r *Runner) List(ctx context.Context, repoPath string) ([]snapshot.Snapshot, error) {
	out, err := r.Run(ctx, repoPath,
		"for-each-ref", "--format=%(refname:short)", "refs/heads/"+snapshot.Prefix)
	if err != nil {
		return nil, err
	}

	snapshots := []snapshot.Snapshot{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		snapshots = append(snapshots, snapshot.ParseName(line))
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// Rollback restores all tracked files from ref into the current working
// tree without switching branches, then commits the restoration so full
// history is preserved. History is never rewritten and no destructive
// reset is used. A working tree that already matches ref is success,
// returning the current head.
func (r *Runner) Rollback(ctx context.Context, repoPath, ref, operationID string) (string, error) {
	root, err := r.RepoRoot(ctx, repoPath)
	if err != nil {
		return "", err
	}

	if _, err := r.Run(ctx, root, "rev-parse", "--verify", ref); err != nil {
		return "", operation.NewError(operation.CodeRollbackFailed,
			fmt.Sprintf("snapshot %s does not exist", ref))
	}

	if _, err := r.Run(ctx, root, "checkout", ref, "--", "."); err != nil {
		if be := operation.AsBrokerError(err); be != nil {
			return "", be
		}
		return "", operation.NewError(operation.CodeRollbackFailed,
			fmt.Sprintf("restore from %s failed: %v", ref, err))
	}

	if _, err := r.Run(ctx, root, "add", "-A"); err != nil {
		return "", operation.NewError(operation.CodeRollbackFailed,
			fmt.Sprintf("stage restored files: %v", err))
	}

	message := fmt.Sprintf("Restore from %s (operation %s)", ref, operationID)
	out, err := r.Run(ctx, root, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") {
			// Working tree already matched the snapshot
			return r.head(ctx, root)
		}
		if be := operation.AsBrokerError(err); be != nil {
			return "", be
		}
		return "", operation.NewError(operation.CodeCommitFailed,
			fmt.Sprintf("commit restoration: %v", err)).WithDetail("output", out)
	}

	r.Logger.Info("rolled back %s to %s", root, ref)
	return r.head(ctx, root)
}

func (r *Runner) head(ctx context.Context, root string) (string, error) {
	return r.Run(ctx, root, "rev-parse", "HEAD")
}

// Prune deletes recovery points older than retention, keeping the one
// currently checked out and anything unparseable. Each deletion is
// logged individually and a single failure does not abort the rest.
func (r *Runner) Prune(ctx context.Context, repoPath string, retention time.Duration) ([]string, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention period must be positive, got %s", retention)
	}

	root, err := r.RepoRoot(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	snapshots, err := r.List(ctx, root)
	if err != nil {
		return nil, err
	}

	current, err := r.Run(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-retention)
	deleted := []string{}
	for _, s := range snapshots {
		if !s.OlderThan(cutoff) {
			continue
		}
		if s.Name == current {
			r.Logger.Info("skipping currently checked out snapshot %s", s.Name)
			continue
		}
		if _, err := r.Run(ctx, root, "branch", "-D", s.Name); err != nil {
			r.Logger.Warn("failed to delete snapshot %s: %v", s.Name, err)
			continue
		}
		r.Logger.Info("pruned snapshot %s (created %s)", s.Name, s.CreatedAt.Format(time.RFC3339))
		deleted = append(deleted, s.Name)
	}
	return deleted, nil
}
