package output

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/snapshot"
)

// Snapshotter manages named recovery points in a version-controlled
// repository. Every call targets the repository explicitly and is
// bounded by a timeout.
type Snapshotter interface {
	// RepoRoot resolves the repository root containing path, asking the
	// version-control tool itself
	RepoRoot(ctx context.Context, path string) (string, error)

	// Create marks a recovery point named after kind and the current
	// minute, without switching the working tree's branch. Name
	// collisions within a minute gain a suffix derived from operationID.
	Create(ctx context.Context, repoPath, kind, operationID string) (string, error)

	// List enumerates recovery points newest-first. Entries whose name
	// cannot be parsed are returned flagged, never dropped.
	List(ctx context.Context, repoPath string) ([]snapshot.Snapshot, error)

	// Rollback restores all tracked files from ref into the working tree
	// without switching branches, then commits the restoration. A working
	// tree already matching ref is success, returning the current head.
	Rollback(ctx context.Context, repoPath, ref, operationID string) (string, error)

	// Prune deletes recovery points older than retention, except the one
	// currently checked out. One failed deletion does not abort the rest.
	// Returns the names actually deleted.
	Prune(ctx context.Context, repoPath string, retention time.Duration) ([]string, error)
}
