package route

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/YoshitsuguKoike/guardbroker/internal/app/config"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/registry"
	"github.com/YoshitsuguKoike/guardbroker/internal/application/service"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/notification"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/snapshot"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/service/classify"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/service/scope"
)

// eventLog records pipeline steps in the order they happened
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

// fakeAuditRepo keeps records in memory and logs start/end ordering
type fakeAuditRepo struct {
	log      *eventLog
	mu       sync.Mutex
	records  map[string]*operation.Record
	outcomes map[string]operation.Outcome
}

func newFakeAuditRepo(log *eventLog) *fakeAuditRepo {
	return &fakeAuditRepo{
		log:      log,
		records:  make(map[string]*operation.Record),
		outcomes: make(map[string]operation.Outcome),
	}
}

func (f *fakeAuditRepo) Start(ctx context.Context, record *operation.Record) error {
	f.log.add("audit-start")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.records[record.TrackingID()]; exists {
		return fmt.Errorf("duplicate tracking id")
	}
	f.records[record.TrackingID()] = record
	return nil
}

func (f *fakeAuditRepo) End(ctx context.Context, trackingID string, outcome operation.Outcome) error {
	f.log.add("audit-end")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.outcomes[trackingID]; exists {
		return fmt.Errorf("already finalized")
	}
	if _, exists := f.records[trackingID]; !exists {
		return fmt.Errorf("not found")
	}
	f.outcomes[trackingID] = outcome
	return nil
}

func (f *fakeAuditRepo) Find(ctx context.Context, trackingID string) (*operation.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[trackingID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return record, nil
}

func (f *fakeAuditRepo) List(ctx context.Context, limit int) ([]*operation.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*operation.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeAuditRepo) outcomeOf(t *testing.T, trackingID string) operation.Outcome {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome, ok := f.outcomes[trackingID]
	require.True(t, ok, "operation %s was never finalized", trackingID)
	return outcome
}

// fakeOutboxRepo records enqueued notifications
type fakeOutboxRepo struct {
	log     *eventLog
	mu      sync.Mutex
	entries []*notification.Record
}

func (f *fakeOutboxRepo) Enqueue(ctx context.Context, record *notification.Record) error {
	f.log.add("notify")
	f.mu.Lock()
	defer f.mu.Unlock()
	record.SetID(int64(len(f.entries) + 1))
	f.entries = append(f.entries, record)
	return nil
}

func (f *fakeOutboxRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*notification.Record, error) {
	return nil, nil
}
func (f *fakeOutboxRepo) MarkSent(ctx context.Context, id int64, at time.Time) error { return nil }
func (f *fakeOutboxRepo) MarkRetry(ctx context.Context, id int64, at, next time.Time, lastError string) error {
	return nil
}
func (f *fakeOutboxRepo) MarkFailed(ctx context.Context, id int64, at time.Time, lastError string) error {
	return nil
}
func (f *fakeOutboxRepo) List(ctx context.Context, limit int) ([]*notification.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*notification.Record, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

// fakeSnapshotter records Create calls; failures are injectable
type fakeSnapshotter struct {
	log       *eventLog
	mu        sync.Mutex
	created   []string
	createErr error
}

func (f *fakeSnapshotter) RepoRoot(ctx context.Context, path string) (string, error) {
	return path, nil
}

func (f *fakeSnapshotter) Create(ctx context.Context, repoPath, kind, operationID string) (string, error) {
	f.log.add("snapshot")
	if f.createErr != nil {
		return "", f.createErr
	}
	name := snapshot.WithSuffix(snapshot.BuildName(kind, time.Now()), operationID)
	f.mu.Lock()
	f.created = append(f.created, name)
	f.mu.Unlock()
	return name, nil
}

func (f *fakeSnapshotter) List(ctx context.Context, repoPath string) ([]snapshot.Snapshot, error) {
	return nil, nil
}
func (f *fakeSnapshotter) Rollback(ctx context.Context, repoPath, ref, operationID string) (string, error) {
	return "", nil
}
func (f *fakeSnapshotter) Prune(ctx context.Context, repoPath string, retention time.Duration) ([]string, error) {
	return nil, nil
}

// fakeExecutor runs a configurable function
type fakeExecutor struct {
	log *eventLog
	fn  func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, capability, action string, params map[string]interface{}) (map[string]interface{}, error) {
	f.log.add("execute")
	if f.fn == nil {
		return map[string]interface{}{"ok": true}, nil
	}
	return f.fn(ctx, params)
}

type staticProvider struct{ cfg appconfig.Config }

func (p staticProvider) Config() appconfig.Config { return p.cfg }

type routeEnv struct {
	uc       *UseCase
	root     string
	log      *eventLog
	audit    *fakeAuditRepo
	outbox   *fakeOutboxRepo
	snaps    *fakeSnapshotter
	registry *registry.Registry
}

func setupRouteEnv(t *testing.T, timeoutSec int) *routeEnv {
	t.Helper()

	root := t.TempDir()
	validator, err := scope.NewValidator([]string{root})
	require.NoError(t, err)
	root = validator.Roots()[0]

	classifier, err := classify.NewClassifier()
	require.NoError(t, err)

	log := &eventLog{}
	audit := newFakeAuditRepo(log)
	outboxRepo := &fakeOutboxRepo{log: log}
	outbox := service.NewOutboxService(outboxRepo, nil, service.DefaultOutboxConfig(), nil)
	snaps := &fakeSnapshotter{log: log}
	reg := registry.New()

	cfg := appconfig.NewAppConfig(appconfig.Values{TimeoutSec: timeoutSec})

	return &routeEnv{
		uc:       NewUseCase(validator, classifier, reg, audit, outbox, snaps, staticProvider{cfg}, nil),
		root:     root,
		log:      log,
		audit:    audit,
		outbox:   outboxRepo,
		snaps:    snaps,
		registry: reg,
	}
}

func (e *routeEnv) register(t *testing.T, capability, action string, fn func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)) {
	t.Helper()
	require.NoError(t, e.registry.Register(capability, action, &fakeExecutor{log: e.log, fn: fn}))
}

func TestRoute_PipelineOrder(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "file", "patch", nil)

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "patch",
		Actor:      "operator",
		Params:     map[string]interface{}{"path": filepath.Join(e.root, "a.go")},
	})
	require.NoError(t, err)
	require.Nil(t, result.Err)
	assert.True(t, result.Allowed)
	assert.Equal(t, operation.TierSingleUnit, result.Tier)
	assert.NotEmpty(t, result.TrackingID)
	assert.NotEmpty(t, result.SnapshotRef)
	assert.Equal(t, map[string]interface{}{"ok": true}, result.Payload)

	// The pipeline order is fixed: ledger first, recovery point before
	// execution, outcome recorded before anyone is told about it
	assert.Equal(t, []string{"audit-start", "snapshot", "execute", "audit-end", "notify"}, e.log.list())

	outcome := e.audit.outcomeOf(t, result.TrackingID)
	assert.Equal(t, operation.StatusCompleted, outcome.Status)
	assert.Equal(t, result.SnapshotRef, outcome.SnapshotRef)
}

func TestRoute_ScopeDenialLeavesNoTrace(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "file", "patch", nil)

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "patch",
		Actor:      "operator",
		Params:     map[string]interface{}{"path": "/etc/passwd"},
	})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	require.NotNil(t, result.Err)
	assert.Equal(t, operation.CodeScopeViolation, result.Err.Code)
	assert.Equal(t, "/etc/passwd", result.Err.Details["path"])
	assert.NotEmpty(t, result.Err.Details["reason"])

	// Nothing ran, nothing was recorded, nothing was snapshotted
	assert.Empty(t, e.log.list())
}

func TestRoute_TraversalDenied(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "file", "patch", nil)

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "patch",
		Params:     map[string]interface{}{"path": filepath.Join(e.root, "..", "escape.go")},
	})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	require.NotNil(t, result.Err)
	assert.Equal(t, operation.CodeScopeViolation, result.Err.Code)
}

func TestRoute_ReadOnlySkipsSnapshot(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "file", "read", nil)

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "read",
		Params:     map[string]interface{}{"path": filepath.Join(e.root, "a.go")},
	})
	require.NoError(t, err)
	require.Nil(t, result.Err)
	assert.Equal(t, operation.TierReadOnly, result.Tier)
	assert.Empty(t, result.SnapshotRef)
	assert.Equal(t, []string{"audit-start", "execute", "audit-end", "notify"}, e.log.list())
}

func TestRoute_DestructiveTierRefused(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "file", "delete", nil)
	e.register(t, "git", "reset_hard", nil)

	for _, req := range []Request{
		{Capability: "file", Action: "delete", Actor: "operator",
			Params: map[string]interface{}{"path": filepath.Join(e.root, "a.go")}},
		{Capability: "git", Action: "reset_hard", Actor: "operator",
			Params: map[string]interface{}{"repo_path": e.root}},
	} {
		e.log = &eventLog{}
		e.audit.log = e.log
		e.outbox.log = e.log
		e.snaps.log = e.log

		result, err := e.uc.Route(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "%s/%s was admitted and ledgered", req.Capability, req.Action)
		assert.Equal(t, operation.TierDestructive, result.Tier)
		require.NotNil(t, result.Err)
		assert.Equal(t, operation.CodeConfirmationRequired, result.Err.Code)
		assert.False(t, result.Err.Retryable)
		assert.Empty(t, result.SnapshotRef)

		// Refused before the snapshot and execute steps, but the refusal
		// itself is audited and announced
		assert.Equal(t, []string{"audit-start", "audit-end", "notify"}, e.log.list())

		outcome := e.audit.outcomeOf(t, result.TrackingID)
		assert.Equal(t, operation.StatusFailed, outcome.Status)
		require.NotNil(t, outcome.Err)
		assert.Equal(t, operation.CodeConfirmationRequired, outcome.Err.Code)
	}
}

func TestRoute_RecoveryActionSkipsSnapshot(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "git", "rollback", nil)
	e.register(t, "snapshot", "prune", nil)

	for _, req := range []Request{
		{Capability: "git", Action: "rollback", Params: map[string]interface{}{"repo_path": e.root}},
		{Capability: "snapshot", Action: "prune", Params: map[string]interface{}{"repo_path": e.root}},
	} {
		e.log = &eventLog{}
		e.audit.log = e.log
		e.outbox.log = e.log
		e.snaps.log = e.log

		result, err := e.uc.Route(context.Background(), req)
		require.NoError(t, err)
		require.Nil(t, result.Err, "%s/%s", req.Capability, req.Action)
		assert.Empty(t, result.SnapshotRef)
		assert.NotContains(t, e.log.list(), "snapshot")
	}
}

func TestRoute_SnapshotRequiredButNoRepo(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "git", "commit", nil)

	// Tier 1 but no path-bearing parameter at all
	result, err := e.uc.Route(context.Background(), Request{
		Capability: "git",
		Action:     "commit",
		Params:     map[string]interface{}{"message": "x"},
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	require.NotNil(t, result.Err)
	assert.Equal(t, operation.CodeNotARepository, result.Err.Code)

	// Refused before execution, but fully audited
	events := e.log.list()
	assert.NotContains(t, events, "execute")
	assert.Contains(t, events, "audit-end")

	outcome := e.audit.outcomeOf(t, result.TrackingID)
	assert.Equal(t, operation.StatusFailed, outcome.Status)
}

func TestRoute_SnapshotFailureAbortsExecution(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "file", "patch", nil)
	e.snaps.createErr = operation.NewRetryableError(operation.CodeSnapshotTimeout, "git branch timed out")

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "patch",
		Params:     map[string]interface{}{"path": filepath.Join(e.root, "a.go")},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Err)
	assert.Equal(t, operation.CodeSnapshotTimeout, result.Err.Code)
	assert.True(t, result.Err.Retryable)
	assert.Empty(t, result.SnapshotRef)

	// No recovery point means no execution
	assert.Equal(t, []string{"audit-start", "snapshot", "audit-end", "notify"}, e.log.list())
}

func TestRoute_ExecutionTimeout(t *testing.T) {
	e := setupRouteEnv(t, 1)
	e.register(t, "file", "read", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "read",
		Params:     map[string]interface{}{"path": filepath.Join(e.root, "a.go")},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Err)
	assert.Equal(t, operation.CodeOperationTimeout, result.Err.Code)
	assert.True(t, result.Err.Retryable)

	outcome := e.audit.outcomeOf(t, result.TrackingID)
	assert.Equal(t, operation.StatusFailed, outcome.Status)
}

func TestRoute_UnknownExecutorAudited(t *testing.T) {
	e := setupRouteEnv(t, 30)
	// file/read is in the risk table but nothing is registered for it

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "read",
		Params:     map[string]interface{}{"path": filepath.Join(e.root, "a.go")},
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	require.NotNil(t, result.Err)
	assert.Equal(t, operation.CodeExecutionError, result.Err.Code)

	outcome := e.audit.outcomeOf(t, result.TrackingID)
	assert.Equal(t, operation.StatusFailed, outcome.Status)
}

func TestRoute_ExecutorBrokerErrorPassesThrough(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "git", "commit", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		return nil, operation.NewError(operation.CodeCommitFailed, "empty commit refused").
			WithDetail("stderr", "nothing added")
	})

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "git",
		Action:     "commit",
		Params:     map[string]interface{}{"repo_path": e.root},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Err)
	assert.Equal(t, operation.CodeCommitFailed, result.Err.Code)
	assert.Equal(t, "nothing added", result.Err.Details["stderr"])
}

func TestRoute_PlainExecutorErrorWrapped(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "file", "read", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("disk on fire")
	})

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "read",
		Params:     map[string]interface{}{"path": filepath.Join(e.root, "a.go")},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Err)
	assert.Equal(t, operation.CodeExecutionError, result.Err.Code)
	assert.Contains(t, result.Err.Message, "disk on fire")
}

func TestRoute_MultiFileEscalation(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "file", "patch", nil)

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "patch",
		Params: map[string]interface{}{
			"paths": []string{filepath.Join(e.root, "a.go"), filepath.Join(e.root, "b.go")},
		},
	})
	require.NoError(t, err)
	require.Nil(t, result.Err)
	assert.Equal(t, operation.TierMultiUnit, result.Tier)
	assert.NotEmpty(t, result.SnapshotRef)
}

func TestRoute_UnknownPairDefaultsConservatively(t *testing.T) {
	e := setupRouteEnv(t, 30)

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "novel",
		Action:     "thing",
		Params:     map[string]interface{}{"path": filepath.Join(e.root, "a.go")},
	})
	require.NoError(t, err)
	assert.Equal(t, operation.TierMultiUnit, result.Tier)
	// Conservative default means a recovery point is taken before the
	// (missing) executor is even looked up
	assert.Contains(t, e.log.list(), "snapshot")
}

func TestRoute_NotificationCarriesOutcome(t *testing.T) {
	e := setupRouteEnv(t, 30)
	e.register(t, "file", "patch", nil)

	result, err := e.uc.Route(context.Background(), Request{
		Capability: "file",
		Action:     "patch",
		Actor:      "operator",
		Params:     map[string]interface{}{"path": filepath.Join(e.root, "a.go")},
	})
	require.NoError(t, err)
	require.Nil(t, result.Err)

	queued, err := e.outbox.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, result.TrackingID, queued[0].OperationID())
	assert.Equal(t, "operator", queued[0].Actor())
	assert.Contains(t, queued[0].Message(), "Completed file/patch")
	assert.Contains(t, queued[0].Message(), result.SnapshotRef)
}

func TestRoute_SameRepoSerialized(t *testing.T) {
	e := setupRouteEnv(t, 30)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	e.register(t, "file", "patch", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.uc.Route(context.Background(), Request{
				Capability: "file",
				Action:     "patch",
				Params:     map[string]interface{}{"path": filepath.Join(e.root, "a.go")},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "mutations of one repository must not overlap")
}

func TestCollectPaths(t *testing.T) {
	paths := collectPaths(map[string]interface{}{
		"path":       "a.go",
		"file_paths": []interface{}{"b.go", "c.go", 42},
		"paths":      []string{"d.go", ""},
		"message":    "not a path",
	})
	assert.ElementsMatch(t, []string{"a.go", "b.go", "c.go", "d.go"}, paths)

	assert.Empty(t, collectPaths(nil))
	assert.Empty(t, collectPaths(map[string]interface{}{"message": "x"}))
}

func TestKeyedMutex_DistinctKeysConcurrent(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.lock("repo-a")
	done := make(chan struct{})
	go func() {
		unlockB := km.lock("repo-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct keys must not block each other")
	}
	unlockA()

	// Map entries are released once unused
	km.mu.Lock()
	assert.Empty(t, km.locks)
	km.mu.Unlock()
}
