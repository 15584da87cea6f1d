package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/guardbroker/internal/application/usecase/route"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/postpone"
	"github.com/YoshitsuguKoike/guardbroker/internal/infrastructure/di"
)

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *captureNotifier) Notify(ctx context.Context, operationID, actor, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *captureNotifier) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

func newPostponeTestContainer(t *testing.T) (*di.Container, *captureNotifier, string) {
	t.Helper()

	baseDir := t.TempDir()
	workRoot := t.TempDir()
	settings := fmt.Sprintf(`{"allowed_roots": [%q], "stderr_level": "error"}`, workRoot)
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "setting.json"), []byte(settings), 0o644))

	notifier := &captureNotifier{}
	c, err := di.NewContainer(di.Config{
		BaseDir:  baseDir,
		Notifier: notifier,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, notifier, workRoot
}

func runPostpone(t *testing.T, c *di.Container, args ...string) string {
	t.Helper()

	cmd := newPostponeCmd(func() *di.Container { return c })
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestPostponeCreate_ParksRequest(t *testing.T) {
	c, notifier, _ := newPostponeTestContainer(t)

	out := runPostpone(t, c, "create",
		"--capability", "file", "--action", "transmute", "--actor", "operator",
		"--param", "mode=unknown",
		"--option", "overwrite in place", "--option", "write a copy",
	)
	assert.Contains(t, out, "postponed as")

	pending, err := c.PostponeRepository().FindPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	record := pending[0]
	assert.Equal(t, postpone.PhaseAwaiting, record.Phase())
	assert.Equal(t, []string{"overwrite in place", "write a copy"}, record.Options())

	// The payload is the original request, ready to re-route
	var req route.Request
	require.NoError(t, json.Unmarshal([]byte(record.Payload()), &req))
	assert.Equal(t, "file", req.Capability)
	assert.Equal(t, "transmute", req.Action)
	assert.Equal(t, "unknown", req.Params["mode"])

	// Ledgered as a terminal, non-executing outcome
	audited, err := c.AuditRepository().Find(context.Background(), record.ID())
	require.NoError(t, err)
	assert.Equal(t, operation.StatusPostponed, audited.Status())

	// The clarification request left the outbox before the command returned
	messages := notifier.list()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "needs clarification")
	assert.Contains(t, messages[0], "overwrite in place")
}

func TestPostponeCreateThenResolve(t *testing.T) {
	c, _, workRoot := newPostponeTestContainer(t)

	out := runPostpone(t, c, "create",
		"--capability", "file", "--action", "read",
		"--path", filepath.Join(workRoot, "a.go"),
		"--option", "yes", "--option", "no",
	)
	id := strings.TrimSpace(strings.Split(strings.TrimPrefix(
		strings.Split(out, "\n")[0], "postponed as "), " ")[0])
	require.NotEmpty(t, id)

	out = runPostpone(t, c, "resolve", id, "--choice", "yes")
	assert.Contains(t, out, "resumed as")

	record, err := c.PostponeRepository().Find(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, postpone.PhaseResumed, record.Phase())
	assert.Equal(t, "yes", record.ResolvedWith())

	// A resolved entry cannot be resolved again
	_, err = c.PostponeService().Resolve(context.Background(), id, "no")
	assert.Error(t, err)
}
