package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// inboxEntry is one delivered message line in the JSONL inbox
type inboxEntry struct {
	Time        string `json:"time"`
	OperationID string `json:"operation_id"`
	Actor       string `json:"actor"`
	Message     string `json:"message"`
}

// FileNotifier delivers status messages by appending JSONL lines to a
// local inbox file that the chat transport tails. It is the default
// transport when no remote one is configured.
type FileNotifier struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFileNotifier creates a file-based notifier writing to path
func NewFileNotifier(fs afero.Fs, path string) *FileNotifier {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileNotifier{fs: fs, path: path}
}

// Notify appends one message line. Each append is atomic at the line
// level thanks to the internal lock and O_APPEND.
func (n *FileNotifier) Notify(ctx context.Context, operationID, actor, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := inboxEntry{
		Time:        time.Now().UTC().Format(time.RFC3339Nano),
		OperationID: operationID,
		Actor:       actor,
		Message:     message,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal inbox entry: %w", err)
	}
	data = append(data, '\n')

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.fs.MkdirAll(filepath.Dir(n.path), 0o755); err != nil {
		return fmt.Errorf("create inbox directory: %w", err)
	}
	file, err := n.fs.OpenFile(n.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open inbox: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("append inbox entry: %w", err)
	}
	return nil
}
