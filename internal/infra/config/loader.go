package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/guardbroker/internal/app/config"
)

// Loader serves configuration and re-reads setting.json when its
// modification time changes, so values like the execution timeout take
// effect without a restart.
type Loader struct {
	baseDir string

	mu      sync.RWMutex
	current *config.AppConfig
	mtime   time.Time
}

// NewLoader loads the initial configuration from baseDir
func NewLoader(baseDir string) (*Loader, error) {
	cfg, err := LoadSettings(baseDir)
	if err != nil {
		return nil, err
	}
	l := &Loader{baseDir: baseDir, current: cfg}
	l.mtime = l.settingMtime()
	return l, nil
}

// Config returns the current configuration, reloading first when the
// settings file changed on disk. A reload failure keeps the previous
// configuration rather than propagating a broken state.
func (l *Loader) Config() config.Config {
	mtime := l.settingMtime()

	l.mu.RLock()
	unchanged := mtime.Equal(l.mtime)
	cfg := l.current
	l.mu.RUnlock()
	if unchanged {
		return cfg
	}

	fresh, err := LoadSettings(l.baseDir)
	if err != nil {
		return cfg
	}

	l.mu.Lock()
	l.current = fresh
	l.mtime = mtime
	l.mu.Unlock()
	return fresh
}

func (l *Loader) settingMtime() time.Time {
	info, err := os.Stat(filepath.Join(l.baseDir, "setting.json"))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
