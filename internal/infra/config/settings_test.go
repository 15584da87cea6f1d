package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	baseDir := t.TempDir()

	cfg, err := LoadSettings(baseDir)
	require.NoError(t, err)

	assert.Equal(t, baseDir, cfg.Home())
	assert.Equal(t, "git", cfg.GitBin())
	assert.Equal(t, filepath.Join(baseDir, "guardbroker.db"), cfg.DBPath())
	assert.Equal(t, 300*time.Second, cfg.Timeout())
	assert.Equal(t, 30*time.Second, cfg.SnapshotTimeout())
	assert.Equal(t, 14*24*time.Hour, cfg.RetentionPeriod())
	assert.Equal(t, filepath.Join(baseDir, "inbox.jsonl"), cfg.NotifyInbox())
	assert.Equal(t, 5, cfg.NotifyMaxRetries())
	assert.Equal(t, 10*time.Second, cfg.NotifyBaseDelay())
	assert.Equal(t, 45*time.Second, cfg.ClarifyWindow())
	assert.Equal(t, 20*time.Minute, cfg.RetryNotifyDelay())
	assert.Equal(t, 10*time.Minute, cfg.RetryWindow())
	assert.Equal(t, "warn", cfg.StderrLevel())
	assert.Equal(t, "default", cfg.ConfigSource())
	assert.Empty(t, cfg.SettingPath())

	// With no explicit roots the current directory is the scope
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, []string{wd}, cfg.AllowedRoots())
}

func TestLoadSettings_FromJSON(t *testing.T) {
	baseDir := t.TempDir()
	settingPath := filepath.Join(baseDir, "setting.json")
	require.NoError(t, os.WriteFile(settingPath, []byte(`{
		"git_bin": "/usr/local/bin/git",
		"timeout_sec": 60,
		"allowed_roots": ["/work/projects"],
		"retention_days": 7,
		"notify_max_retries": 3,
		"stderr_level": "debug"
	}`), 0o644))

	cfg, err := LoadSettings(baseDir)
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/git", cfg.GitBin())
	assert.Equal(t, 60*time.Second, cfg.Timeout())
	assert.Equal(t, []string{"/work/projects"}, cfg.AllowedRoots())
	assert.Equal(t, 7*24*time.Hour, cfg.RetentionPeriod())
	assert.Equal(t, 3, cfg.NotifyMaxRetries())
	assert.Equal(t, "debug", cfg.StderrLevel())
	assert.Equal(t, "json", cfg.ConfigSource())
	assert.Equal(t, settingPath, cfg.SettingPath())

	// Unset fields still get defaults
	assert.Equal(t, 30*time.Second, cfg.SnapshotTimeout())
}

func TestLoadSettings_InvalidJSON(t *testing.T) {
	baseDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "setting.json"), []byte("{nope"), 0o644))

	_, err := LoadSettings(baseDir)
	assert.Error(t, err)
}

func TestCreateDefaultSettings(t *testing.T) {
	data := CreateDefaultSettings("/broker/home")

	var raw RawSettings
	require.NoError(t, json.Unmarshal(data, &raw))
	require.NotNil(t, raw.Home)
	assert.Equal(t, "/broker/home", *raw.Home)
	require.NotNil(t, raw.TimeoutSec)
	assert.Equal(t, 300, *raw.TimeoutSec)
}

func TestLoader_HotReload(t *testing.T) {
	baseDir := t.TempDir()
	settingPath := filepath.Join(baseDir, "setting.json")
	require.NoError(t, os.WriteFile(settingPath, []byte(`{"timeout_sec": 60}`), 0o644))

	loader, err := NewLoader(baseDir)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, loader.Config().Timeout())

	// Rewrite with a bumped mtime; the next read observes the change
	require.NoError(t, os.WriteFile(settingPath, []byte(`{"timeout_sec": 90}`), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(settingPath, future, future))

	assert.Equal(t, 90*time.Second, loader.Config().Timeout())
}

func TestLoader_BrokenReloadKeepsPrevious(t *testing.T) {
	baseDir := t.TempDir()
	settingPath := filepath.Join(baseDir, "setting.json")
	require.NoError(t, os.WriteFile(settingPath, []byte(`{"timeout_sec": 60}`), 0o644))

	loader, err := NewLoader(baseDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(settingPath, []byte("{broken"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(settingPath, future, future))

	// The previous good configuration keeps serving
	assert.Equal(t, 60*time.Second, loader.Config().Timeout())
}

func TestLoader_NoSettingsFile(t *testing.T) {
	loader, err := NewLoader(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, loader.Config().Timeout())
}
