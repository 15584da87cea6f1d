package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/YoshitsuguKoike/guardbroker/internal/app/config"
)

// RawSettings represents the structure of the setting.json file.
// Pointer fields distinguish "absent" from "zero".
type RawSettings struct {
	// Core settings
	Home   *string `json:"home"`
	GitBin *string `json:"git_bin"`
	DBPath *string `json:"db_path"`

	// Timeouts
	TimeoutSec         *int `json:"timeout_sec"`
	SnapshotTimeoutSec *int `json:"snapshot_timeout_sec"`

	// Scope and snapshots
	AllowedRoots  []string `json:"allowed_roots"`
	RetentionDays *int     `json:"retention_days"`

	// Notification outbox
	NotifyInbox        *string `json:"notify_inbox"`
	NotifyPollSec      *int    `json:"notify_poll_sec"`
	NotifyBaseDelaySec *int    `json:"notify_base_delay_sec"`
	NotifyMaxRetries   *int    `json:"notify_max_retries"`

	// Postponement windows
	ClarifyWindowSec    *int `json:"clarify_window_sec"`
	RetryNotifyDelayMin *int `json:"retry_notify_delay_min"`
	RetryWindowMin      *int `json:"retry_window_min"`

	// Logging
	StderrLevel *string `json:"stderr_level"`
}

// LoadSettings loads configuration from setting.json in baseDir.
// Priority: setting.json > defaults.
func LoadSettings(baseDir string) (*config.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	jsonPath := filepath.Join(baseDir, "setting.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
		configSource = "json"
		settingPath = jsonPath
	}

	applyDefaults(settings, baseDir)

	return buildAppConfig(settings, configSource, settingPath), nil
}

// applyDefaults fills in default values for any nil fields
func applyDefaults(settings *RawSettings, baseDir string) {
	if settings.Home == nil {
		v := baseDir
		settings.Home = &v
	}
	if settings.GitBin == nil {
		v := "git"
		settings.GitBin = &v
	}
	if settings.DBPath == nil {
		v := filepath.Join(*settings.Home, "guardbroker.db")
		settings.DBPath = &v
	}

	if settings.TimeoutSec == nil {
		v := 300 // capability executors may run formatters or tests
		settings.TimeoutSec = &v
	}
	if settings.SnapshotTimeoutSec == nil {
		v := 30
		settings.SnapshotTimeoutSec = &v
	}

	if len(settings.AllowedRoots) == 0 {
		if wd, err := os.Getwd(); err == nil {
			settings.AllowedRoots = []string{wd}
		}
	}
	if settings.RetentionDays == nil {
		v := 14
		settings.RetentionDays = &v
	}

	if settings.NotifyInbox == nil {
		v := filepath.Join(*settings.Home, "inbox.jsonl")
		settings.NotifyInbox = &v
	}
	if settings.NotifyPollSec == nil {
		v := 5
		settings.NotifyPollSec = &v
	}
	if settings.NotifyBaseDelaySec == nil {
		v := 10
		settings.NotifyBaseDelaySec = &v
	}
	if settings.NotifyMaxRetries == nil {
		v := 5
		settings.NotifyMaxRetries = &v
	}

	if settings.ClarifyWindowSec == nil {
		v := 45
		settings.ClarifyWindowSec = &v
	}
	if settings.RetryNotifyDelayMin == nil {
		v := 20
		settings.RetryNotifyDelayMin = &v
	}
	if settings.RetryWindowMin == nil {
		v := 10
		settings.RetryWindowMin = &v
	}

	if settings.StderrLevel == nil {
		v := "warn"
		settings.StderrLevel = &v
	}
}

// buildAppConfig converts RawSettings to AppConfig
func buildAppConfig(settings *RawSettings, configSource, settingPath string) *config.AppConfig {
	return config.NewAppConfig(config.Values{
		Home:                *settings.Home,
		GitBin:              *settings.GitBin,
		DBPath:              *settings.DBPath,
		TimeoutSec:          *settings.TimeoutSec,
		SnapshotTimeoutSec:  *settings.SnapshotTimeoutSec,
		AllowedRoots:        settings.AllowedRoots,
		RetentionDays:       *settings.RetentionDays,
		NotifyInbox:         *settings.NotifyInbox,
		NotifyPollSec:       *settings.NotifyPollSec,
		NotifyBaseDelaySec:  *settings.NotifyBaseDelaySec,
		NotifyMaxRetries:    *settings.NotifyMaxRetries,
		ClarifyWindowSec:    *settings.ClarifyWindowSec,
		RetryNotifyDelayMin: *settings.RetryNotifyDelayMin,
		RetryWindowMin:      *settings.RetryWindowMin,
		StderrLevel:         *settings.StderrLevel,
		ConfigSource:        configSource,
		SettingPath:         settingPath,
	})
}

// CreateDefaultSettings creates a default setting.json content
func CreateDefaultSettings(baseDir string) []byte {
	settings := &RawSettings{}
	applyDefaults(settings, baseDir)

	data, _ := json.MarshalIndent(settings, "", "  ")
	return data
}
