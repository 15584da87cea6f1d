package config

import "time"

// Config provides read-only access to broker configuration.
// It abstracts the configuration source (JSON file or defaults) so the
// application layer never depends on how settings are loaded.
type Config interface {
	// Core settings
	Home() string   // Base directory for the broker store and inbox
	GitBin() string // Version-control binary
	DBPath() string // SQLite database path

	// Timeouts
	Timeout() time.Duration         // Capability execution timeout (hot-reloadable)
	SnapshotTimeout() time.Duration // Per git invocation

	// Scope and snapshots
	AllowedRoots() []string          // Directories operations may touch
	RetentionPeriod() time.Duration  // Snapshot pruning horizon

	// Notification outbox
	NotifyInbox() string              // Default file transport target
	NotifyPollInterval() time.Duration
	NotifyBaseDelay() time.Duration   // First retry backoff
	NotifyMaxRetries() int

	// Postponement windows
	ClarifyWindow() time.Duration    // Short wait for a clarifying reply
	RetryNotifyDelay() time.Duration // Long wait before the reminder
	RetryWindow() time.Duration      // Wait after the reminder before cancel

	// Logging
	StderrLevel() string

	// Metadata
	ConfigSource() string // "json" or "default"
	SettingPath() string  // Path to setting.json if loaded from file
}

// Provider yields the current configuration. Implementations may
// re-read the underlying source so callers always observe fresh values.
type Provider interface {
	Config() Config
}

// Values holds the raw configuration values for AppConfig construction
type Values struct {
	Home                string
	GitBin              string
	DBPath              string
	TimeoutSec          int
	SnapshotTimeoutSec  int
	AllowedRoots        []string
	RetentionDays       int
	NotifyInbox         string
	NotifyPollSec       int
	NotifyBaseDelaySec  int
	NotifyMaxRetries    int
	ClarifyWindowSec    int
	RetryNotifyDelayMin int
	RetryWindowMin      int
	StderrLevel         string
	ConfigSource        string
	SettingPath         string
}

// AppConfig is the immutable concrete implementation of Config
type AppConfig struct {
	v Values
}

// NewAppConfig builds an AppConfig from loaded values
func NewAppConfig(v Values) *AppConfig {
	return &AppConfig{v: v}
}

func (c *AppConfig) Home() string   { return c.v.Home }
func (c *AppConfig) GitBin() string { return c.v.GitBin }
func (c *AppConfig) DBPath() string { return c.v.DBPath }

func (c *AppConfig) Timeout() time.Duration {
	return time.Duration(c.v.TimeoutSec) * time.Second
}

func (c *AppConfig) SnapshotTimeout() time.Duration {
	return time.Duration(c.v.SnapshotTimeoutSec) * time.Second
}

func (c *AppConfig) AllowedRoots() []string {
	roots := make([]string, len(c.v.AllowedRoots))
	copy(roots, c.v.AllowedRoots)
	return roots
}

func (c *AppConfig) RetentionPeriod() time.Duration {
	return time.Duration(c.v.RetentionDays) * 24 * time.Hour
}

func (c *AppConfig) NotifyInbox() string { return c.v.NotifyInbox }

func (c *AppConfig) NotifyPollInterval() time.Duration {
	return time.Duration(c.v.NotifyPollSec) * time.Second
}

func (c *AppConfig) NotifyBaseDelay() time.Duration {
	return time.Duration(c.v.NotifyBaseDelaySec) * time.Second
}

func (c *AppConfig) NotifyMaxRetries() int { return c.v.NotifyMaxRetries }

func (c *AppConfig) ClarifyWindow() time.Duration {
	return time.Duration(c.v.ClarifyWindowSec) * time.Second
}

func (c *AppConfig) RetryNotifyDelay() time.Duration {
	return time.Duration(c.v.RetryNotifyDelayMin) * time.Minute
}

func (c *AppConfig) RetryWindow() time.Duration {
	return time.Duration(c.v.RetryWindowMin) * time.Minute
}

func (c *AppConfig) StderrLevel() string  { return c.v.StderrLevel }
func (c *AppConfig) ConfigSource() string { return c.v.ConfigSource }
func (c *AppConfig) SettingPath() string  { return c.v.SettingPath }
