// Package config provides configuration loading and validation for cronwake.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [workspace]: Workspace directory settings
//   - [logging]: Logging level, format, and output
//   - [cron]: Scheduler store and timing settings
//   - [runner]: Job runner settings
//   - [heartbeat]: Heartbeat checker settings
//   - [events]: System event queue settings
//   - [metrics]: Prometheus exposition settings
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax, e.g. path = "${CRONWAKE_HOME:~/.cronwake}".
package config

import (
	"path/filepath"
	"time"

	"cronwake/internal/constants"
)

// Config represents the main application configuration.
type Config struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Logging   LoggingConfig   `toml:"logging"`
	Cron      CronConfig      `toml:"cron"`
	Runner    RunnerConfig    `toml:"runner"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Events    EventsConfig    `toml:"events"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// WorkspaceConfig holds the workspace directory settings.
type WorkspaceConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// CronConfig holds the scheduler settings.
type CronConfig struct {
	Enabled               bool   `toml:"enabled"`
	StoreFile             string `toml:"store_file"`
	StuckThresholdMinutes int    `toml:"stuck_threshold_minutes"`
	MinRefireGapMS        int    `toml:"min_refire_gap_ms"`
	WatchStore            bool   `toml:"watch_store"`
}

// StorePath returns the jobs file path, defaulting to the conventional
// location inside the workspace.
func (c *CronConfig) StorePath(workspacePath string) string {
	if c.StoreFile != "" {
		return c.StoreFile
	}
	return filepath.Join(workspacePath, constants.CronSubdirectory, constants.CronJobsFile)
}

// StuckThreshold returns the configured stuck-run threshold as a duration.
func (c *CronConfig) StuckThreshold() time.Duration {
	if c.StuckThresholdMinutes <= 0 {
		return constants.DefaultStuckRunThreshold
	}
	return time.Duration(c.StuckThresholdMinutes) * time.Minute
}

// MinRefireGap returns the configured minimum re-fire gap as a duration.
func (c *CronConfig) MinRefireGap() time.Duration {
	if c.MinRefireGapMS <= 0 {
		return constants.DefaultMinRefireGap
	}
	return time.Duration(c.MinRefireGapMS) * time.Millisecond
}

// RunnerConfig holds the job runner settings.
type RunnerConfig struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	WorkingDir     string `toml:"working_dir"`
}

// HeartbeatConfig holds the heartbeat checker settings.
type HeartbeatConfig struct {
	Enabled              bool `toml:"enabled"`
	CheckIntervalMinutes int  `toml:"check_interval_minutes"`
}

// EventsConfig holds the system event queue settings.
type EventsConfig struct {
	Capacity int `toml:"capacity"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}
