package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML configuration file, applies defaults, and expands
// environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := expandEnvVars(&cfg); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() []error {
	var errors []error

	if c.Workspace.Path == "" {
		errors = append(errors, fmt.Errorf("workspace.path is required"))
	} else if err := validatePath(c.Workspace.Path, "workspace.path"); err != nil {
		errors = append(errors, err)
	}

	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}

	if c.Logging.Format == "" {
		errors = append(errors, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Logging.Output == "" {
		errors = append(errors, fmt.Errorf("logging.output is required"))
	}

	if c.Cron.StuckThresholdMinutes < 0 {
		errors = append(errors, fmt.Errorf("cron.stuck_threshold_minutes cannot be negative"))
	}
	if c.Cron.MinRefireGapMS < 0 {
		errors = append(errors, fmt.Errorf("cron.min_refire_gap_ms cannot be negative"))
	}
	if c.Cron.StoreFile != "" {
		if err := validatePath(c.Cron.StoreFile, "cron.store_file"); err != nil {
			errors = append(errors, err)
		}
	}

	if c.Runner.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("runner.timeout_seconds cannot be negative"))
	}
	if c.Runner.WorkingDir != "" {
		if err := validatePath(c.Runner.WorkingDir, "runner.working_dir"); err != nil {
			errors = append(errors, err)
		}
	}

	if c.Heartbeat.Enabled && c.Heartbeat.CheckIntervalMinutes <= 0 {
		errors = append(errors, fmt.Errorf("heartbeat.check_interval_minutes must be positive when heartbeat is enabled"))
	}

	if c.Events.Capacity < 0 {
		errors = append(errors, fmt.Errorf("events.capacity cannot be negative"))
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errors = append(errors, fmt.Errorf("metrics.listen is required when metrics are enabled"))
	}

	return errors
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if strings.HasPrefix(path, "~") {
		return nil
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}

	return nil
}

// expandEnvVars expands environment variable references and ~ in path-like
// fields.
func expandEnvVars(c *Config) error {
	if strings.HasPrefix(c.Workspace.Path, "${") {
		c.Workspace.Path = expandEnv(c.Workspace.Path)
	}
	c.Workspace.Path = expandHome(c.Workspace.Path)

	if strings.HasPrefix(c.Cron.StoreFile, "${") {
		c.Cron.StoreFile = expandEnv(c.Cron.StoreFile)
	}
	c.Cron.StoreFile = expandHome(c.Cron.StoreFile)

	if strings.HasPrefix(c.Runner.WorkingDir, "${") {
		c.Runner.WorkingDir = expandEnv(c.Runner.WorkingDir)
	}
	c.Runner.WorkingDir = expandHome(c.Runner.WorkingDir)

	return nil
}

// expandEnv expands an environment variable reference of the form
// ${VAR} or ${VAR:default}.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		key := parts[0]
		defaultVal := parts[1]
		if val := os.Getenv(key); val != "" {
			return val
		}
		return defaultVal
	}

	return os.Getenv(s[2:end])
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
