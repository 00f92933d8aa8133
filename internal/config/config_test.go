package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[workspace]
path = "/tmp/cronwake-test"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cronwake-test", cfg.Workspace.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 120, cfg.Cron.StuckThresholdMinutes)
	assert.Equal(t, 2000, cfg.Cron.MinRefireGapMS)
	assert.Equal(t, 600, cfg.Runner.TimeoutSeconds)
	assert.Equal(t, 1000, cfg.Events.Capacity)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
[workspace]
path = "/srv/cronwake"

[logging]
level = "debug"
format = "text"
output = "stderr"

[cron]
enabled = true
stuck_threshold_minutes = 30
min_refire_gap_ms = 500
watch_store = true

[heartbeat]
enabled = true
check_interval_minutes = 10

[metrics]
enabled = true
listen = ":9999"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Cron.Enabled)
	assert.True(t, cfg.Cron.WatchStore)
	assert.Equal(t, 30*time.Minute, cfg.Cron.StuckThreshold())
	assert.Equal(t, 500*time.Millisecond, cfg.Cron.MinRefireGap())
	assert.Equal(t, ":9999", cfg.Metrics.Listen)
	assert.Empty(t, cfg.Validate())
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CRONWAKE_TEST_WS", "/var/lib/cronwake")

	path := writeConfig(t, `
[workspace]
path = "${CRONWAKE_TEST_WS}"

[cron]
store_file = "${CRONWAKE_TEST_STORE:/tmp/jobs.json}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/cronwake", cfg.Workspace.Path)
	assert.Equal(t, "/tmp/jobs.json", cfg.Cron.StoreFile)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, `workspace = [not toml`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		applyDefaults(c)
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing workspace path",
			mutate:  func(c *Config) { c.Workspace.Path = "" },
			wantErr: "workspace.path is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid logging.format",
		},
		{
			name:    "negative stuck threshold",
			mutate:  func(c *Config) { c.Cron.StuckThresholdMinutes = -1 },
			wantErr: "stuck_threshold_minutes",
		},
		{
			name:    "negative refire gap",
			mutate:  func(c *Config) { c.Cron.MinRefireGapMS = -1 },
			wantErr: "min_refire_gap_ms",
		},
		{
			name:    "path traversal in store file",
			mutate:  func(c *Config) { c.Cron.StoreFile = "/srv/../etc/jobs.json" },
			wantErr: "path traversal",
		},
		{
			name: "heartbeat enabled without interval",
			mutate: func(c *Config) {
				c.Heartbeat.Enabled = true
				c.Heartbeat.CheckIntervalMinutes = 0
			},
			wantErr: "check_interval_minutes",
		},
		{
			name: "metrics enabled without listen address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Listen = ""
			},
			wantErr: "metrics.listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			found := false
			for _, e := range errs {
				if strings.Contains(e.Error(), tt.wantErr) {
					found = true
				}
			}
			assert.True(t, found, "expected an error containing %q, got %v", tt.wantErr, errs)
		})
	}
}

func TestCronConfig_StorePath(t *testing.T) {
	c := CronConfig{}
	assert.Equal(t, filepath.Join("/ws", "cron", "jobs.json"), c.StorePath("/ws"))

	c.StoreFile = "/explicit/jobs.json"
	assert.Equal(t, "/explicit/jobs.json", c.StorePath("/ws"))
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `
# comment
CRONWAKE_TEST_KEY=value1

CRONWAKE_TEST_OTHER = spaced
not-a-pair
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CRONWAKE_TEST_KEY", "")
	t.Setenv("CRONWAKE_TEST_OTHER", "")

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "value1", os.Getenv("CRONWAKE_TEST_KEY"))
	assert.Equal(t, "spaced", os.Getenv("CRONWAKE_TEST_OTHER"))
}

func TestLoadEnvOptional(t *testing.T) {
	assert.NoError(t, LoadEnvOptional(filepath.Join(t.TempDir(), "missing.env")))
}
