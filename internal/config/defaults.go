package config

// applyDefaults fills in default values for unset fields.
func applyDefaults(c *Config) {
	if c.Workspace.Path == "" {
		c.Workspace.Path = "~/.cronwake"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Cron.StuckThresholdMinutes == 0 {
		c.Cron.StuckThresholdMinutes = 120
	}
	if c.Cron.MinRefireGapMS == 0 {
		c.Cron.MinRefireGapMS = 2000
	}

	if c.Runner.TimeoutSeconds == 0 {
		c.Runner.TimeoutSeconds = 600
	}

	if c.Heartbeat.CheckIntervalMinutes == 0 {
		c.Heartbeat.CheckIntervalMinutes = 30
	}

	if c.Events.Capacity == 0 {
		c.Events.Capacity = 1000
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
}
