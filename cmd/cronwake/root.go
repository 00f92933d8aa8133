package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cronwake",
	Short: "cronwake - Single-timer job scheduler",
	Long: `cronwake schedules jobs from a JSON store and drives them with a
single wake-up timer. Jobs fire at fixed times, on fixed intervals, or on
cron expressions, and survive restarts of the process.`,
	Version: Version,
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobCmd)
}
