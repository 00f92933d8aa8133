package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cronwake/internal/config"
	"cronwake/internal/constants"
	"cronwake/internal/cron"
	"cronwake/internal/logger"
	"cronwake/internal/runner"
)

var (
	jobConfigPath string

	addName           string
	addAt             string
	addEvery          string
	addCron           string
	addTZ             string
	addCommand        string
	addMessage        string
	addSession        string
	addWakeMode       string
	addDisabled       bool
	addDeleteAfterRun bool
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage scheduled jobs",
	Long: `Manage the job store directly. Changes made while a scheduler with
watch_store enabled is running are picked up automatically.`,
}

var jobAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	Long: `Add a job to the store. Exactly one of --at, --every, or --cron
selects the schedule kind.`,
	Args: cobra.NoArgs,
	Run:  runJobAdd,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all scheduled jobs",
	Run:   runJobList,
}

var jobShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job in full",
	Args:  cobra.ExactArgs(1),
	Run:   runJobShow,
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	Run:   runJobRemove,
}

var jobEnableCmd = &cobra.Command{
	Use:   "enable <job-id>",
	Short: "Enable a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setJobEnabled(args[0], true)
	},
}

var jobDisableCmd = &cobra.Command{
	Use:   "disable <job-id>",
	Short: "Disable a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setJobEnabled(args[0], false)
	},
}

var runForce bool

var jobRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a job immediately, bypassing its schedule",
	Args:  cobra.ExactArgs(1),
	Run:   runJobRun,
}

// runJobRun spins up a one-off service instance against the store and
// triggers the job. A concurrently running daemon with watch_store enabled
// picks the recorded outcome up from disk.
func runJobRun(cmd *cobra.Command, args []string) {
	configPath := jobConfigPath
	if configPath == "" {
		configPath = constants.DefaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: "text", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.Options{
		StorePath:         cfg.Cron.StorePath(cfg.Workspace.Path),
		StuckRunThreshold: cfg.Cron.StuckThreshold(),
		MinRefireGap:      cfg.Cron.MinRefireGap(),
		Logger:            log,
		Runner:            runner.NewExecRunner(cfg.Runner.WorkingDir, cfg.Runner.TimeoutSeconds, log),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create service: %v\n", err)
		os.Exit(1)
	}
	if err := service.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open job store: %v\n", err)
		os.Exit(1)
	}
	defer service.Stop()

	ran, reason, err := service.RunNow(args[0], runForce)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !ran {
		fmt.Printf("Skipped: %s\n", reason)
		return
	}

	job, err := service.GetJob(args[0])
	if err != nil {
		// A delete-after-run one-shot is gone after success.
		fmt.Println("Job ran and was removed")
		return
	}
	fmt.Printf("Job ran: status=%s", job.State.LastStatus)
	if job.State.LastError != "" {
		fmt.Printf(" error=%q", job.State.LastError)
	}
	fmt.Println()
}

// openStore loads the configuration and returns the job store with its
// current document.
func openStore() (*cron.Store, *cron.StoreFile) {
	configPath := jobConfigPath
	if configPath == "" {
		configPath = constants.DefaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	store := cron.NewStore(cfg.Cron.StorePath(cfg.Workspace.Path), log)
	doc, err := store.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load job store: %v\n", err)
		os.Exit(1)
	}
	return store, doc
}

func saveStore(store *cron.Store, doc *cron.StoreFile) {
	if err := store.Save(doc); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save job store: %v\n", err)
		os.Exit(1)
	}
}

// buildScheduleFromFlags turns the add flags into a schedule definition.
func buildScheduleFromFlags() (cron.Schedule, error) {
	var s cron.Schedule
	set := 0
	if addAt != "" {
		set++
	}
	if addEvery != "" {
		set++
	}
	if addCron != "" {
		set++
	}
	if set != 1 {
		return s, fmt.Errorf("exactly one of --at, --every, or --cron is required")
	}

	switch {
	case addAt != "":
		atMs, err := parseAtFlag(addAt)
		if err != nil {
			return s, err
		}
		s = cron.Schedule{Kind: cron.ScheduleKindAt, AtMs: atMs}
	case addEvery != "":
		d, err := time.ParseDuration(addEvery)
		if err != nil {
			return s, fmt.Errorf("invalid --every duration: %w", err)
		}
		s = cron.Schedule{Kind: cron.ScheduleKindEvery, EveryMs: d.Milliseconds()}
	default:
		s = cron.Schedule{Kind: cron.ScheduleKindCron, Expr: addCron, TZ: addTZ}
	}
	return s, nil
}

// parseAtFlag accepts an RFC 3339 timestamp or a unix epoch in milliseconds.
func parseAtFlag(v string) (int64, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UnixMilli(), nil
	}
	var ms int64
	if _, err := fmt.Sscanf(v, "%d", &ms); err == nil && ms > 0 {
		return ms, nil
	}
	return 0, fmt.Errorf("invalid --at value %q (expected RFC 3339 or epoch milliseconds)", v)
}

func buildPayloadFromFlags() (json.RawMessage, error) {
	if addCommand != "" && addMessage != "" {
		return nil, fmt.Errorf("--command and --message are mutually exclusive")
	}
	var payload map[string]any
	switch {
	case addCommand != "":
		payload = map[string]any{"kind": "command", "command": addCommand}
	case addMessage != "":
		payload = map[string]any{"kind": "message", "message": addMessage}
	default:
		return nil, fmt.Errorf("one of --command or --message is required")
	}
	return json.Marshal(payload)
}

func runJobAdd(cmd *cobra.Command, args []string) {
	schedule, err := buildScheduleFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cron.ValidateSchedule(schedule); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid schedule: %v\n", err)
		os.Exit(1)
	}
	payload, err := buildPayloadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store, doc := openStore()

	nowMs := time.Now().UnixMilli()
	job := &cron.CronJob{
		ID:             cron.GenerateJobID(),
		Name:           addName,
		Enabled:        !addDisabled,
		DeleteAfterRun: addDeleteAfterRun,
		CreatedAtMs:    nowMs,
		UpdatedAtMs:    nowMs,
		Schedule:       schedule,
		SessionTarget:  addSession,
		WakeMode:       addWakeMode,
		Payload:        payload,
	}
	job.SetNextRun(cron.JobNextRunAt(job, nowMs))

	doc.Jobs = append(doc.Jobs, job)
	saveStore(store, doc)

	fmt.Printf("Job added\n")
	fmt.Printf("  ID:       %s\n", job.ID)
	fmt.Printf("  Schedule: %s\n", cron.FormatSchedule(job.Schedule))
	if next := job.State.NextRunAtMs; next != nil {
		fmt.Printf("  Next run: %s\n", time.UnixMilli(*next).Format(time.RFC3339))
	}
}

func runJobList(cmd *cobra.Command, args []string) {
	_, doc := openStore()

	if len(doc.Jobs) == 0 {
		fmt.Println("No jobs found")
		return
	}

	for _, job := range doc.Jobs {
		state := "enabled"
		if !job.Enabled {
			state = "disabled"
		}
		fmt.Printf("%s  [%s]  %s", job.ID, state, cron.FormatSchedule(job.Schedule))
		if job.Name != "" {
			fmt.Printf("  %q", job.Name)
		}
		if next := job.State.NextRunAtMs; next != nil {
			fmt.Printf("  next=%s", time.UnixMilli(*next).Format(time.RFC3339))
		}
		fmt.Println()
	}
	fmt.Printf("Total: %d\n", len(doc.Jobs))
}

func runJobShow(cmd *cobra.Command, args []string) {
	_, doc := openStore()

	for _, job := range doc.Jobs {
		if job.ID == args[0] {
			data, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to format job: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Job not found: %s\n", args[0])
	os.Exit(1)
}

func runJobRemove(cmd *cobra.Command, args []string) {
	store, doc := openStore()

	jobID := args[0]
	for i, job := range doc.Jobs {
		if job.ID == jobID {
			doc.Jobs = append(doc.Jobs[:i], doc.Jobs[i+1:]...)
			saveStore(store, doc)
			fmt.Printf("Job removed: %s\n", jobID)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Job not found: %s\n", jobID)
	os.Exit(1)
}

func setJobEnabled(jobID string, enabled bool) {
	store, doc := openStore()

	for _, job := range doc.Jobs {
		if job.ID == jobID {
			job.Enabled = enabled
			job.UpdatedAtMs = time.Now().UnixMilli()
			if !enabled {
				job.State.NextRunAtMs = nil
			} else {
				job.SetNextRun(cron.JobNextRunAt(job, job.UpdatedAtMs))
			}
			saveStore(store, doc)
			if enabled {
				fmt.Printf("Job enabled: %s\n", jobID)
			} else {
				fmt.Printf("Job disabled: %s\n", jobID)
			}
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Job not found: %s\n", jobID)
	os.Exit(1)
}

func init() {
	jobCmd.PersistentFlags().StringVarP(&jobConfigPath, "config", "c", "", "Path to configuration file (default: ./config.toml)")

	jobAddCmd.Flags().StringVar(&addName, "name", "", "Human-readable job name")
	jobAddCmd.Flags().StringVar(&addAt, "at", "", "Run once at this time (RFC 3339 or epoch ms)")
	jobAddCmd.Flags().StringVar(&addEvery, "every", "", "Run on a fixed interval (Go duration, e.g. 5m)")
	jobAddCmd.Flags().StringVar(&addCron, "cron", "", "Run on a cron expression")
	jobAddCmd.Flags().StringVar(&addTZ, "tz", "", "IANA timezone for --cron (default: local)")
	jobAddCmd.Flags().StringVar(&addCommand, "command", "", "Shell command to run")
	jobAddCmd.Flags().StringVar(&addMessage, "message", "", "Message payload instead of a command")
	jobAddCmd.Flags().StringVar(&addSession, "session", "", "Session target for the run")
	jobAddCmd.Flags().StringVar(&addWakeMode, "wake-mode", "", "Wake mode hint for the run")
	jobAddCmd.Flags().BoolVar(&addDisabled, "disabled", false, "Create the job disabled")
	jobAddCmd.Flags().BoolVar(&addDeleteAfterRun, "delete-after-run", false, "Remove one-shot job after a successful run")

	jobRunCmd.Flags().BoolVar(&runForce, "force", false, "Run even if disabled or marked running")

	jobCmd.AddCommand(jobAddCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobShowCmd)
	jobCmd.AddCommand(jobRemoveCmd)
	jobCmd.AddCommand(jobEnableCmd)
	jobCmd.AddCommand(jobDisableCmd)
	jobCmd.AddCommand(jobRunCmd)
	jobCmd.AddCommand(importCmd)
}
