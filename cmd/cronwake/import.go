package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cronwake/internal/cron"
)

// importSpec is one job definition in an import file.
type importSpec struct {
	Name           string         `yaml:"name"`
	At             string         `yaml:"at"`
	Every          string         `yaml:"every"`
	Cron           string         `yaml:"cron"`
	TZ             string         `yaml:"tz"`
	Command        string         `yaml:"command"`
	Message        string         `yaml:"message"`
	Session        string         `yaml:"session"`
	WakeMode       string         `yaml:"wakeMode"`
	Disabled       bool           `yaml:"disabled"`
	DeleteAfterRun bool           `yaml:"deleteAfterRun"`
	Payload        map[string]any `yaml:"payload"`
}

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import jobs from a YAML file",
	Long: `Import job definitions from a YAML file and append them to the job
store. Each entry uses the same fields as 'job add' flags; a raw payload map
may be given instead of command/message.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read import file: %v\n", err)
		os.Exit(1)
	}

	var specs []importSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse import file: %v\n", err)
		os.Exit(1)
	}
	if len(specs) == 0 {
		fmt.Println("Nothing to import")
		return
	}

	// Validate everything before touching the store.
	jobs := make([]*cron.CronJob, 0, len(specs))
	nowMs := time.Now().UnixMilli()
	for i, spec := range specs {
		job, err := jobFromImportSpec(spec, nowMs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Entry %d: %v\n", i+1, err)
			os.Exit(1)
		}
		jobs = append(jobs, job)
	}

	store, doc := openStore()
	doc.Jobs = append(doc.Jobs, jobs...)
	saveStore(store, doc)

	fmt.Printf("Imported %d jobs\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("  %s  %s\n", job.ID, cron.FormatSchedule(job.Schedule))
	}
}

func jobFromImportSpec(spec importSpec, nowMs int64) (*cron.CronJob, error) {
	var schedule cron.Schedule
	set := 0
	if spec.At != "" {
		set++
	}
	if spec.Every != "" {
		set++
	}
	if spec.Cron != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of at, every, or cron is required")
	}

	switch {
	case spec.At != "":
		atMs, err := parseAtFlag(spec.At)
		if err != nil {
			return nil, err
		}
		schedule = cron.Schedule{Kind: cron.ScheduleKindAt, AtMs: atMs}
	case spec.Every != "":
		d, err := time.ParseDuration(spec.Every)
		if err != nil {
			return nil, fmt.Errorf("invalid every duration: %w", err)
		}
		schedule = cron.Schedule{Kind: cron.ScheduleKindEvery, EveryMs: d.Milliseconds()}
	default:
		schedule = cron.Schedule{Kind: cron.ScheduleKindCron, Expr: spec.Cron, TZ: spec.TZ}
	}
	if err := cron.ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	var payloadMap map[string]any
	switch {
	case spec.Payload != nil:
		payloadMap = spec.Payload
	case spec.Command != "":
		payloadMap = map[string]any{"kind": "command", "command": spec.Command}
	case spec.Message != "":
		payloadMap = map[string]any{"kind": "message", "message": spec.Message}
	default:
		return nil, fmt.Errorf("one of command, message, or payload is required")
	}
	payload, err := json.Marshal(payloadMap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	job := &cron.CronJob{
		ID:             cron.GenerateJobID(),
		Name:           spec.Name,
		Enabled:        !spec.Disabled,
		DeleteAfterRun: spec.DeleteAfterRun,
		CreatedAtMs:    nowMs,
		UpdatedAtMs:    nowMs,
		Schedule:       schedule,
		SessionTarget:  spec.Session,
		WakeMode:       spec.WakeMode,
		Payload:        payload,
	}
	job.SetNextRun(cron.JobNextRunAt(job, nowMs))
	return job, nil
}
