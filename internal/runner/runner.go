// Package runner dispatches due cron jobs to an external command.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"cronwake/internal/cron"
	"cronwake/internal/logger"
)

// maxSummaryLen bounds the output text returned per run.
const maxSummaryLen = 2000

// Payload describes what a job run should do. It is the parsed form of a
// job's opaque payload document.
type Payload struct {
	Kind           string `json:"kind"` // "command" or "message"
	Command        string `json:"command"`
	Message        string `json:"message"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// ExecRunner executes command payloads via the shell. Message payloads are
// surfaced as the run summary without spawning anything.
type ExecRunner struct {
	logger         *logger.Logger
	workingDir     string
	defaultTimeout time.Duration
}

// NewExecRunner creates a runner. timeoutSeconds is the per-run default,
// overridable per job payload.
func NewExecRunner(workingDir string, timeoutSeconds int, log *logger.Logger) *ExecRunner {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 600
	}
	return &ExecRunner{
		logger:         log,
		workingDir:     workingDir,
		defaultTimeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

// RunIsolatedJob executes one occurrence of a job and reports its outcome.
func (r *ExecRunner) RunIsolatedJob(ctx context.Context, job *cron.CronJob) (cron.AgentResult, error) {
	payload, err := parsePayload(job.Payload)
	if err != nil {
		return cron.AgentResult{}, fmt.Errorf("invalid job payload: %w", err)
	}

	switch payload.Kind {
	case "message":
		return cron.AgentResult{Status: cron.StatusOK, Summary: payload.Message}, nil
	case "command", "":
		if payload.Command == "" {
			return cron.AgentResult{}, fmt.Errorf("job payload has no command")
		}
		return r.runCommand(ctx, job.ID, payload)
	default:
		return cron.AgentResult{}, fmt.Errorf("unknown payload kind: %q", payload.Kind)
	}
}

func parsePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if len(raw) == 0 {
		return p, fmt.Errorf("payload is empty")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	return p, nil
}

func (r *ExecRunner) runCommand(ctx context.Context, jobID string, payload Payload) (cron.AgentResult, error) {
	timeout := r.defaultTimeout
	if payload.TimeoutSeconds > 0 {
		timeout = time.Duration(payload.TimeoutSeconds) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", payload.Command)
	if r.workingDir != "" {
		cmd.Dir = r.workingDir
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.logger.Debug("running job command",
		logger.Field{Key: "job_id", Value: jobID},
		logger.Field{Key: "timeout", Value: timeout})

	err := cmd.Run()
	summary := truncate(strings.TrimSpace(output.String()), maxSummaryLen)

	if runCtx.Err() == context.DeadlineExceeded {
		return cron.AgentResult{Status: cron.StatusError, Summary: summary},
			fmt.Errorf("command timed out after %s", timeout)
	}
	if err != nil {
		return cron.AgentResult{Status: cron.StatusError, Summary: summary},
			fmt.Errorf("command failed: %w", err)
	}
	return cron.AgentResult{Status: cron.StatusOK, Summary: summary}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
