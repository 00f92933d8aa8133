// Package cron implements the scheduling core: durable job definitions,
// next-run evaluation for "at"/"every"/"cron" schedules, a single wake timer
// armed against the whole job set, and at-most-once-per-occurrence execution
// that survives process restarts and stuck runs.
package cron

import (
	"encoding/json"
	"time"
)

// Schedule kinds.
const (
	ScheduleKindAt    = "at"
	ScheduleKindEvery = "every"
	ScheduleKindCron  = "cron"
)

// Run status values recorded in JobState.LastStatus.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// JobState is the mutable run-state of a job. All timestamps are unix
// milliseconds. A set RunningAtMs marks an in-flight (or crashed) run.
type JobState struct {
	NextRunAtMs    *int64 `json:"nextRunAtMs,omitempty"`
	RunningAtMs    *int64 `json:"runningAtMs,omitempty"`
	LastRunAtMs    *int64 `json:"lastRunAtMs,omitempty"`
	LastStatus     string `json:"lastStatus,omitempty"` // "ok" or "error"
	LastError      string `json:"lastError,omitempty"`
	LastDurationMs int64  `json:"lastDurationMs,omitempty"`
}

// CronJob is a persisted scheduling unit.
//
// SessionTarget, WakeMode, Payload and Delivery are opaque to the scheduler;
// they are forwarded verbatim to the agent-turn collaborator.
type CronJob struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Enabled        bool            `json:"enabled"`
	DeleteAfterRun bool            `json:"deleteAfterRun,omitempty"`
	CreatedAtMs    int64           `json:"createdAtMs"`
	UpdatedAtMs    int64           `json:"updatedAtMs"`
	Schedule       Schedule        `json:"schedule"`
	SessionTarget  string          `json:"sessionTarget,omitempty"`
	WakeMode       string          `json:"wakeMode,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Delivery       json.RawMessage `json:"delivery,omitempty"`
	State          JobState        `json:"state"`
}

// IsOneShot returns true for "at" jobs, which fire at most once per
// configured timestamp.
func (j *CronJob) IsOneShot() bool {
	return j.Schedule.Kind == ScheduleKindAt
}

// IsRunning returns true while a running marker is set.
func (j *CronJob) IsRunning() bool {
	return j.State.RunningAtMs != nil
}

// SetRunning marks the job as dispatched at the given time.
func (j *CronJob) SetRunning(nowMs int64) {
	j.State.RunningAtMs = &nowMs
}

// ClearRunning removes the running marker.
func (j *CronJob) ClearRunning() {
	j.State.RunningAtMs = nil
}

// SetNextRun records the armed next occurrence, or clears it.
func (j *CronJob) SetNextRun(atMs int64, ok bool) {
	if !ok {
		j.State.NextRunAtMs = nil
		return
	}
	j.State.NextRunAtMs = &atMs
}

// Clone returns a deep copy of the job.
func (j *CronJob) Clone() *CronJob {
	data, _ := json.Marshal(j)
	var clone CronJob
	_ = json.Unmarshal(data, &clone)
	return &clone
}

// oneShotCompleted reports whether a one-shot job already ran to success and
// has not been rescheduled past that run. Such a job never fires on its own
// again; moving its "at" timestamp strictly after the last run makes it a
// fresh future occurrence.
func (j *CronJob) oneShotCompleted() bool {
	if !j.IsOneShot() || j.State.LastStatus != StatusOK || j.State.LastRunAtMs == nil {
		return false
	}
	return j.Schedule.AtMs <= *j.State.LastRunAtMs
}

// FormatSchedule renders a schedule for logs and CLI listings.
func FormatSchedule(s Schedule) string {
	switch s.Kind {
	case ScheduleKindAt:
		return "at " + time.UnixMilli(s.AtMs).UTC().Format(time.RFC3339)
	case ScheduleKindEvery:
		return "every " + (time.Duration(s.EveryMs) * time.Millisecond).String()
	case ScheduleKindCron:
		if s.TZ != "" {
			return "cron '" + s.Expr + "' (" + s.TZ + ")"
		}
		return "cron '" + s.Expr + "'"
	default:
		return "unknown"
	}
}
