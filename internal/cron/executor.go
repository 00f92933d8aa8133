package cron

import (
	"fmt"
	"time"

	"cronwake/internal/logger"
)

// maxStoredErrorLen bounds the lastError text persisted per job.
const maxStoredErrorLen = 500

// runDueJobs executes every currently-due job, one at a time, in store
// order. Job IDs are collected under the lock and each execution re-fetches
// its job, so jobs removed or mutated mid-sweep are handled gracefully.
func (s *Service) runDueJobs() {
	s.mu.Lock()
	nowMs := s.now().UnixMilli()
	due := FindDueJobs(s.doc.Jobs, nowMs, s.stuckAfter)
	ids := make([]string, 0, len(due))
	for _, j := range due {
		ids = append(ids, j.ID)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.executeJob(id)
	}
}

// executeJob runs one occurrence of a job: mark running, persist, dispatch
// outside the lock, then record the outcome and the next occurrence. A
// failing or panicking runner marks the job's outcome but never disturbs the
// loop or other jobs.
func (s *Service) executeJob(jobID string) {
	s.mu.Lock()

	job := s.findJobLocked(jobID)
	if job == nil {
		s.mu.Unlock()
		return
	}

	nowMs := s.now().UnixMilli()
	if r := job.State.RunningAtMs; r != nil {
		if !markerStale(*r, nowMs, s.stuckAfter) {
			s.mu.Unlock()
			return
		}
		s.logger.Warn("clearing stale running marker",
			logger.Field{Key: "job_id", Value: job.ID},
			logger.Field{Key: "running_since", Value: time.UnixMilli(*r).Format(time.RFC3339)})
		s.metrics.IncStuckCleared()
		job.ClearRunning()
	}

	job.SetRunning(nowMs)
	s.persistLocked()
	snapshot := job.Clone()
	s.mu.Unlock()

	s.logger.Info("executing cron job",
		logger.Field{Key: "job_id", Value: snapshot.ID},
		logger.Field{Key: "name", Value: snapshot.Name})

	start := s.now()
	result, err := s.dispatch(snapshot)
	duration := s.now().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The job may have been removed while it ran; its outcome has nowhere
	// to land then.
	job = s.findJobLocked(jobID)
	if job == nil {
		return
	}

	finishedMs := s.now().UnixMilli()
	status := StatusOK
	errText := ""
	if err != nil {
		status = StatusError
		errText = err.Error()
	} else if result.Status == StatusError {
		status = StatusError
		errText = result.Summary
	}
	if len(errText) > maxStoredErrorLen {
		errText = errText[:maxStoredErrorLen]
	}

	job.ClearRunning()
	job.State.LastRunAtMs = &finishedMs
	job.State.LastStatus = status
	job.State.LastError = errText
	job.State.LastDurationMs = duration.Milliseconds()

	if status == StatusOK && job.DeleteAfterRun && job.IsOneShot() {
		s.removeJobLocked(jobID)
		s.logger.Info("one-shot job removed after successful run",
			logger.Field{Key: "job_id", Value: jobID})
	} else {
		job.SetNextRun(JobNextRunAt(job, finishedMs))
	}

	s.persistLocked()
	s.metrics.RecordRun(status, duration)

	if status == StatusOK {
		s.logger.Info("cron job finished",
			logger.Field{Key: "job_id", Value: jobID},
			logger.Field{Key: "duration", Value: duration})
	} else {
		s.logger.Warn("cron job failed",
			logger.Field{Key: "job_id", Value: jobID},
			logger.Field{Key: "duration", Value: duration},
			logger.Field{Key: "error", Value: errText})
	}

	s.notifyOutcome(jobID, snapshot.Name, status, result.Summary, errText)
}

// dispatch invokes the runner with panic containment. A panicking runner is
// reported as an error outcome for this occurrence.
func (s *Service) dispatch(job *CronJob) (result AgentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job runner panicked: %v", r)
		}
	}()

	if s.runner == nil {
		return AgentResult{}, fmt.Errorf("no job runner configured")
	}
	return s.runner.RunIsolatedJob(s.ctx, job)
}

// notifyOutcome pushes a best-effort system event about the finished run and
// pokes the heartbeat so interested surfaces refresh promptly.
func (s *Service) notifyOutcome(jobID, name, status, summary, errText string) {
	if s.events == nil {
		return
	}

	msg := fmt.Sprintf("Cron job %q finished: %s", name, status)
	if name == "" {
		msg = fmt.Sprintf("Cron job %s finished: %s", jobID, status)
	}
	ctx := map[string]any{
		"jobId":  jobID,
		"status": status,
	}
	if summary != "" {
		ctx["summary"] = summary
	}
	if errText != "" {
		ctx["error"] = errText
	}

	s.events.EnqueueSystemEvent(msg, ctx)
	s.events.RequestHeartbeatNow()
}
