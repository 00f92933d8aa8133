package cron

import "time"

// nextEligibleRun returns when the job should next fire, preferring the
// armed occurrence recorded in state when it is earlier than a fresh
// evaluation. The armed value lets occurrences that arrived while the
// process was down (or while the loop was blocked) fire as catch-up; the
// evaluator's gating (disabled jobs, completed one-shots) is applied first
// and can never be bypassed by a stale cached value.
func nextEligibleRun(j *CronJob, nowMs int64) (int64, bool) {
	if j == nil || !j.Enabled || j.oneShotCompleted() {
		return 0, false
	}
	next, ok := NextRunAt(j.Schedule, nowMs)
	if cached := j.State.NextRunAtMs; cached != nil && (!ok || *cached < next) {
		return *cached, true
	}
	return next, ok
}

// markerStale reports whether a running marker is old enough to be presumed
// abandoned by a crashed process.
func markerStale(runningAtMs, nowMs int64, stuckAfter time.Duration) bool {
	return nowMs-runningAtMs >= stuckAfter.Milliseconds()
}

// FindDueJobs returns, in store order, the jobs that should fire now:
// enabled, next run arrived, and not blocked by a fresh running marker.
// A marker older than stuckAfter no longer blocks selection; the executor
// force-clears it before dispatching.
func FindDueJobs(jobs []*CronJob, nowMs int64, stuckAfter time.Duration) []*CronJob {
	var due []*CronJob
	for _, j := range jobs {
		next, ok := nextEligibleRun(j, nowMs)
		if !ok || next > nowMs {
			continue
		}
		if r := j.State.RunningAtMs; r != nil && !markerStale(*r, nowMs, stuckAfter) {
			continue
		}
		due = append(due, j)
	}
	return due
}
