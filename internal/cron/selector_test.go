package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msPtr(v int64) *int64 { return &v }

func TestNextEligibleRun(t *testing.T) {
	now := int64(1_000_000)

	tests := []struct {
		name     string
		job      *CronJob
		wantOK   bool
		wantNext int64
	}{
		{
			name: "fresh evaluation when nothing cached",
			job: &CronJob{
				Enabled:  true,
				Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 1000, AnchorMs: 0},
			},
			wantOK:   true,
			wantNext: now + 1000,
		},
		{
			name: "past-due cached occurrence wins",
			job: &CronJob{
				Enabled:  true,
				Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 1000, AnchorMs: 0},
				State:    JobState{NextRunAtMs: msPtr(now - 5000)},
			},
			wantOK:   true,
			wantNext: now - 5000,
		},
		{
			name: "later cached value does not delay a fresh evaluation",
			job: &CronJob{
				Enabled:  true,
				Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 1000, AnchorMs: 0},
				State:    JobState{NextRunAtMs: msPtr(now + 60_000)},
			},
			wantOK:   true,
			wantNext: now + 1000,
		},
		{
			name: "disabled job ignores cached value",
			job: &CronJob{
				Enabled:  false,
				Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 1000},
				State:    JobState{NextRunAtMs: msPtr(now - 100)},
			},
			wantOK: false,
		},
		{
			name: "completed one-shot ignores cached value",
			job: &CronJob{
				Enabled:  true,
				Schedule: Schedule{Kind: ScheduleKindAt, AtMs: now - 10_000},
				State: JobState{
					NextRunAtMs: msPtr(now - 10_000),
					LastRunAtMs: msPtr(now - 9_000),
					LastStatus:  StatusOK,
				},
			},
			wantOK: false,
		},
		{
			name: "failed past one-shot still fires from its cached arm",
			job: &CronJob{
				Enabled:  true,
				Schedule: Schedule{Kind: ScheduleKindAt, AtMs: now - 10_000},
				State: JobState{
					NextRunAtMs: msPtr(now - 10_000),
					LastRunAtMs: msPtr(now - 9_000),
					LastStatus:  StatusError,
				},
			},
			wantOK:   true,
			wantNext: now - 10_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := nextEligibleRun(tt.job, now)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantNext, next)
			}
		})
	}
}

func TestMarkerStale(t *testing.T) {
	stuckAfter := 2 * time.Hour
	now := int64(10_000_000_000)

	assert.False(t, markerStale(now-1, now, stuckAfter))
	assert.False(t, markerStale(now-stuckAfter.Milliseconds()+1, now, stuckAfter))
	assert.True(t, markerStale(now-stuckAfter.Milliseconds(), now, stuckAfter))
	assert.True(t, markerStale(now-stuckAfter.Milliseconds()-1, now, stuckAfter))
}

func TestFindDueJobs(t *testing.T) {
	now := int64(1_000_000)
	stuckAfter := 2 * time.Hour

	due := func(id string) *CronJob {
		return &CronJob{
			ID:       id,
			Enabled:  true,
			Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 1000},
			State:    JobState{NextRunAtMs: msPtr(now - 500)},
		}
	}

	notYet := &CronJob{
		ID:       "job_future",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 1000},
		State:    JobState{NextRunAtMs: msPtr(now + 500)},
	}
	disabled := due("job_disabled")
	disabled.Enabled = false
	freshRunning := due("job_running")
	freshRunning.State.RunningAtMs = msPtr(now - 60_000)
	stuckRunning := due("job_stuck")
	stuckRunning.State.RunningAtMs = msPtr(now - stuckAfter.Milliseconds() - 1)

	jobs := []*CronJob{due("job_b"), notYet, disabled, freshRunning, due("job_a"), stuckRunning}

	got := FindDueJobs(jobs, now, stuckAfter)
	require.Len(t, got, 3)

	// Store order is preserved, not sorted by time or ID.
	assert.Equal(t, "job_b", got[0].ID)
	assert.Equal(t, "job_a", got[1].ID)
	assert.Equal(t, "job_stuck", got[2].ID)
}

func TestFindDueJobs_DueExactlyNow(t *testing.T) {
	now := int64(1_000_000)
	job := &CronJob{
		ID:       "job_now",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 1000},
		State:    JobState{NextRunAtMs: msPtr(now)},
	}

	got := FindDueJobs([]*CronJob{job}, now, 2*time.Hour)
	require.Len(t, got, 1)
	assert.Equal(t, "job_now", got[0].ID)
}
