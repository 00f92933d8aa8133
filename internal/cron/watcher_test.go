package cron

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronwake/internal/logger"
)

func TestWatchStore_ReloadsExternalEdit(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "jobs.json")

	service, err := NewService(Options{
		StorePath:  storePath,
		WatchStore: true,
		Logger:     logger.Discard(),
		Runner:     &fakeRunner{result: AgentResult{Status: StatusOK}},
	})
	require.NoError(t, err)
	require.NoError(t, service.Start(context.Background()))
	defer service.Stop()

	require.Empty(t, service.ListJobs())

	// Let the own-write suppression window from Start expire.
	time.Sleep(600 * time.Millisecond)

	// Simulate another process appending a job, using the same atomic
	// tmp+rename discipline.
	external := &StoreFile{
		Version: 1,
		Jobs: []*CronJob{{
			ID:       "job_external",
			Enabled:  true,
			Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60_000},
			Payload:  json.RawMessage(`{"kind":"message","message":"hi"}`),
		}},
	}
	data, err := json.Marshal(external)
	require.NoError(t, err)
	tmp := storePath + ".ext"
	require.NoError(t, os.WriteFile(tmp, data, 0644))
	require.NoError(t, os.Rename(tmp, storePath))

	assert.Eventually(t, func() bool {
		jobs := service.ListJobs()
		return len(jobs) == 1 && jobs[0].ID == "job_external"
	}, 5*time.Second, 50*time.Millisecond)

	// The reloaded job got a next-run computed.
	got, err := service.GetJob("job_external")
	require.NoError(t, err)
	assert.NotNil(t, got.State.NextRunAtMs)
}

func TestWatchStore_OwnWritesDoNotReload(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "jobs.json")

	service, err := NewService(Options{
		StorePath:  storePath,
		WatchStore: true,
		Logger:     logger.Discard(),
		Runner:     &fakeRunner{result: AgentResult{Status: StatusOK}},
	})
	require.NoError(t, err)
	require.NoError(t, service.Start(context.Background()))
	defer service.Stop()

	job, err := service.AddJob(AddJobParams{
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60_000},
	})
	require.NoError(t, err)

	// A reload triggered by our own save would be harmless but noisy; the
	// job must still be present and unchanged either way.
	time.Sleep(400 * time.Millisecond)
	jobs := service.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}
