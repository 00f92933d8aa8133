package runner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronwake/internal/cron"
	"cronwake/internal/logger"
)

func newTestRunner(t *testing.T) *ExecRunner {
	t.Helper()
	return NewExecRunner(t.TempDir(), 10, logger.Discard())
}

func jobWithPayload(payload string) *cron.CronJob {
	return &cron.CronJob{
		ID:      "job_test",
		Enabled: true,
		Payload: json.RawMessage(payload),
	}
}

func TestRunIsolatedJob_Command(t *testing.T) {
	r := newTestRunner(t)

	result, err := r.RunIsolatedJob(context.Background(),
		jobWithPayload(`{"kind":"command","command":"echo hello"}`))
	require.NoError(t, err)
	assert.Equal(t, cron.StatusOK, result.Status)
	assert.Equal(t, "hello", result.Summary)
}

func TestRunIsolatedJob_CommandFailure(t *testing.T) {
	r := newTestRunner(t)

	result, err := r.RunIsolatedJob(context.Background(),
		jobWithPayload(`{"kind":"command","command":"echo oops >&2; exit 3"}`))
	require.Error(t, err)
	assert.Equal(t, cron.StatusError, result.Status)
	assert.Contains(t, result.Summary, "oops")
}

func TestRunIsolatedJob_CommandTimeout(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.RunIsolatedJob(context.Background(),
		jobWithPayload(`{"kind":"command","command":"sleep 30","timeoutSeconds":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunIsolatedJob_Message(t *testing.T) {
	r := newTestRunner(t)

	result, err := r.RunIsolatedJob(context.Background(),
		jobWithPayload(`{"kind":"message","message":"reminder text"}`))
	require.NoError(t, err)
	assert.Equal(t, cron.StatusOK, result.Status)
	assert.Equal(t, "reminder text", result.Summary)
}

func TestRunIsolatedJob_BadPayload(t *testing.T) {
	r := newTestRunner(t)

	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty payload", payload: ``},
		{name: "not json", payload: `not json`},
		{name: "unknown kind", payload: `{"kind":"carrier-pigeon"}`},
		{name: "command kind without command", payload: `{"kind":"command"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RunIsolatedJob(context.Background(), jobWithPayload(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestRunIsolatedJob_TruncatesLongOutput(t *testing.T) {
	r := newTestRunner(t)

	result, err := r.RunIsolatedJob(context.Background(),
		jobWithPayload(`{"kind":"command","command":"head -c 5000 /dev/zero | tr '\\0' 'x'"}`))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Summary), maxSummaryLen+3)
}
