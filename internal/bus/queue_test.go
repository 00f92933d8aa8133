package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronwake/internal/logger"
)

func newStartedQueue(t *testing.T, capacity int) *EventQueue {
	t.Helper()
	q := New(capacity, logger.Discard())
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() {
		if q.IsStarted() {
			_ = q.Stop()
		}
	})
	return q
}

func TestEventQueue_Lifecycle(t *testing.T) {
	q := New(10, logger.Discard())

	assert.False(t, q.IsStarted())
	assert.ErrorIs(t, q.Stop(), ErrNotStarted)
	assert.ErrorIs(t, q.Publish(SystemEvent{}), ErrNotStarted)

	require.NoError(t, q.Start(context.Background()))
	assert.True(t, q.IsStarted())
	assert.ErrorIs(t, q.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, q.Stop())
	assert.False(t, q.IsStarted())
}

func TestEventQueue_PublishAndReceive(t *testing.T) {
	q := newStartedQueue(t, 10)

	ch := q.Subscribe()
	require.NotNil(t, ch)

	q.EnqueueSystemEvent("job finished", map[string]any{"jobId": "job_1"})

	select {
	case event := <-ch:
		assert.Equal(t, "job finished", event.Message)
		assert.Equal(t, "job_1", event.Context["jobId"])
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventQueue_FanOut(t *testing.T) {
	q := newStartedQueue(t, 10)

	ch1 := q.Subscribe()
	ch2 := q.Subscribe()

	require.NoError(t, q.Publish(SystemEvent{Message: "hello", Timestamp: time.Now()}))

	for _, ch := range []<-chan SystemEvent{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, "hello", event.Message)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for fan-out")
		}
	}
}

func TestEventQueue_FullQueueDropsWithoutBlocking(t *testing.T) {
	q := New(1, logger.Discard())
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	// No subscribers, so the distributor may drain at most one in-flight
	// event; flooding must return ErrQueueFull quickly rather than block.
	var sawFull bool
	for i := 0; i < 100; i++ {
		if err := q.Publish(SystemEvent{Message: "flood"}); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			sawFull = true
			break
		}
	}
	assert.True(t, sawFull)
}

func TestEventQueue_SubscribeBeforeStart(t *testing.T) {
	q := New(10, logger.Discard())
	assert.Nil(t, q.Subscribe())
}
