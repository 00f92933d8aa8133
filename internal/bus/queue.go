package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"cronwake/internal/logger"
)

var (
	ErrQueueClosed    = errors.New("queue is closed")
	ErrQueueFull      = errors.New("queue is full")
	ErrAlreadyStarted = errors.New("event queue is already started")
	ErrNotStarted     = errors.New("event queue is not started")
)

// EventQueue is an asynchronous fan-out queue for system events. Publishing
// never blocks; when the queue or a subscriber falls behind, events are
// dropped with a warning.
type EventQueue struct {
	mu      sync.RWMutex
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	started bool

	eventCh chan SystemEvent

	subscribers  map[int64]chan SystemEvent
	subscriberID int64
}

// New creates a new EventQueue with the specified capacity.
func New(capacity int, logger *logger.Logger) *EventQueue {
	return &EventQueue{
		logger:      logger,
		eventCh:     make(chan SystemEvent, capacity),
		subscribers: make(map[int64]chan SystemEvent),
	}
}

// Start starts the distribution goroutine.
func (q *EventQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return ErrAlreadyStarted
	}

	q.ctx, q.cancel = context.WithCancel(ctx)
	q.started = true

	go q.distribute()

	q.logger.Info("event queue started", logger.Field{Key: "capacity", Value: cap(q.eventCh)})
	return nil
}

// Stop gracefully stops the queue and closes all channels.
func (q *EventQueue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return ErrNotStarted
	}

	q.logger.Info("stopping event queue")

	if q.cancel != nil {
		q.cancel()
	}

	for id, ch := range q.subscribers {
		close(ch)
		delete(q.subscribers, id)
	}

	close(q.eventCh)
	q.started = false

	q.logger.Info("event queue stopped")
	return nil
}

// Publish publishes an event to the queue without blocking.
func (q *EventQueue) Publish(event SystemEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.started {
		return ErrNotStarted
	}

	select {
	case q.eventCh <- event:
		q.logger.Debug("system event published",
			logger.Field{Key: "message", Value: event.Message})
		return nil
	default:
		q.logger.Warn("event queue full, dropping event",
			logger.Field{Key: "capacity", Value: cap(q.eventCh)})
		return ErrQueueFull
	}
}

// EnqueueSystemEvent builds and publishes a system event. Failures are
// logged, not returned; event delivery is best-effort.
func (q *EventQueue) EnqueueSystemEvent(message string, context map[string]any) {
	event := SystemEvent{
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
	}
	if err := q.Publish(event); err != nil {
		q.logger.Warn("failed to enqueue system event",
			logger.Field{Key: "message", Value: message},
			logger.Field{Key: "error", Value: err})
	}
}

// Subscribe registers a new event consumer.
func (q *EventQueue) Subscribe() <-chan SystemEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return nil
	}

	ch := make(chan SystemEvent, 10)
	q.subscriberID++
	id := q.subscriberID
	q.subscribers[id] = ch

	q.logger.Debug("event subscriber added",
		logger.Field{Key: "subscriber_id", Value: id})

	return ch
}

// distribute fans events out to all subscribers.
func (q *EventQueue) distribute() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case event, ok := <-q.eventCh:
			if !ok {
				return
			}
			q.mu.RLock()
			for _, ch := range q.subscribers {
				select {
				case ch <- event:
				default:
					// Subscriber channel is full, skip
					q.logger.Warn("event subscriber channel full, skipping event")
				}
			}
			q.mu.RUnlock()
		}
	}
}

// IsStarted returns true if the queue is started.
func (q *EventQueue) IsStarted() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.started
}
