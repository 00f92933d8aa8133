package bus

import "time"

// SystemEvent is an internally generated notification, e.g. a finished cron
// job run. Context carries structured details for the consumer.
type SystemEvent struct {
	Message   string
	Context   map[string]any
	Timestamp time.Time
}
