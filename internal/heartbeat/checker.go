package heartbeat

import (
	"context"
	"sync"
	"time"

	"cronwake/internal/logger"
)

// heartbeatPrompt is the prompt used for heartbeat checks.
const heartbeatPrompt = "Read HEARTBEAT.md from workspace. Follow it strictly. Do not infer or repeat old tasks from prior chats. If nothing needs attention, reply HEARTBEAT_OK."

// heartbeatOKToken is the token that indicates heartbeat check passed successfully.
const heartbeatOKToken = "HEARTBEAT_OK"

// Agent represents an agent that can process heartbeat checks.
type Agent interface {
	ProcessHeartbeatCheck(ctx context.Context) (string, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context) (string, error)

func (f AgentFunc) ProcessHeartbeatCheck(ctx context.Context) (string, error) {
	return f(ctx)
}

// Checker periodically checks the heartbeat status by calling the agent's
// ProcessHeartbeatCheck method. It runs on a configurable interval and can
// additionally be poked with RequestNow, e.g. right after a cron job run.
type Checker struct {
	interval time.Duration
	agent    Agent
	logger   *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	wake     chan struct{}
	mu       sync.RWMutex
}

// NewChecker creates a new heartbeat checker.
// intervalMinutes specifies the check interval in minutes.
func NewChecker(intervalMinutes int, agent Agent, logger *logger.Logger) *Checker {
	return &Checker{
		interval: time.Duration(intervalMinutes) * time.Minute,
		agent:    agent,
		logger:   logger,
		started:  false,
		wake:     make(chan struct{}, 1),
	}
}

// Start begins the heartbeat checker loop.
func (c *Checker) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil // Already started, don't error
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.started = true

	c.logger.Info("Heartbeat checker started", logger.Field{Key: "interval", Value: c.interval})

	go c.run()

	return nil
}

// Stop halts the heartbeat checker loop.
func (c *Checker) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil // Already stopped, don't error
	}

	c.logger.Info("Heartbeat checker stopping")

	c.cancel()
	c.started = false

	return nil
}

// RequestNow schedules an immediate heartbeat check without waiting for the
// next tick. It never blocks; a check already pending absorbs the request.
func (c *Checker) RequestNow() {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if !started {
		return
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run is the main loop that performs heartbeat checks at regular intervals
// and on demand.
func (c *Checker) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("Heartbeat checker stopped")
			return
		case <-ticker.C:
			c.check()
		case <-c.wake:
			c.check()
		}
	}
}

// check performs a single heartbeat check.
func (c *Checker) check() {
	c.logger.Info("Performing heartbeat check")

	response, err := c.agent.ProcessHeartbeatCheck(c.ctx)
	if err != nil {
		c.logger.Error("Heartbeat check failed", err,
			logger.Field{Key: "response", Value: response})
		return
	}

	c.processResponse(response)
}

// processResponse processes the response from a heartbeat check.
// A HEARTBEAT_OK response means nothing needed attention; anything else
// means the agent already acted on its own.
func (c *Checker) processResponse(response string) {
	if response == "" {
		c.logger.Warn("Heartbeat check returned empty response")
		return
	}

	if containsToken(response, heartbeatOKToken) {
		c.logger.Info("Heartbeat check: all good", logger.Field{Key: "response", Value: response})
	} else {
		c.logger.Info("Heartbeat check: action taken", logger.Field{Key: "response", Value: response})
	}
}

// containsToken checks if the response contains the specified token.
func containsToken(response, token string) bool {
	return response == token || response == "\n"+token || response == token+"\n"
}
