package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"cronwake/internal/constants"
	"cronwake/internal/logger"
)

// ErrJobNotFound is returned by CRUD operations for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// fileChangeDebounce is how long to wait after a store file change before
// reloading, so rapid external writes settle first.
const fileChangeDebounce = 150 * time.Millisecond

// ownWriteSuppression is how long watcher events are ignored after one of
// our own saves.
const ownWriteSuppression = 500 * time.Millisecond

// AgentResult is the outcome of one agent-turn dispatch.
type AgentResult struct {
	Status  string // "ok" or "error"
	Summary string
}

// AgentRunner executes one due occurrence of a job. The scheduler forwards
// the job verbatim and awaits exactly one result per occurrence; bounding
// the run's duration is the runner's responsibility.
type AgentRunner interface {
	RunIsolatedJob(ctx context.Context, job *CronJob) (AgentResult, error)
}

// EventSink receives best-effort, non-blocking notifications about job
// outcomes.
type EventSink interface {
	EnqueueSystemEvent(message string, context map[string]any)
	RequestHeartbeatNow()
}

// Options configures a Service.
type Options struct {
	StorePath         string
	StuckRunThreshold time.Duration    // running markers older than this are clearable; default 2h
	MinRefireGap      time.Duration    // floor for past-due re-arm delays; default 2s
	WatchStore        bool             // reload on external store file changes
	Logger            *logger.Logger   // required
	Runner            AgentRunner      // may be nil; due jobs then record an error outcome
	Events            EventSink        // may be nil
	Metrics           *Metrics         // may be nil
	Now               func() time.Time // injectable clock; defaults to time.Now
}

// Service owns the job store lifecycle and drives the wake loop. All state
// is explicit on the struct so independent instances can coexist in one
// process (and in tests).
type Service struct {
	mu      sync.Mutex
	store   *Store
	doc     *StoreFile
	logger  *logger.Logger
	runner  AgentRunner
	events  EventSink
	metrics *Metrics
	now     func() time.Time

	stuckAfter time.Duration
	refireGap  time.Duration
	watchStore bool

	timer   *time.Timer // the single outstanding wake timer
	running bool        // tick re-entrancy guard
	started bool
	ctx     context.Context
	cancel  context.CancelFunc

	watcher          *fsnotify.Watcher
	ignoreWatchUntil time.Time
	lastArmedDelay   time.Duration
}

// NewService creates a cron service. The store document is loaded on Start.
func NewService(opts Options) (*Service, error) {
	if opts.StorePath == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.StuckRunThreshold <= 0 {
		opts.StuckRunThreshold = constants.DefaultStuckRunThreshold
	}
	if opts.MinRefireGap <= 0 {
		opts.MinRefireGap = constants.DefaultMinRefireGap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		store:      NewStore(opts.StorePath, opts.Logger),
		doc:        &StoreFile{Version: constants.CronStoreVersion},
		logger:     opts.Logger,
		runner:     opts.Runner,
		events:     opts.Events,
		metrics:    opts.Metrics,
		now:        opts.Now,
		stuckAfter: opts.StuckRunThreshold,
		refireGap:  opts.MinRefireGap,
		watchStore: opts.WatchStore,
	}, nil
}

// Start loads the job document, refreshes next-run times, and arms the wake
// timer. It returns once the service is running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cron service already started")
	}

	doc, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load job store: %w", err)
	}
	s.doc = doc
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.refreshNextRunsLocked()
	s.persistLocked()

	if s.watchStore {
		s.startWatcherLocked()
	}

	s.armTimerLocked()

	s.logger.Info("cron service started",
		logger.Field{Key: "jobs", Value: len(s.doc.Jobs)},
		logger.Field{Key: "store", Value: s.store.Path()})
	return nil
}

// Stop cancels the wake timer and the file watcher. In-flight job dispatch
// is not interrupted beyond context cancellation.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.cancel()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}

	s.logger.Info("cron service stopped")
}

// IsStarted returns true while the service is running.
func (s *Service) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// refreshNextRunsLocked recomputes every job's armed next-run time. Past-due
// armed occurrences are kept so they fire as catch-up; disabled jobs and
// completed one-shots lose theirs.
func (s *Service) refreshNextRunsLocked() {
	nowMs := s.now().UnixMilli()
	for _, j := range s.doc.Jobs {
		next, ok := nextEligibleRun(j, nowMs)
		j.SetNextRun(next, ok)
		if ok {
			s.logger.Debug("job scheduled",
				logger.Field{Key: "job_id", Value: j.ID},
				logger.Field{Key: "schedule", Value: FormatSchedule(j.Schedule)},
				logger.Field{Key: "next_run", Value: time.UnixMilli(next).Format(time.RFC3339)})
		}
	}
}

// persistLocked flushes the document. A failed write keeps the in-memory
// mutation; behavior stays correct until the next successful flush.
func (s *Service) persistLocked() {
	s.ignoreWatchUntil = s.now().Add(ownWriteSuppression)
	if err := s.store.Save(s.doc); err != nil {
		s.logger.Error("failed to persist job store", err,
			logger.Field{Key: "store", Value: s.store.Path()})
		s.metrics.IncSaveError()
	}
	s.metrics.SetJobCount(len(s.doc.Jobs))
}

// nextWakeDelayLocked computes the delay until the earliest eligible wake
// across all jobs. A past-due wake is clamped to the re-fire gap so a
// blocked job re-checks on a bounded cadence instead of hot-looping. ok is
// false when no job has anything left to schedule.
func (s *Service) nextWakeDelayLocked() (time.Duration, bool) {
	nowMs := s.now().UnixMilli()
	var earliest int64
	found := false
	for _, j := range s.doc.Jobs {
		next, ok := nextEligibleRun(j, nowMs)
		if !ok {
			continue
		}
		if !found || next < earliest {
			earliest = next
			found = true
		}
	}
	if !found {
		return 0, false
	}
	delay := time.Duration(earliest-nowMs) * time.Millisecond
	if delay <= 0 {
		delay = s.refireGap
	}
	return delay, true
}

// armTimerLocked replaces the outstanding wake timer with one for the next
// eligible wake, or leaves the service idle when nothing is schedulable (a
// CRUD mutation re-arms).
func (s *Service) armTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.started {
		return
	}

	delay, ok := s.nextWakeDelayLocked()
	if !ok {
		s.lastArmedDelay = 0
		s.logger.Debug("no schedulable jobs, wake timer idle")
		return
	}

	s.lastArmedDelay = delay
	s.metrics.IncTimerArm()
	s.timer = time.AfterFunc(delay, s.onTimer)
	s.logger.Debug("wake timer armed", logger.Field{Key: "delay", Value: delay})
}

// onTimer is the wake timer callback. The running flag keeps ticks from
// overlapping; a tick already in flight will re-arm when it finishes.
func (s *Service) onTimer() {
	s.mu.Lock()
	if !s.started || s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.tick()
}

// tick runs one due-job sweep and unconditionally re-arms, so the loop
// self-heals even when nothing was runnable. The re-fire gap in
// nextWakeDelayLocked keeps that self-heal from becoming a hot loop.
func (s *Service) tick() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.armTimerLocked()
		s.mu.Unlock()
	}()

	s.runDueJobs()
}

// startWatcherLocked watches the store directory for external edits to the
// jobs file. fsnotify watches directories more reliably than single files.
func (s *Service) startWatcherLocked() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("failed to create store watcher, external changes won't be detected",
			logger.Field{Key: "error", Value: err})
		return
	}
	dir := filepath.Dir(s.store.Path())
	if err := watcher.Add(dir); err != nil {
		s.logger.Warn("failed to watch store directory",
			logger.Field{Key: "dir", Value: dir},
			logger.Field{Key: "error", Value: err})
		watcher.Close()
		return
	}
	s.watcher = watcher
	go s.watchLoop(watcher)
	s.logger.Debug("watching store for changes", logger.Field{Key: "dir", Value: dir})
}

// watchLoop debounces store file change events and reloads the document.
func (s *Service) watchLoop(watcher *fsnotify.Watcher) {
	jobsFile := filepath.Base(s.store.Path())

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-s.ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != jobsFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.mu.Lock()
			ignore := s.now().Before(s.ignoreWatchUntil)
			s.mu.Unlock()
			if ignore {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(fileChangeDebounce)
				debounceC = debounce.C
			} else {
				debounce.Reset(fileChangeDebounce)
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			s.reloadFromDisk()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("store watcher error", logger.Field{Key: "error", Value: err})
		}
	}
}

// reloadFromDisk re-reads the job document after an external edit and
// re-arms the timer. Last writer wins.
func (s *Service) reloadFromDisk() {
	doc, err := s.store.Load()
	if err != nil {
		s.logger.Error("failed to reload job store after file change", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.doc = doc
	s.refreshNextRunsLocked()
	s.armTimerLocked()
	s.logger.Info("job store reloaded after external change",
		logger.Field{Key: "jobs", Value: len(s.doc.Jobs)})
}

// AddJobParams are the caller-supplied fields of a new job.
type AddJobParams struct {
	Name           string
	Schedule       Schedule
	Enabled        *bool // default true
	DeleteAfterRun bool
	SessionTarget  string
	WakeMode       string
	Payload        json.RawMessage
	Delivery       json.RawMessage
}

// JobPatch holds optional fields for updating a job. Nil fields are left
// unchanged.
type JobPatch struct {
	Name           *string
	Schedule       *Schedule
	Enabled        *bool
	DeleteAfterRun *bool
	SessionTarget  *string
	WakeMode       *string
	Payload        json.RawMessage
	Delivery       json.RawMessage
}

// AddJob validates the schedule, assigns an ID and bookkeeping timestamps,
// computes the initial next-run time, persists, and re-arms the timer.
func (s *Service) AddJob(p AddJobParams) (*CronJob, error) {
	if err := ValidateSchedule(p.Schedule); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, fmt.Errorf("cron service not started")
	}

	nowMs := s.now().UnixMilli()
	job := &CronJob{
		ID:             GenerateJobID(),
		Name:           p.Name,
		Enabled:        true,
		DeleteAfterRun: p.DeleteAfterRun,
		CreatedAtMs:    nowMs,
		UpdatedAtMs:    nowMs,
		Schedule:       p.Schedule,
		SessionTarget:  p.SessionTarget,
		WakeMode:       p.WakeMode,
		Payload:        p.Payload,
		Delivery:       p.Delivery,
	}
	if p.Enabled != nil {
		job.Enabled = *p.Enabled
	}
	job.SetNextRun(JobNextRunAt(job, nowMs))

	s.doc.Jobs = append(s.doc.Jobs, job)
	s.persistLocked()
	s.armTimerLocked()

	s.logger.Info("cron job added",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "schedule", Value: FormatSchedule(job.Schedule)})
	return job.Clone(), nil
}

// UpdateJob applies a patch to an existing job. A schedule change is
// validated fail-fast and resets the armed next-run time.
func (s *Service) UpdateJob(jobID string, patch JobPatch) (*CronJob, error) {
	if patch.Schedule != nil {
		if err := ValidateSchedule(*patch.Schedule); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findJobLocked(jobID)
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	nowMs := s.now().UnixMilli()
	if patch.Name != nil {
		job.Name = *patch.Name
	}
	if patch.Enabled != nil {
		job.Enabled = *patch.Enabled
	}
	if patch.DeleteAfterRun != nil {
		job.DeleteAfterRun = *patch.DeleteAfterRun
	}
	if patch.SessionTarget != nil {
		job.SessionTarget = *patch.SessionTarget
	}
	if patch.WakeMode != nil {
		job.WakeMode = *patch.WakeMode
	}
	if patch.Payload != nil {
		job.Payload = patch.Payload
	}
	if patch.Delivery != nil {
		job.Delivery = patch.Delivery
	}
	if patch.Schedule != nil {
		job.Schedule = *patch.Schedule
		// The cached next-run belongs to the old schedule.
		job.State.NextRunAtMs = nil
	}
	job.UpdatedAtMs = nowMs
	job.SetNextRun(nextEligibleRun(job, nowMs))

	s.persistLocked()
	s.armTimerLocked()

	s.logger.Info("cron job updated", logger.Field{Key: "job_id", Value: jobID})
	return job.Clone(), nil
}

// RemoveJob deletes a job from the store.
func (s *Service) RemoveJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeJobLocked(jobID) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	s.persistLocked()
	s.armTimerLocked()

	s.logger.Info("cron job removed", logger.Field{Key: "job_id", Value: jobID})
	return nil
}

// SetEnabled flips a job's enabled flag and recomputes its next run.
func (s *Service) SetEnabled(jobID string, enabled bool) error {
	_, err := s.UpdateJob(jobID, JobPatch{Enabled: &enabled})
	return err
}

// RunNow triggers immediate execution of a job, bypassing its schedule.
// Without force, a disabled job or one with a fresh running marker is
// skipped; the reason is reported to the caller.
func (s *Service) RunNow(jobID string, force bool) (bool, string, error) {
	s.mu.Lock()
	job := s.findJobLocked(jobID)
	if job == nil {
		s.mu.Unlock()
		return false, "", fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if !force {
		if !job.Enabled {
			s.mu.Unlock()
			return false, "job is disabled", nil
		}
		nowMs := s.now().UnixMilli()
		if r := job.State.RunningAtMs; r != nil && !markerStale(*r, nowMs, s.stuckAfter) {
			s.mu.Unlock()
			return false, "job is already running", nil
		}
	}
	s.mu.Unlock()

	s.executeJob(jobID)

	s.mu.Lock()
	s.armTimerLocked()
	s.mu.Unlock()
	return true, "", nil
}

// ListJobs returns copies of all jobs in store order.
func (s *Service) ListJobs() []*CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*CronJob, 0, len(s.doc.Jobs))
	for _, j := range s.doc.Jobs {
		jobs = append(jobs, j.Clone())
	}
	return jobs
}

// GetJob returns a copy of a job by ID.
func (s *Service) GetJob(jobID string) (*CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findJobLocked(jobID)
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}

// Status returns a summary for CLI/status surfaces.
func (s *Service) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	enabled := 0
	for _, j := range s.doc.Jobs {
		if j.Enabled {
			enabled++
		}
	}
	return map[string]any{
		"running":        s.started,
		"totalJobs":      len(s.doc.Jobs),
		"enabledJobs":    enabled,
		"storePath":      s.store.Path(),
		"lastArmedDelay": s.lastArmedDelay.String(),
	}
}

func (s *Service) findJobLocked(jobID string) *CronJob {
	for _, j := range s.doc.Jobs {
		if j.ID == jobID {
			return j
		}
	}
	return nil
}

func (s *Service) removeJobLocked(jobID string) bool {
	for i, j := range s.doc.Jobs {
		if j.ID == jobID {
			s.doc.Jobs = append(s.doc.Jobs[:i], s.doc.Jobs[i+1:]...)
			return true
		}
	}
	return false
}

// GenerateJobID generates a unique job ID.
func GenerateJobID() string {
	return fmt.Sprintf(constants.CronJobIDFormat, uuid.NewString())
}
