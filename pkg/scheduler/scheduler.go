// Package scheduler drives periodic session re-validation. It fires a job on
// a cron schedule while the auto-validation feature is enabled; the job is
// expected to be a throttled validation call, so overlapping fires coalesce
// there rather than here.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/observability"
)

// DefaultSchedule re-validates every five minutes.
const DefaultSchedule = "@every 5m"

// Job is one periodic validation run. Errors are logged, never fatal: a
// failed background check must not take the host session down.
type Job func(ctx context.Context) error

// EnabledFunc reports whether auto-validation is currently on. Consulted on
// every fire so config changes apply without a restart.
type EnabledFunc func(ctx context.Context) bool

// Scheduler runs a Job on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	logger  *observability.Logger
	job     Job
	enabled EnabledFunc
	timeout time.Duration

	mu      sync.Mutex
	started bool
}

// Options configures a Scheduler.
type Options struct {
	// Schedule is a cron expression or @every descriptor. Defaults to
	// DefaultSchedule.
	Schedule string
	// Enabled gates each fire. Nil means always enabled.
	Enabled EnabledFunc
	// Timeout bounds a single run. Defaults to one minute.
	Timeout time.Duration
	Logger  *observability.Logger
}

// New creates a scheduler for the given job. Call Start to begin firing.
func New(job Job, opts Options) (*Scheduler, error) {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Scheduler{
		cron:    cron.New(),
		logger:  opts.Logger,
		job:     job,
		enabled: opts.Enabled,
		timeout: opts.Timeout,
	}
	if _, err := s.cron.AddFunc(opts.Schedule, s.fire); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins firing on schedule. Safe to call once; subsequent calls are
// no-ops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("auto-validation scheduler started")
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	<-s.cron.Stop().Done()
	s.logger.Info("auto-validation scheduler stopped")
}

// RunOnce executes the job immediately, outside the schedule, with the same
// gating, timeout and panic handling as a scheduled fire.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.run(ctx)
}

func (s *Scheduler) fire() {
	s.run(context.Background())
}

func (s *Scheduler) run(ctx context.Context) {
	defer observability.RecoverPanic(s.logger, "scheduler")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.enabled != nil && !s.enabled(ctx) {
		s.logger.Debug("auto-validation disabled, skipping scheduled check")
		return
	}
	if err := s.job(ctx); err != nil {
		s.logger.WithError(err).Warn("scheduled validation failed")
		return
	}
	s.logger.Debug("scheduled validation completed")
}
