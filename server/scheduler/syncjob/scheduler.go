// Package syncjob runs the message sync engine on a cron schedule and on demand.
package syncjob

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/hrygo/tensai/plugin/ai/timeout"
	"github.com/hrygo/tensai/server/runner/messagesync"
)

const (
	// DefaultSchedule runs a sync every five minutes.
	DefaultSchedule = "*/5 * * * *"
	// DefaultMaxRetries is the retry budget of scheduled runs.
	DefaultMaxRetries = 3

	defaultBaseBackoff = time.Second
)

// parser accepts standard 5-field expressions and descriptors such as "@every 5m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Syncer is the engine driven by the scheduler.
type Syncer interface {
	Sync(ctx context.Context) (*messagesync.Result, error)
}

// Options configures a Scheduler.
type Options struct {
	// BaseBackoff is the wait before the first retry. It doubles on each retry.
	BaseBackoff time.Duration
	// MaxRetries is the retry budget of scheduled runs.
	MaxRetries int
	// RunTimeout bounds one scheduled run, retries included.
	RunTimeout time.Duration
	// Location is the time zone of cron expressions. Defaults to UTC.
	Location *time.Location
}

// Scheduler wraps one sync engine.
type Scheduler struct {
	syncer  Syncer
	options Options
	logger  *slog.Logger
	now     func() time.Time

	// mu guards the cron lifecycle.
	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	cancel  context.CancelFunc

	// runMu serialises runs.
	runMu sync.Mutex

	statsMu sync.RWMutex
	stats   Stats
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(syncer Syncer, options Options) *Scheduler {
	if options.BaseBackoff <= 0 {
		options.BaseBackoff = defaultBaseBackoff
	}
	if options.MaxRetries <= 0 {
		options.MaxRetries = DefaultMaxRetries
	}
	if options.RunTimeout <= 0 {
		options.RunTimeout = timeout.SyncRunTimeout
	}
	if options.Location == nil {
		options.Location = time.UTC
	}
	return &Scheduler{
		syncer:  syncer,
		options: options,
		logger:  slog.Default().With("component", "sync_scheduler"),
		now:     time.Now,
	}
}

// Start arms the periodic trigger. Starting a running scheduler logs a warning
// and does nothing.
func (s *Scheduler) Start(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return errors.Wrapf(err, "invalid cron expression %q", expr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.logger.Warn("scheduler already running", "schedule", expr)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithParser(parser), cron.WithLocation(s.options.Location))
	entryID, err := c.AddFunc(expr, func() { s.runScheduled(ctx) })
	if err != nil {
		cancel()
		return errors.Wrapf(err, "failed to schedule %q", expr)
	}

	s.cancel = cancel
	s.cron = c
	s.entryID = entryID
	c.Start()

	s.logger.Info("scheduler started", "schedule", expr, "next_run", c.Entry(entryID).Next)
	return nil
}

// Stop disarms the trigger and waits for an in-flight scheduled run to end.
// It is safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()

	s.cron = nil
	s.cancel = nil
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the periodic trigger is armed.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// NextRun returns the next scheduled run, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Stats returns a snapshot of the run statistics.
func (s *Scheduler) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// SyncNow runs one sync immediately, retrying up to maxRetries times with
// exponential backoff. It waits for a run already in progress to finish.
func (s *Scheduler) SyncNow(ctx context.Context, maxRetries int) (*messagesync.Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run(ctx, maxRetries)
}

// runScheduled is the cron callback. Overlapping runs are skipped.
func (s *Scheduler) runScheduled(base context.Context) {
	if !s.runMu.TryLock() {
		s.logger.Warn("previous sync still running, skipping scheduled run")
		return
	}
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(base, s.options.RunTimeout)
	defer cancel()
	if _, err := s.run(ctx, s.options.MaxRetries); err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
	}
}

// run must be called with runMu held.
func (s *Scheduler) run(ctx context.Context, maxRetries int) (*messagesync.Result, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	runID := shortuuid.New()
	logger := s.logger.With("run_id", runID)
	started := s.now()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.options.BaseBackoff << (attempt - 1)
			logger.Info("retrying sync", "attempt", attempt+1, "backoff", backoff)
			if err := sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
		}

		result, err := s.syncer.Sync(ctx)
		if err == nil {
			finished := s.now()
			s.statsMu.Lock()
			s.stats.recordRun(runID, started, finished.Sub(started))
			s.stats.recordSuccess(finished, result.MessagesProcessed, result.TotalBatches, result.LastBatchSize)
			s.statsMu.Unlock()

			logger.Info("sync run succeeded",
				"attempts", attempt+1,
				"processed", result.MessagesProcessed,
				"batches", result.TotalBatches,
				"duration", finished.Sub(started))
			return result, nil
		}

		lastErr = err
		s.statsMu.Lock()
		s.stats.recordFailure(err)
		s.statsMu.Unlock()
		logger.Warn("sync attempt failed", "attempt", attempt+1, "max_retries", maxRetries, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	s.statsMu.Lock()
	s.stats.recordRun(runID, started, s.now().Sub(started))
	s.statsMu.Unlock()
	return nil, errors.Wrapf(lastErr, "sync run %s failed", runID)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
