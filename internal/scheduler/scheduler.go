// Package scheduler runs the periodic background jobs (conflict scan,
// peer polling) on fixed intervals. Overlapping runs of the same job are
// skipped rather than queued: a scan that outlives its interval must not
// stack up behind itself.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one periodic unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner with interval-based jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stopped scheduler. Jobs added after Start are picked up
// on their next interval.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := &slogAdapter{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob schedules fn to run every interval. A tick arriving while the
// previous run is still in progress is skipped and logged, never queued.
func (s *Scheduler) AddJob(name string, interval time.Duration, fn Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s has non-positive interval %s", name, interval)
	}
	var running atomic.Bool
	spec := fmt.Sprintf("@every %s", interval)
	_, err := s.cron.AddFunc(spec, func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Info("Previous run still in progress, skipping tick", "job", name)
			return
		}
		defer running.Store(false)
		if err := fn(s.ctx); err != nil {
			s.logger.Error("Scheduled job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.logger.Info("Job scheduled", "job", name, "interval", interval)
	return nil
}

// Start begins running jobs in background goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// slogAdapter bridges cron's logger interface onto slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a *slogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"error", err}, keysAndValues...)
	a.logger.Error(msg, args...)
}
