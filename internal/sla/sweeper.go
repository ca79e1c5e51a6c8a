package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Sweeper runs the deadline check on a cron schedule. A weighted
// semaphore guarantees a sweep never overlaps a still-running
// predecessor: a tick that finds one in flight is skipped, not queued.
type Sweeper struct {
	notifier *Notifier
	schedule string
	enabled  bool
	cron     *cron.Cron
	sem      *semaphore.Weighted
	cancel   context.CancelFunc
	logger   *zap.Logger
}

// NewSweeper creates the SLA sweep worker. The schedule uses six-field
// cron syntax with seconds.
func NewSweeper(notifier *Notifier, schedule string, enabled bool, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		notifier: notifier,
		schedule: schedule,
		enabled:  enabled,
		sem:      semaphore.NewWeighted(1),
		logger:   logger,
	}
}

// Start schedules the periodic sweep
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.enabled {
		s.logger.Info("SLA sweeper disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(s.schedule, func() {
		s.Sweep(runCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("SLA sweeper scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop cancels in-flight work and halts the schedule, waiting for a
// running sweep to finish
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Name returns the worker name
func (s *Sweeper) Name() string {
	return "sla-sweeper"
}

// Sweep runs one pass over the deadline-carrying tasks. Returns false
// when a previous sweep was still running and this one was skipped.
func (s *Sweeper) Sweep(ctx context.Context) (Stats, bool) {
	if !s.sem.TryAcquire(1) {
		s.logger.Warn("Skipping SLA sweep: previous sweep still running")
		return Stats{}, false
	}
	defer s.sem.Release(1)

	start := time.Now()
	stats, err := s.notifier.CheckAll(ctx)
	if err != nil {
		s.logger.Error("SLA sweep failed", zap.Error(err))
		return stats, true
	}

	s.logger.Info("SLA sweep finished",
		zap.Int("checked", stats.Checked),
		zap.Int("warnings", stats.Warnings),
		zap.Int("escalations", stats.Escalations),
		zap.Duration("elapsed", time.Since(start)))
	return stats, true
}
