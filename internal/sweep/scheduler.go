// Package sweep runs the abandonment sweep on a cron schedule.
package sweep

import (
	"context"
	"github.com/robfig/cron/v3"
	"log/slog"
	"time"
)

// Sweeper cancels abandoned orders older than threshold.
type Sweeper interface {
	Sweep(ctx context.Context, threshold time.Duration) (int, error)
}

// Locker keeps replicas from sweeping at the same time.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

type Scheduler struct {
	log       *slog.Logger
	sweeper   Sweeper
	locker    Locker
	threshold time.Duration
	lockTTL   time.Duration
	cron      *cron.Cron
}

func New(log *slog.Logger, sweeper Sweeper, locker Locker, threshold time.Duration) *Scheduler {
	return &Scheduler{
		log:       log,
		sweeper:   sweeper,
		locker:    locker,
		threshold: threshold,
		lockTTL:   5 * time.Minute,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Run schedules the sweep and blocks until ctx ends, then waits for a
// running sweep to finish.
func (s *Scheduler) Run(ctx context.Context, schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("sweep scheduled", "schedule", schedule, "threshold", s.threshold.String())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("sweep scheduler stopped")
	return nil
}

// RunOnce performs one locked sweep. It returns the cancelled count, or
// -1 when another replica holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, "sweep-abandoned", s.lockTTL)
		if err != nil {
			s.log.Error("sweep lock", "err", err)
			return -1
		}
		if !ok {
			s.log.Debug("sweep skipped, lock held elsewhere")
			return -1
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("sweep unlock", "err", err)
			}
		}()
	}

	start := time.Now()
	n, err := s.sweeper.Sweep(ctx, s.threshold)
	if err != nil {
		s.log.Error("sweep failed", "cancelled", n, "err", err)
		return n
	}
	s.log.Info("sweep done", "cancelled", n, "took", time.Since(start).String())
	return n
}
