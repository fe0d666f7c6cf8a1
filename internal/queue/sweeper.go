package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sweeper owns the periodic maintenance tasks: the expiry sweep that moves
// timed-out called entries to no_show and the operating-hours check. Intervals
// are injectable so tests drive the sweeps synchronously through the
// coordinator instead of waiting on wall-clock timers.
type Sweeper struct {
	coordinator *Coordinator
	expiryEvery time.Duration
	hoursEvery  time.Duration
	cachePruner func(ctx context.Context, reference time.Time) (int, error)
	now         func() time.Time
	logger      *slog.Logger
}

// NewSweeper wires the periodic tasks. Non-positive intervals fall back to
// 60s for expiry and 5m for operating hours. The cache pruner is optional and
// drops expired durable cache records when set.
func NewSweeper(coordinator *Coordinator, expiryEvery, hoursEvery time.Duration, cachePruner func(ctx context.Context, reference time.Time) (int, error), now func() time.Time, logger *slog.Logger) *Sweeper {
	if expiryEvery <= 0 {
		expiryEvery = 60 * time.Second
	}
	if hoursEvery <= 0 {
		hoursEvery = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		coordinator: coordinator,
		expiryEvery: expiryEvery,
		hoursEvery:  hoursEvery,
		cachePruner: cachePruner,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// Run executes the sweeps on their intervals until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s == nil || s.coordinator == nil {
		return fmt.Errorf("Sweeper is not configured")
	}

	expiryTicker := time.NewTicker(s.expiryEvery)
	defer expiryTicker.Stop()
	hoursTicker := time.NewTicker(s.hoursEvery)
	defer hoursTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expiryTicker.C:
			if _, err := s.coordinator.ExpirySweep(ctx); err != nil {
				s.logger.WarnContext(ctx, "expiry sweep failed", "error", err)
			}
			s.pruneCache(ctx)
		case <-hoursTicker.C:
			if _, err := s.coordinator.OperatingHoursSweep(ctx); err != nil {
				s.logger.WarnContext(ctx, "operating hours sweep failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) pruneCache(ctx context.Context) {
	if s.cachePruner == nil {
		return
	}
	if _, err := s.cachePruner(ctx, s.now()); err != nil {
		s.logger.WarnContext(ctx, "cache prune failed", "error", err)
	}
}
