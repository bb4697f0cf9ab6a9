package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically closes screening sessions that were left unfinished.
type Sweeper struct {
	log      *zap.Logger
	service  *ScreeningService
	interval time.Duration
	// abandonAfter is read on every tick so a config reload takes effect
	// without a restart.
	abandonAfter func() time.Duration
}

func NewSweeper(log *zap.Logger, service *ScreeningService, interval time.Duration, abandonAfter func() time.Duration) *Sweeper {
	return &Sweeper{
		log:          log,
		service:      service,
		interval:     interval,
		abandonAfter: abandonAfter,
	}
}

// Start runs the sweeper in a goroutine until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("Abandonment sweeper disabled")
		return
	}
	s.log.Info("Starting abandonment sweeper...",
		zap.Duration("interval", s.interval),
		zap.Duration("abandon_after", s.abandonAfter()))
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runSweep(ctx)
			}
		}
	}()
}

// runSweep returns how many sessions it closed.
func (s *Sweeper) runSweep(ctx context.Context) int {
	after := s.abandonAfter()
	if after <= 0 {
		s.log.Debug("Abandonment sweep skipped, abandon_after is not set")
		return 0
	}
	s.log.Debug("Running abandonment sweep", zap.Duration("abandon_after", after))
	closed, err := s.service.AbandonStale(ctx, after)
	if err != nil {
		s.log.Error("Abandonment sweep failed", zap.Int("closed", closed), zap.Error(err))
		return closed
	}
	if closed > 0 {
		s.log.Info("Abandonment sweep finished", zap.Int("closed", closed))
	}
	return closed
}
