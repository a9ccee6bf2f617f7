package scheduler

import (
	"context"
	"log/slog"
	"time"

	"audio_relay/internal/domain"
)

// Cycler runs one orchestrator sweep.
type Cycler interface {
	Run(ctx context.Context) (*domain.CycleStats, error)
}

type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(cycler Cycler, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cycler:   cycler,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start runs a cycle immediately and then once per interval until ctx is done.
// Ticks that fire while a cycle is still running are dropped, so cycles never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.cycler.Run(ctx); err != nil {
		s.logger.Error("cycle failed", "error", err)
	}
}
