package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"audio_relay/internal/domain"
)

// Cycle is one orchestrator sweep over every subscribed source.
type Cycle struct {
	store          SourceStore
	reclaimer      *Reclaimer
	runner         SourceRunner
	maxConcurrency int
	logger         *slog.Logger
	now            func() time.Time
}

func NewCycle(
	store SourceStore,
	reclaimer *Reclaimer,
	runner SourceRunner,
	maxConcurrency int,
	logger *slog.Logger,
) *Cycle {
	return &Cycle{
		store:          store,
		reclaimer:      reclaimer,
		runner:         runner,
		maxConcurrency: maxConcurrency,
		logger:         logger.With("component", "cycle"),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Run reclaims stale locks, then runs the state machine once for every idle source and waits
// for all of them. Only a failure to load the records fails the cycle.
func (c *Cycle) Run(ctx context.Context) (*domain.CycleStats, error) {
	start := time.Now()
	stats := &domain.CycleStats{
		CycleID: uuid.NewString(),
		Results: make(map[domain.Result]int),
	}
	logger := c.logger.With("cycle_id", stats.CycleID)

	sources, err := c.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	logger.Info("starting cycle", "sources", len(sources), "max_concurrency", c.maxConcurrency)

	if c.reclaimer != nil {
		stats.Reclaimed = len(c.reclaimer.Reclaim(ctx, sources, c.now()))
	}

	eligible := selectEligible(sources)
	stats.Eligible = len(eligible)

	// Runs outlive caller cancellation; an interrupted process is recovered by the reclaimer.
	runCtx := context.WithoutCancel(ctx)

	var (
		mu       sync.Mutex
		outcomes = make([]domain.Outcome, 0, len(eligible))
	)

	var g errgroup.Group
	if c.maxConcurrency > 0 {
		g.SetLimit(c.maxConcurrency)
	}
	for _, src := range eligible {
		g.Go(func() error {
			out := c.runOne(runCtx, logger, src)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		stats.Record(out)
	}
	stats.Duration = time.Since(start)

	logger.Info("cycle completed",
		"reclaimed", stats.Reclaimed,
		"eligible", stats.Eligible,
		"published", stats.Results[domain.ResultPublished],
		"undelivered", stats.Results[domain.ResultUndelivered],
		"retry", stats.Results[domain.ResultRetry],
		"failed", stats.Results[domain.ResultFailed],
		"duration", stats.Duration,
	)

	return stats, nil
}

func (c *Cycle) runOne(ctx context.Context, logger *slog.Logger, src *domain.Source) (out domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked",
				"source_id", src.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			out = domain.Outcome{
				SourceID: src.ID,
				Result:   domain.ResultFailed,
				Err:      fmt.Errorf("run panicked: %v", r),
			}
		}
	}()

	return c.runner.Process(ctx, src)
}

// selectEligible keeps idle records, each id at most once.
func selectEligible(sources []*domain.Source) []*domain.Source {
	seen := make(map[int64]struct{}, len(sources))
	eligible := make([]*domain.Source, 0, len(sources))
	for _, src := range sources {
		if src == nil || src.State != domain.StateIdle {
			continue
		}
		if _, dup := seen[src.ID]; dup {
			continue
		}
		seen[src.ID] = struct{}{}
		eligible = append(eligible, src)
	}
	return eligible
}
