package service

import (
	"context"
	"log/slog"
	"time"

	"audio_relay/internal/domain"
)

// Reclaimer forces records stuck in Acquiring back to Idle once their lock outlived the window.
// A run that crashed after acquiring would otherwise block its source forever.
type Reclaimer struct {
	store  SourceStore
	window time.Duration
	logger *slog.Logger
}

func NewReclaimer(store SourceStore, window time.Duration, logger *slog.Logger) *Reclaimer {
	return &Reclaimer{
		store:  store,
		window: window,
		logger: logger.With("component", "reclaimer"),
	}
}

// Reclaim resets every stale record in sources in place and returns the ids it persisted.
// Cursor and history are left untouched; a record whose save fails stays Acquiring.
func (r *Reclaimer) Reclaim(ctx context.Context, sources []*domain.Source, now time.Time) []int64 {
	var reclaimed []int64
	for _, src := range sources {
		if src == nil || !src.IsStale(now, r.window) {
			continue
		}

		heldFor := now.Sub(src.StateChangedAt)
		prev := src.Clone()

		src.SetState(domain.StateIdle, now)
		if err := r.store.Save(ctx, src); err != nil {
			r.logger.Error("reclaim stale lock failed", "source_id", src.ID, "error", err)
			*src = *prev
			continue
		}

		r.logger.Warn("reclaimed stale lock", "source_id", src.ID, "held_for", heldFor.Round(time.Second))
		reclaimed = append(reclaimed, src.ID)
	}
	return reclaimed
}
