package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"audio_relay/internal/domain"
)

// Processor is the per-source state machine: Idle -> Acquiring -> Idle.
// It never returns an error; every adapter failure becomes a transition, a log line
// and an Outcome.
type Processor struct {
	store     SourceStore
	feeds     FeedClient
	media     MediaAcquirer
	publisher Publisher
	notifier  Notifier
	caption   CaptionConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessor(
	store SourceStore,
	feeds FeedClient,
	media MediaAcquirer,
	publisher Publisher,
	notifier Notifier,
	caption CaptionConfig,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		store:     store,
		feeds:     feeds,
		media:     media,
		publisher: publisher,
		notifier:  notifier,
		caption:   caption,
		logger:    logger.With("component", "processor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Process runs one pass over src, which must be idle. Only items[src.CursorIndex] is considered.
func (p *Processor) Process(ctx context.Context, src *domain.Source) domain.Outcome {
	logger := p.logger.With("source_id", src.ID)
	out := domain.Outcome{SourceID: src.ID}

	if src.State != domain.StateIdle {
		logger.Warn("source is not idle, skipping", "state", src.State)
		out.Result = domain.ResultLocked
		return out
	}

	feed, err := p.feeds.Fetch(ctx, src.URL)
	if err != nil {
		logger.Warn("fetch feed failed", "url", src.URL, "error", err)
		out.Result = domain.ResultNoop
		out.Err = err
		return out
	}

	item, ok := feed.Candidate(src.CursorIndex)
	if !ok {
		logger.Debug("no candidate at cursor", "cursor", src.CursorIndex, "items", len(feed.Items))
		out.Result = domain.ResultNoop
		return out
	}
	out.ItemID = item.ItemID
	logger = logger.With("item_id", item.ItemID)

	if src.History.Contains(item.ItemID) {
		logger.Debug("candidate already handled", "cursor", src.CursorIndex)
		src.CursorIndex = 0
		return p.persist(ctx, logger, src, out, domain.ResultDuplicate)
	}

	// The lock must be committed before any extraction work so a crash is visible to the reclaimer.
	acquiredAt := p.now()
	if err := p.store.Acquire(ctx, src.ID, acquiredAt); err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			logger.Info("source acquired by another run")
			out.Result = domain.ResultLocked
			return out
		}
		logger.Error("acquire lock failed", "error", err)
		out.Result = domain.ResultFailed
		out.Err = &domain.StoreError{Op: "acquire", SourceID: src.ID, Err: err}
		return out
	}
	src.SetState(domain.StateAcquiring, acquiredAt)
	logger.Info("processing item", "title", item.Title, "cursor", src.CursorIndex)

	info, err := p.media.Probe(ctx, item.ItemID)
	if err != nil {
		out.Err = err
		if domain.AcquisitionKindOf(err) == domain.AcquisitionLiveInProgress {
			logger.Info("live event not finished, moving cursor past it", "error", err)
			src.CursorIndex++
			return p.release(ctx, logger, src, out, domain.ResultSkippedLive)
		}
		logger.Warn("probe failed, will retry", "kind", domain.AcquisitionKindOf(err), "error", err)
		return p.release(ctx, logger, src, out, domain.ResultRetry)
	}

	if info.IsLive || info.IsShortForm {
		logger.Info("item excluded by policy", "is_live", info.IsLive, "is_short_form", info.IsShortForm)
		src.CursorIndex = 0
		// A running broadcast turns into a recording later; shorts never become eligible.
		if info.IsShortForm && !info.IsLive {
			src.History = src.History.Insert(item.ItemID)
		}
		return p.release(ctx, logger, src, out, domain.ResultExcluded)
	}

	artifact, err := p.media.Extract(ctx, item.ItemID)
	if err != nil {
		logger.Warn("extract failed, will retry", "kind", domain.AcquisitionKindOf(err), "error", err)
		if derr := p.media.Discard(item.ItemID); derr != nil {
			logger.Warn("discard partial artifact failed", "error", derr)
		}
		out.Err = err
		return p.release(ctx, logger, src, out, domain.ResultRetry)
	}

	title := item.Title
	if title == "" {
		title = info.Title
	}
	duration := info.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}

	result := domain.ResultPublished
	messageID, err := p.publisher.Publish(ctx, domain.Delivery{
		AudioPath:     artifact.AudioPath,
		ThumbnailPath: artifact.ThumbnailPath,
		Caption:       BuildCaption(p.caption, feed, item, title, src.Tag),
		Duration:      duration,
		Performer:     Sanitize(feed.AuthorName),
		Title:         Sanitize(title),
	})
	if err != nil {
		logger.Error("publish failed, recording item as handled", "error", err)
		result = domain.ResultUndelivered
		out.Err = err
	} else {
		logger.Info("item published", "message_id", messageID)
	}

	src.CursorIndex = 0
	src.History = src.History.Insert(item.ItemID)
	out = p.release(ctx, logger, src, out, result)

	p.removeArtifact(logger, artifact)

	if out.Result != domain.ResultFailed {
		p.notify(ctx, logger, domain.ItemEvent{
			SourceID:  src.ID,
			ItemID:    item.ItemID,
			Title:     Sanitize(title),
			Result:    result,
			MessageID: messageID,
			Timestamp: p.now(),
		})
	}

	return out
}

// release returns src to idle and persists it.
func (p *Processor) release(ctx context.Context, logger *slog.Logger, src *domain.Source, out domain.Outcome, result domain.Result) domain.Outcome {
	src.SetState(domain.StateIdle, p.now())
	return p.persist(ctx, logger, src, out, result)
}

func (p *Processor) persist(ctx context.Context, logger *slog.Logger, src *domain.Source, out domain.Outcome, result domain.Result) domain.Outcome {
	out.Result = result
	if err := p.store.Save(ctx, src); err != nil {
		logger.Error("save source failed", "result", result, "state", src.State, "error", err)
		out.Result = domain.ResultFailed
		out.Err = &domain.StoreError{Op: "save", SourceID: src.ID, Err: err}
		return out
	}
	logger.Debug("source saved", "result", result, "cursor", src.CursorIndex, "history", len(src.History))
	return out
}

func (p *Processor) removeArtifact(logger *slog.Logger, artifact *domain.Artifact) {
	for _, path := range []string{artifact.AudioPath, artifact.ThumbnailPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove artifact failed", "path", path, "error", err)
		}
	}
}

func (p *Processor) notify(ctx context.Context, logger *slog.Logger, event domain.ItemEvent) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, event); err != nil {
		logger.Warn("notify item event failed", "error", err)
	}
}
