package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"audio_relay/internal/domain"
)

// SourceStore is the slice of the record store used at cycle time.
type SourceStore interface {
	LoadAll(ctx context.Context) ([]*domain.Source, error)
	Load(ctx context.Context, id int64) (*domain.Source, error)
	Save(ctx context.Context, src *domain.Source) error
	Acquire(ctx context.Context, id int64, at time.Time) error
}

// AdminStore is the slice of the record store used by administrative commands.
type AdminStore interface {
	LoadAll(ctx context.Context) ([]*domain.Source, error)
	Create(ctx context.Context, url string) (*domain.Source, error)
	Delete(ctx context.Context, id int64) error
	ResetAllStates(ctx context.Context, at time.Time) (int64, error)
	ResetState(ctx context.Context, id int64, at time.Time) error
	ResetHistory(ctx context.Context, id int64) error
	SetTag(ctx context.Context, id int64, tag string) error
}

type FeedClient interface {
	Fetch(ctx context.Context, url string) (*domain.Feed, error)
}

type MediaAcquirer interface {
	Probe(ctx context.Context, itemID string) (*domain.MediaInfo, error)
	Extract(ctx context.Context, itemID string) (*domain.Artifact, error)
	Discard(itemID string) error
}

type Publisher interface {
	Publish(ctx context.Context, delivery domain.Delivery) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, event domain.ItemEvent) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SourceRunner drives one source through a single state machine pass.
type SourceRunner interface {
	Process(ctx context.Context, src *domain.Source) domain.Outcome
}
