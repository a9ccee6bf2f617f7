package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"audio_relay/internal/domain"
)

// Admin backs the management commands. Store errors are returned as-is to the caller.
type Admin struct {
	store  AdminStore
	tx     TransactionManager
	logger *slog.Logger
	now    func() time.Time
}

func NewAdmin(store AdminStore, tx TransactionManager, logger *slog.Logger) *Admin {
	return &Admin{
		store:  store,
		tx:     tx,
		logger: logger.With("component", "admin"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ParseURLList splits a "a|b|c" argument, dropping blanks.
func ParseURLList(arg string) []string {
	var urls []string
	for _, part := range strings.Split(arg, "|") {
		if part = strings.TrimSpace(part); part != "" {
			urls = append(urls, part)
		}
	}
	return urls
}

func validateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}

// Add creates one record per url. Either every url is stored or none is.
func (a *Admin) Add(ctx context.Context, urls []string) ([]*domain.Source, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no urls given")
	}
	for _, u := range urls {
		if err := validateFeedURL(u); err != nil {
			return nil, err
		}
	}

	created := make([]*domain.Source, 0, len(urls))
	err := a.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, u := range urls {
			src, err := a.store.Create(txCtx, u)
			if err != nil {
				return fmt.Errorf("create source %s: %w", u, err)
			}
			created = append(created, src)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, src := range created {
		a.logger.Info("source added", "source_id", src.ID, "url", src.URL)
	}
	return created, nil
}

func (a *Admin) Remove(ctx context.Context, id int64) error {
	if err := a.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove source %d: %w", id, err)
	}
	a.logger.Info("source removed", "source_id", id)
	return nil
}

func (a *Admin) List(ctx context.Context) ([]*domain.Source, error) {
	sources, err := a.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

func (a *Admin) Tag(ctx context.Context, id int64, tag string) error {
	if err := a.store.SetTag(ctx, id, strings.TrimSpace(tag)); err != nil {
		return fmt.Errorf("tag source %d: %w", id, err)
	}
	a.logger.Info("source tagged", "source_id", id, "tag", tag)
	return nil
}

// ResetAllStates forces every record to idle, regardless of lock age.
func (a *Admin) ResetAllStates(ctx context.Context) (int64, error) {
	n, err := a.store.ResetAllStates(ctx, a.now())
	if err != nil {
		return 0, fmt.Errorf("reset all states: %w", err)
	}
	a.logger.Info("states reset", "affected", n)
	return n, nil
}

func (a *Admin) ResetState(ctx context.Context, id int64) error {
	if err := a.store.ResetState(ctx, id, a.now()); err != nil {
		return fmt.Errorf("reset state %d: %w", id, err)
	}
	a.logger.Info("state reset", "source_id", id)
	return nil
}

// ResetIDs clears the processed-item history of a record.
func (a *Admin) ResetIDs(ctx context.Context, id int64) error {
	if err := a.store.ResetHistory(ctx, id); err != nil {
		return fmt.Errorf("reset history %d: %w", id, err)
	}
	a.logger.Info("history reset", "source_id", id)
	return nil
}
