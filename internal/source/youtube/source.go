package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"

	"audio_relay/internal/domain"
)

const maxFeedBytes = 4 << 20

// Config holds feed client configuration.
type Config struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source fetches YouTube channel Atom feeds.
type Source struct {
	httpClient     *http.Client
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new feed client.
func New(cfg Config, logger *slog.Logger) *Source {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "feed"),
	}
}

// Fetch resolves feedURL into its ordered candidate items and channel metadata.
// Every failure is returned as *domain.FetchError.
func (s *Source) Fetch(ctx context.Context, feedURL string) (*domain.Feed, error) {
	base, err := parseFeedURL(feedURL)
	if err != nil {
		return nil, &domain.FetchError{URL: feedURL, Err: err}
	}

	var feed *atom.Feed
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		feed, err = s.doRequest(ctx, withCacheBuster(base))
		if err == nil {
			return s.transform(feed), nil
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"url", feedURL,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, &domain.FetchError{URL: feedURL, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}

	return nil, &domain.FetchError{URL: feedURL, Err: fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)}
}

func (s *Source) doRequest(ctx context.Context, reqURL string) (*atom.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/atom+xml, application/xml;q=0.9")
	req.Header.Set("User-Agent", "AudioRelay/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	parser := &atom.Parser{}
	feed, err := parser.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	return feed, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func (s *Source) transform(feed *atom.Feed) *domain.Feed {
	out := &domain.Feed{}

	if len(feed.Authors) > 0 && feed.Authors[0] != nil {
		out.AuthorName = feed.Authors[0].Name
		out.AuthorURL = feed.Authors[0].URI
	}
	if out.AuthorName == "" {
		out.AuthorName = feed.Title
	}

	out.Items = make([]domain.FeedItem, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry == nil {
			continue
		}

		id := videoID(entry)
		if id == "" {
			s.logger.Warn("entry without video id", "entry_id", entry.ID)
			continue
		}

		item := domain.FeedItem{
			ItemID:   id,
			Title:    entry.Title,
			Position: len(out.Items),
		}
		if entry.PublishedParsed != nil {
			item.Published = *entry.PublishedParsed
		}

		out.Items = append(out.Items, item)
	}

	return out
}

// videoID reads yt:videoId, falling back to the "yt:video:<id>" entry id.
func videoID(entry *atom.Entry) string {
	if yt, ok := entry.Extensions["yt"]; ok {
		if values := yt["videoId"]; len(values) > 0 {
			if id := strings.TrimSpace(values[0].Value); id != "" {
				return id
			}
		}
	}
	if id, ok := strings.CutPrefix(entry.ID, "yt:video:"); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

func parseFeedURL(feedURL string) (*url.URL, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	return u, nil
}

// withCacheBuster adds a fresh random nocache parameter so intermediaries never serve a stale feed.
// It is called once per attempt.
func withCacheBuster(base *url.URL) string {
	u := *base
	q := u.Query()
	q.Set("nocache", strconv.FormatUint(rand.Uint64(), 36))
	u.RawQuery = q.Encode()
	return u.String()
}
