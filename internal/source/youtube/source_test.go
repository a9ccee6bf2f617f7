package youtube

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio_relay/internal/domain"
)

const channelFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <link rel="self" href="http://www.youtube.com/feeds/videos.xml?channel_id=UC123"/>
 <id>yt:channel:UC123</id>
 <yt:channelId>UC123</yt:channelId>
 <title>Some Channel</title>
 <author>
  <name>Some Channel</name>
  <uri>https://www.youtube.com/channel/UC123</uri>
 </author>
 <published>2020-01-01T00:00:00+00:00</published>
 <entry>
  <id>yt:video:AAA111</id>
  <yt:videoId>AAA111</yt:videoId>
  <yt:channelId>UC123</yt:channelId>
  <title>Newest episode</title>
  <published>2024-05-02T10:00:00+00:00</published>
 </entry>
 <entry>
  <id>yt:video:BBB222</id>
  <title>Entry without extension</title>
  <published>2024-05-01T10:00:00+00:00</published>
 </entry>
 <entry>
  <id>urn:other</id>
  <title>Not a video</title>
 </entry>
</feed>`

func newTestSource(attempts int) *Source {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{
		Timeout:        5 * time.Second,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, logger)
}

func TestFetch_ParsesEntriesInOrder(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = io.WriteString(w, channelFeed)
	}))
	defer srv.Close()

	feed, err := newTestSource(1).Fetch(context.Background(), srv.URL+"/feeds/videos.xml?channel_id=UC123")
	require.NoError(t, err)

	assert.Equal(t, "Some Channel", feed.AuthorName)
	assert.Equal(t, "https://www.youtube.com/channel/UC123", feed.AuthorURL)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "AAA111", feed.Items[0].ItemID)
	assert.Equal(t, "Newest episode", feed.Items[0].Title)
	assert.Equal(t, 0, feed.Items[0].Position)
	assert.True(t, feed.Items[0].Published.Equal(time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "BBB222", feed.Items[1].ItemID)
	assert.Equal(t, 1, feed.Items[1].Position)

	assert.Contains(t, gotQuery, "channel_id=UC123")
	assert.Contains(t, gotQuery, "nocache=")
}

func TestFetch_EmptyFeedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<feed xmlns="http://www.w3.org/2005/Atom"><title>Empty</title></feed>`)
	}))
	defer srv.Close()

	feed, err := newTestSource(1).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, feed.Items)
	assert.Equal(t, "Empty", feed.AuthorName)

	_, ok := feed.Candidate(0)
	assert.False(t, ok)
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, channelFeed)
	}))
	defer srv.Close()

	feed, err := newTestSource(3).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, feed.Items, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_FreshCacheBusterPerAttempt(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Query().Get("nocache"))
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestSource(3).Fetch(context.Background(), srv.URL+"?channel_id=UC123")
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	for _, v := range seen {
		assert.NotEmpty(t, v)
	}
	assert.NotEqual(t, seen[0], seen[1])
	assert.NotEqual(t, seen[1], seen[2])
}

func TestWithCacheBuster_KeepsQuery(t *testing.T) {
	base, err := parseFeedURL("https://www.youtube.com/feeds/videos.xml?channel_id=UC123")
	require.NoError(t, err)

	first := withCacheBuster(base)
	second := withCacheBuster(base)

	assert.Contains(t, first, "channel_id=UC123")
	assert.NotEqual(t, first, second)
	assert.Empty(t, base.Query().Get("nocache"))
}

func TestFetch_ReturnsFetchError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestSource(2).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, srv.URL, fetchErr.URL)
	assert.Contains(t, err.Error(), "unexpected status: 404")
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_RejectsBadURL(t *testing.T) {
	_, err := newTestSource(1).Fetch(context.Background(), "ftp://example.com/feed")

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Contains(t, err.Error(), "unsupported url scheme")
}

func TestCalculateBackoff(t *testing.T) {
	s := &Source{initialBackoff: time.Second, maxBackoff: 5 * time.Second}

	assert.Equal(t, time.Second, s.calculateBackoff(1))
	assert.Equal(t, 2*time.Second, s.calculateBackoff(2))
	assert.Equal(t, 4*time.Second, s.calculateBackoff(3))
	assert.Equal(t, 5*time.Second, s.calculateBackoff(4))
}
