package ytdlp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio_relay/internal/domain"
)

func newTestClient(t *testing.T, run runFunc) *Client {
	t.Helper()
	c := New(Config{
		Binary:       "yt-dlp",
		WorkDir:      t.TempDir(),
		Timeout:      time.Minute,
		AudioFormat:  "mp3",
		AudioQuality: "9",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.run = run
	return c
}

func stdoutOnly(out string) runFunc {
	return func(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
		return []byte(out), nil, nil
	}
}

func failing(stderr string) runFunc {
	return func(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
		return nil, []byte(stderr), errors.New("exit status 1")
	}
}

func TestProbe_ParsesMetadata(t *testing.T) {
	var gotArgs []string
	c := newTestClient(t, func(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		return []byte(`{"id":"abc","title":"Episode 1","duration":3599.6,"is_live":false,"live_status":"not_live","media_type":"video","webpage_url":"https://www.youtube.com/watch?v=abc"}`), nil, nil
	})

	info, err := c.Probe(context.Background(), "abc")
	require.NoError(t, err)

	assert.Equal(t, &domain.MediaInfo{Duration: 3600, Title: "Episode 1"}, info)
	assert.Contains(t, gotArgs, "--dump-single-json")
	assert.Equal(t, watchURL+"abc", gotArgs[len(gotArgs)-1])
}

func TestProbe_FlagsLiveAndShorts(t *testing.T) {
	c := newTestClient(t, stdoutOnly(`{"id":"abc","is_live":true,"live_status":"is_live"}`))
	info, err := c.Probe(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, info.IsLive)
	assert.False(t, info.IsShortForm)

	c = newTestClient(t, stdoutOnly(`{"id":"abc","duration":42,"media_type":"short"}`))
	info, err = c.Probe(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, info.IsShortForm)

	c = newTestClient(t, stdoutOnly(`{"id":"abc","duration":42,"original_url":"https://www.youtube.com/shorts/abc"}`))
	info, err = c.Probe(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, info.IsShortForm)
}

func TestProbe_UpcomingIsLiveInProgress(t *testing.T) {
	c := newTestClient(t, stdoutOnly(`{"id":"abc","live_status":"is_upcoming"}`))

	_, err := c.Probe(context.Background(), "abc")
	assert.Equal(t, domain.AcquisitionLiveInProgress, domain.AcquisitionKindOf(err))
}

func TestProbe_ClassifiesFailures(t *testing.T) {
	cases := map[string]domain.AcquisitionKind{
		"ERROR: [youtube] abc: This live event will begin in 3 hours.": domain.AcquisitionLiveInProgress,
		"ERROR: [youtube] abc: This live event has ended.":               domain.AcquisitionLiveInProgress,
		"ERROR: [youtube] abc: Premieres in 20 minutes":                 domain.AcquisitionLiveInProgress,
		"ERROR: [youtube] abc: Video unavailable":                       domain.AcquisitionNotFound,
		"ERROR: [youtube] abc: Private video. Sign in if you've been granted access": domain.AcquisitionNotFound,
		"ERROR: unable to download video data: HTTP Error 503: Service Unavailable":  domain.AcquisitionTransient,
		"ERROR: [youtube] abc: Unable to download webpage: <urlopen error timed out>": domain.AcquisitionTransient,
		"ERROR: something nobody has seen before":                                     domain.AcquisitionUnknown,
	}

	for stderr, want := range cases {
		c := newTestClient(t, failing("WARNING: noise\n"+stderr+"\n"))
		_, err := c.Probe(context.Background(), "abc")

		var acqErr *domain.AcquisitionError
		require.True(t, errors.As(err, &acqErr), stderr)
		assert.Equal(t, want, acqErr.Kind, stderr)
		assert.Equal(t, "abc", acqErr.ItemID)
		assert.Contains(t, err.Error(), "ERROR:", stderr)
	}
}

func TestProbe_DeadlineIsTransient(t *testing.T) {
	c := newTestClient(t, func(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	})
	c.cfg.Timeout = 10 * time.Millisecond

	_, err := c.Probe(context.Background(), "abc")
	assert.Equal(t, domain.AcquisitionTransient, domain.AcquisitionKindOf(err))
}

func TestProbe_RejectsUnsafeIDs(t *testing.T) {
	c := newTestClient(t, stdoutOnly(`{}`))

	_, err := c.Probe(context.Background(), "../etc/passwd")
	assert.Equal(t, domain.AcquisitionNotFound, domain.AcquisitionKindOf(err))
}

func TestExtract_ReturnsArtifacts(t *testing.T) {
	var c *Client
	c = newTestClient(t, func(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
		require.NoError(t, os.WriteFile(filepath.Join(c.cfg.WorkDir, "abc.mp3"), []byte("audio"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(c.cfg.WorkDir, "abc.jpg"), []byte("img"), 0o644))
		assert.Contains(t, args, "--extract-audio")
		assert.Contains(t, args, filepath.Join(c.cfg.WorkDir, "abc.%(ext)s"))
		return nil, nil, nil
	})

	artifact, err := c.Extract(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.cfg.WorkDir, "abc.mp3"), artifact.AudioPath)
	assert.Equal(t, filepath.Join(c.cfg.WorkDir, "abc.jpg"), artifact.ThumbnailPath)
}

func TestExtract_MissingAudioIsUnknown(t *testing.T) {
	c := newTestClient(t, stdoutOnly(""))

	_, err := c.Extract(context.Background(), "abc")
	assert.Equal(t, domain.AcquisitionUnknown, domain.AcquisitionKindOf(err))
	assert.ErrorContains(t, err, "audio file missing")
}

func TestDiscard_RemovesPartialFiles(t *testing.T) {
	c := newTestClient(t, stdoutOnly(""))
	for _, name := range []string{"abc.webm.part", "abc.jpg", "other.mp3"} {
		require.NoError(t, os.WriteFile(filepath.Join(c.cfg.WorkDir, name), nil, 0o644))
	}

	require.NoError(t, c.Discard("abc"))

	left, err := filepath.Glob(filepath.Join(c.cfg.WorkDir, "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(c.cfg.WorkDir, "other.mp3")}, left)
}

func TestLastErrorLine(t *testing.T) {
	assert.Equal(t, "ERROR: boom", lastErrorLine([]byte("ERROR: boom\nWARNING: later\n")))
	assert.Equal(t, "plain", lastErrorLine([]byte("first\nplain\n\n")))
	assert.Equal(t, "", lastErrorLine(nil))
}
