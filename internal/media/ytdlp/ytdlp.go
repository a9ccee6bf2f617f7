package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"audio_relay/internal/domain"
)

const watchURL = "https://www.youtube.com/watch?v="

var itemIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Config holds yt-dlp invocation settings.
type Config struct {
	Binary       string
	WorkDir      string
	Timeout      time.Duration
	AudioFormat  string
	AudioQuality string
	ExtraArgs    []string
}

type runFunc func(ctx context.Context, binary string, args ...string) (stdout, stderr []byte, err error)

// Client drives the yt-dlp process for probe and extract calls.
type Client struct {
	cfg    Config
	run    runFunc
	logger *slog.Logger
}

// New creates a client. The work directory is created on first extract.
func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	return &Client{
		cfg:    cfg,
		run:    runCommand,
		logger: logger.With("component", "ytdlp"),
	}
}

type probeOutput struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Duration    float64 `json:"duration"`
	IsLive      bool    `json:"is_live"`
	LiveStatus  string  `json:"live_status"`
	MediaType   string  `json:"media_type"`
	WebpageURL  string  `json:"webpage_url"`
	OriginalURL string  `json:"original_url"`
}

// Probe reads metadata for itemID without downloading it.
func (c *Client) Probe(ctx context.Context, itemID string) (*domain.MediaInfo, error) {
	if !itemIDPattern.MatchString(itemID) {
		return nil, &domain.AcquisitionError{Kind: domain.AcquisitionNotFound, ItemID: itemID, Err: errors.New("invalid item id")}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	args := []string{"--dump-single-json", "--skip-download", "--no-playlist", "--no-warnings"}
	args = append(args, c.cfg.ExtraArgs...)
	args = append(args, watchURL+itemID)

	stdout, stderr, err := c.run(ctx, c.cfg.Binary, args...)
	if err != nil {
		return nil, classify(ctx, itemID, err, stderr)
	}

	var out probeOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, &domain.AcquisitionError{Kind: domain.AcquisitionUnknown, ItemID: itemID, Err: fmt.Errorf("parse probe output: %w", err)}
	}
	if out.LiveStatus == "is_upcoming" {
		return nil, &domain.AcquisitionError{Kind: domain.AcquisitionLiveInProgress, ItemID: itemID, Err: errors.New("live event has not started")}
	}

	return &domain.MediaInfo{
		Duration:    int(math.Round(out.Duration)),
		Title:       out.Title,
		IsLive:      out.IsLive || out.LiveStatus == "is_live",
		IsShortForm: out.MediaType == "short" || isShortsURL(out.WebpageURL) || isShortsURL(out.OriginalURL),
	}, nil
}

// Extract downloads the audio track of itemID into the work directory.
func (c *Client) Extract(ctx context.Context, itemID string) (*domain.Artifact, error) {
	if !itemIDPattern.MatchString(itemID) {
		return nil, &domain.AcquisitionError{Kind: domain.AcquisitionNotFound, ItemID: itemID, Err: errors.New("invalid item id")}
	}
	if err := os.MkdirAll(c.cfg.WorkDir, 0o755); err != nil {
		return nil, &domain.AcquisitionError{Kind: domain.AcquisitionUnknown, ItemID: itemID, Err: fmt.Errorf("create work dir: %w", err)}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	args := []string{
		"--extract-audio",
		"--no-progress",
		"--no-playlist",
		"--format", "worstaudio/worst",
		"--audio-format", c.cfg.AudioFormat,
		"--restrict-filenames",
		"--write-thumbnail",
		"--convert-thumbnails", "jpg",
		"--embed-thumbnail",
		"--output", filepath.Join(c.cfg.WorkDir, itemID+".%(ext)s"),
	}
	if c.cfg.AudioQuality != "" {
		args = append(args, "--audio-quality", c.cfg.AudioQuality)
	}
	args = append(args, c.cfg.ExtraArgs...)
	args = append(args, watchURL+itemID)

	started := time.Now()
	_, stderr, err := c.run(ctx, c.cfg.Binary, args...)
	if err != nil {
		return nil, classify(ctx, itemID, err, stderr)
	}

	audio := filepath.Join(c.cfg.WorkDir, itemID+"."+c.cfg.AudioFormat)
	if _, err := os.Stat(audio); err != nil {
		return nil, &domain.AcquisitionError{Kind: domain.AcquisitionUnknown, ItemID: itemID, Err: fmt.Errorf("audio file missing: %w", err)}
	}

	artifact := &domain.Artifact{AudioPath: audio}
	thumb := filepath.Join(c.cfg.WorkDir, itemID+".jpg")
	if _, err := os.Stat(thumb); err == nil {
		artifact.ThumbnailPath = thumb
	}

	c.logger.Debug("extracted audio", "item_id", itemID, "path", audio, "took", time.Since(started))
	return artifact, nil
}

// Discard removes every file the extractor may have left for itemID.
func (c *Client) Discard(itemID string) error {
	if !itemIDPattern.MatchString(itemID) {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(c.cfg.WorkDir, itemID+".*"))
	if err != nil {
		return err
	}

	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func isShortsURL(u string) bool {
	return strings.Contains(u, "/shorts/")
}

func runCommand(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
