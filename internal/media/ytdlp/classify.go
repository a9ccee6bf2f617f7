package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"audio_relay/internal/domain"
)

// Markers are matched case-insensitively against yt-dlp stderr, first list wins.
var (
	liveMarkers = []string{
		"this live event",
		"premieres in",
		"waiting for scheduled stream",
	}
	notFoundMarkers = []string{
		"video unavailable",
		"private video",
		"has been removed",
		"http error 404",
		"does not exist",
		"members-only",
		"join this channel to get access",
		"sign in to confirm your age",
		"is not a valid url",
	}
	transientMarkers = []string{
		"http error 429",
		"http error 500",
		"http error 502",
		"http error 503",
		"http error 504",
		"timed out",
		"connection reset",
		"temporary failure in name resolution",
		"unable to download webpage",
		"confirm you're not a bot",
		"confirm you’re not a bot",
		"read timed out",
		"incomplete read",
	}
)

func classify(ctx context.Context, itemID string, runErr error, stderr []byte) *domain.AcquisitionError {
	msg := lastErrorLine(stderr)
	err := runErr
	if msg != "" {
		err = fmt.Errorf("%w: %s", runErr, msg)
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
		return &domain.AcquisitionError{Kind: domain.AcquisitionTransient, ItemID: itemID, Err: fmt.Errorf("timed out: %w", err)}
	}

	return &domain.AcquisitionError{Kind: classifyMessage(string(stderr)), ItemID: itemID, Err: err}
}

func classifyMessage(stderr string) domain.AcquisitionKind {
	text := strings.ToLower(stderr)
	switch {
	case containsAny(text, liveMarkers):
		return domain.AcquisitionLiveInProgress
	case containsAny(text, notFoundMarkers):
		return domain.AcquisitionNotFound
	case containsAny(text, transientMarkers):
		return domain.AcquisitionTransient
	default:
		return domain.AcquisitionUnknown
	}
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// lastErrorLine returns the last "ERROR:" line, or the last non-empty line.
func lastErrorLine(stderr []byte) string {
	lines := strings.Split(strings.TrimSpace(string(stderr)), "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
		if last == "" {
			last = line
		}
	}
	return last
}
