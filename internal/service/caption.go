package service

import (
	"html"
	"strings"

	"audio_relay/internal/domain"
)

// DefaultDuration is reported to the publisher when the probe could not tell.
const DefaultDuration = 86400

type CaptionConfig struct {
	Channel      string
	VideoLabel   string
	ChannelLabel string
}

var (
	markdownStripper = strings.NewReplacer("*", "", "_", "", "`", "", "[", "", "]", "")
	markdownEscaper  = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)
)

// Sanitize decodes HTML entities and strips Markdown control characters.
func Sanitize(text string) string {
	return strings.TrimSpace(markdownStripper.Replace(html.UnescapeString(strings.TrimSpace(text))))
}

// EscapeMarkdown keeps text outside any entity literal, e.g. a channel handle with underscores.
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// BuildCaption composes the Markdown caption posted under an audio file.
func BuildCaption(cfg CaptionConfig, feed *domain.Feed, item domain.FeedItem, title, tag string) string {
	parts := []string{
		"*" + Sanitize(title) + "*",
		"[" + Sanitize(cfg.VideoLabel) + "](https://youtu.be/" + item.ItemID + ")",
	}

	author := Sanitize(feed.AuthorName)
	if authorURL := strings.TrimSpace(feed.AuthorURL); authorURL != "" {
		parts = append(parts, "["+strings.TrimSpace(Sanitize(cfg.ChannelLabel)+" "+author)+"]("+authorURL+")")
	}

	var footer []string
	if tag = strings.ReplaceAll(Sanitize(tag), " ", ""); tag != "" {
		footer = append(footer, "#"+tag)
	}
	if cfg.Channel != "" {
		footer = append(footer, EscapeMarkdown(cfg.Channel))
	}
	if len(footer) > 0 {
		parts = append(parts, strings.Join(footer, "\n"))
	}

	return strings.Join(parts, "\n\n")
}
