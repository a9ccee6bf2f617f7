package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"audio_relay/internal/domain"
)

// Config holds Bot API settings.
type Config struct {
	APIURL      string
	Token       string
	Channel     string
	MaxFileSize int64
	Timeout     time.Duration
}

// Publisher posts audio files to a channel through the Bot API sendAudio method.
type Publisher struct {
	bot         *tgbotapi.BotAPI
	token       string
	channel     string
	maxFileSize int64
	logger      *slog.Logger
}

// New connects to the Bot API and checks the token with getMe.
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	endpoint := tgbotapi.APIEndpoint
	if apiURL := strings.TrimRight(cfg.APIURL, "/"); apiURL != "" {
		endpoint = apiURL + "/bot%s/%s"
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", redact(err, cfg.Token))
	}

	logger = logger.With("component", "telegram")
	logger.Info("connected to telegram", "bot", bot.Self.UserName, "channel", cfg.Channel)

	return &Publisher{
		bot:         bot,
		token:       cfg.Token,
		channel:     cfg.Channel,
		maxFileSize: cfg.MaxFileSize,
		logger:      logger,
	}, nil
}

// Channel returns the destination handle, used as the caption signature.
func (p *Publisher) Channel() string {
	return p.channel
}

// Publish uploads d and returns the channel message id. Every failure is a *domain.PublishError.
func (p *Publisher) Publish(ctx context.Context, d domain.Delivery) (string, error) {
	info, err := os.Stat(d.AudioPath)
	if err != nil {
		return "", &domain.PublishError{Err: fmt.Errorf("stat audio: %w", err)}
	}
	if p.maxFileSize > 0 && info.Size() > p.maxFileSize {
		return "", &domain.PublishError{Err: fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrPayloadTooLarge, info.Size(), p.maxFileSize)}
	}
	if err := ctx.Err(); err != nil {
		return "", &domain.PublishError{Err: err}
	}

	msg, err := p.bot.Send(p.audioConfig(d))
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusRequestEntityTooLarge {
			return "", &domain.PublishError{Err: fmt.Errorf("%w: rejected by api", domain.ErrPayloadTooLarge)}
		}
		return "", &domain.PublishError{Err: fmt.Errorf("send audio: %w", redact(err, p.token))}
	}

	messageID := strconv.Itoa(msg.MessageID)
	p.logger.Debug("audio sent", "message_id", messageID, "bytes", info.Size())
	return messageID, nil
}

func (p *Publisher) audioConfig(d domain.Delivery) tgbotapi.AudioConfig {
	audio := tgbotapi.NewAudio(0, tgbotapi.FilePath(d.AudioPath))
	// Numeric ids address private channels; anything else is an @handle.
	if chatID, err := strconv.ParseInt(p.channel, 10, 64); err == nil {
		audio.ChatID = chatID
	} else {
		audio.ChannelUsername = p.channel
	}
	audio.Caption = d.Caption
	audio.ParseMode = tgbotapi.ModeMarkdown
	audio.Duration = d.Duration
	audio.Performer = d.Performer
	audio.Title = d.Title
	if d.ThumbnailPath != "" {
		audio.Thumb = tgbotapi.FilePath(d.ThumbnailPath)
	}
	return audio
}

// redact keeps the bot token out of logged transport errors.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}
