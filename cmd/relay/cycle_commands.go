package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"audio_relay/internal/media/ytdlp"
	"audio_relay/internal/publisher"
	"audio_relay/internal/publisher/telegram"
	"audio_relay/internal/scheduler"
	"audio_relay/internal/service"
	"audio_relay/internal/source/youtube"
	"audio_relay/internal/storage/postgres"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single cycle over every source and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), ctx)
		},
	}
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run cycles on the configured interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			unlock, err := lockHost(cfg.LockFile)
			if err != nil {
				return err
			}
			defer unlock()

			cycle, cleanup, err := buildCycle(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			runCtx, cancel := withShutdownSignal(cmd.Context(), ctx)
			defer cancel()

			sched := scheduler.NewScheduler(cycle, cfg.Sync.Interval, ctx.logger)
			if err := sched.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		},
	}
}

func runOnce(parent context.Context, ctx *commandContext) error {
	defer ctx.close()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	unlock, err := lockHost(cfg.LockFile)
	if err != nil {
		return err
	}
	defer unlock()

	cycle, cleanup, err := buildCycle(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	runCtx, cancel := withShutdownSignal(parent, ctx)
	defer cancel()

	_, err = cycle.Run(runCtx)
	return err
}

// lockHost keeps two cycle invocations on one machine from overlapping.
func lockHost(path string) (func(), error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another relay cycle is already running (lock %s)", path)
	}
	return func() { _ = lock.Unlock() }, nil
}

func withShutdownSignal(parent context.Context, ctx *commandContext) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(parent)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			ctx.logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-runCtx.Done():
		}
	}()
	return runCtx, cancel
}

// buildCycle wires every adapter from config. The returned cleanup releases the notifier.
func buildCycle(ctx *commandContext) (*service.Cycle, func(), error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := ctx.database()
	if err != nil {
		return nil, nil, err
	}
	logger := ctx.logger

	store := postgres.NewSourceStore(db)

	feeds := youtube.New(youtube.Config{
		Timeout:        cfg.Feed.Timeout,
		MaxAttempts:    cfg.Feed.Retry.MaxAttempts,
		InitialBackoff: cfg.Feed.Retry.InitialBackoff,
		MaxBackoff:     cfg.Feed.Retry.MaxBackoff,
	}, logger)

	media := ytdlp.New(ytdlp.Config{
		Binary:       cfg.Media.Binary,
		WorkDir:      cfg.Media.WorkDir,
		Timeout:      cfg.Media.Timeout,
		AudioFormat:  cfg.Media.AudioFormat,
		AudioQuality: cfg.Media.AudioQuality,
		ExtraArgs:    cfg.Media.ExtraArgs,
	}, logger)

	tg, err := telegram.New(telegram.Config{
		APIURL:      cfg.Telegram.APIURL,
		Token:       cfg.Telegram.Token,
		Channel:     cfg.Telegram.Channel,
		MaxFileSize: cfg.Telegram.MaxFileSize,
		Timeout:     cfg.Telegram.Timeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var notifier service.Notifier
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		notifier = rabbitMQ
		cleanup = func() {
			if err := rabbitMQ.Close(); err != nil {
				logger.Warn("close rabbitmq", "error", err)
			}
		}
	}

	processor := service.NewProcessor(
		store,
		feeds,
		media,
		tg,
		notifier,
		service.CaptionConfig{
			Channel:      tg.Channel(),
			VideoLabel:   cfg.Caption.VideoLabel,
			ChannelLabel: cfg.Caption.ChannelLabel,
		},
		logger,
	)

	reclaimer := service.NewReclaimer(store, cfg.Sync.StaleAfter, logger)

	logger.Info("relay configured",
		"channel", cfg.Telegram.Channel,
		"max_concurrency", cfg.Sync.MaxConcurrency,
		"stale_after", cfg.Sync.StaleAfter,
		"notifier", cfg.RabbitMQ.Enabled,
	)

	return service.NewCycle(store, reclaimer, processor, cfg.Sync.MaxConcurrency, logger), cleanup, nil
}
