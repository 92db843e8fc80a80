package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"summarybot/internal/article"
	"summarybot/internal/bot"
	"summarybot/internal/config"
	"summarybot/internal/database"
	"summarybot/internal/feed"
	"summarybot/internal/scheduler"
	"summarybot/internal/summarizer"

	"github.com/spf13/cobra"
)

func botCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot with feed digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(opts.verbose)}))
			slog.SetDefault(log)

			return runBot(cmd.Context(), opts, log)
		},
	}
}

func runBot(ctx context.Context, opts *rootOptions, log *slog.Logger) error {
	start := time.Now()

	creds, err := config.LoadCredentials(config.Options{EnvFile: opts.envFile})
	if err != nil {
		return err
	}

	botConfig, err := config.LoadBotConfig()
	if err != nil {
		return err
	}

	db, err := database.New(ctx, botConfig.DBPath, log)
	if err != nil {
		return fmt.Errorf("initialize db (path = %s): %w", botConfig.DBPath, err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", botConfig.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", botConfig.DBPath)

	s, err := summarizer.NewAnthropicSummarizer(summarizer.AnthropicConfig{
		APIKey:  creds.APIKey,
		Model:   creds.Model,
		BaseURL: creds.BaseURL,
		Log:     log,
	})
	if err != nil {
		return fmt.Errorf("create summarizer: %w", err)
	}
	log.InfoContext(ctx, "Summarizer is initialized",
		"provider", "anthropic",
		"model", s.Model())

	extractor := article.NewExtractor(log)
	fetcher := feed.NewFetcher(db, s, extractor, log)

	botInst, err := bot.New(botConfig.Token, bot.Deps{
		Store:        db,
		Fetcher:      fetcher,
		Summarizer:   s,
		Extractor:    extractor,
		Model:        s.Model(),
		AllowedUsers: botConfig.AllowedUsers,
	}, log)
	if err != nil {
		return fmt.Errorf("initialize bot: %w", err)
	}
	defer botInst.Stop()
	log.InfoContext(ctx, "Bot is initialized",
		"allowedUsersCount", len(botConfig.AllowedUsers))

	sched := scheduler.New(ctx, botInst, fetcher, log)

	if err = sched.Start(); err != nil {
		return fmt.Errorf("start scheduler (spec = %s): %w", scheduler.HourlyDigestSpec, err)
	}
	defer sched.Stop()
	log.InfoContext(ctx, "Scheduler is started",
		"spec", scheduler.HourlyDigestSpec,
		"timezone", scheduler.Timezone)

	log.InfoContext(ctx, "Bot is started")
	botInst.Start(ctx)

	log.InfoContext(ctx, "Shutdown signal is received, exiting...",
		"uptimeSeconds", time.Since(start).Seconds())

	return nil
}
