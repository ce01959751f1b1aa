package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/crater-relay/internal/bot"
	"github.com/p-blackswan/crater-relay/internal/config"
	"github.com/p-blackswan/crater-relay/internal/crater"
	"github.com/p-blackswan/crater-relay/internal/health"
	"github.com/p-blackswan/crater-relay/internal/mapping"
	"github.com/p-blackswan/crater-relay/internal/metrics"
	"github.com/p-blackswan/crater-relay/internal/notify"
	"github.com/p-blackswan/crater-relay/internal/platform"
	"github.com/p-blackswan/crater-relay/internal/server"
	"github.com/p-blackswan/crater-relay/internal/webhook"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		log.Logger = logger
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("addr", cfg.ListenAddr()).
		Str("crater", cfg.Crater.APIURL).
		Str("platform", cfg.Bot.Platform).
		Str("trigger_prefix", cfg.Bot.TriggerPrefix).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting crater relay")

	m := metrics.New()
	checker := health.NewChecker(logger)

	// Mapping store
	var store mapping.Store
	if cfg.MappingDBPath != "" {
		sqliteStore, err := mapping.NewSQLiteStore(cfg.MappingDBPath, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.MappingDBPath).Msg("failed to open mapping store")
		}
		store = sqliteStore
		logger.Info().Str("path", cfg.MappingDBPath).Msg("using sqlite mapping store")
	} else {
		store = mapping.NewMemoryStore()
		logger.Info().Msg("using in-memory mapping store")
	}
	defer store.Close()
	checker.RegisterPinger("mapping_store", store, false)

	// Crater
	craterClient := crater.NewClient(cfg.Crater.APIURL, cfg.Crater.APIToken, cfg.Crater.Timeout, logger)
	checker.RegisterPinger("crater", craterClient, true)

	// Platform selected by BOT_PLATFORM. Gitee fails here with ErrNotImplemented.
	platformName, _, _ := cfg.Platform()
	hosting, err := platform.New(platformName, platform.Settings{
		GitCode: platform.GitCodeConfig{
			APIURL:        cfg.GitCode.APIURL,
			AccessToken:   cfg.GitCode.AccessToken,
			WebhookSecret: cfg.GitCode.WebhookSecret,
			Timeout:       cfg.GitCode.Timeout,
		},
		GitHub: platform.GitHubConfig{
			APIURL:        cfg.GitHub.APIURL,
			AccessToken:   cfg.GitHub.AccessToken,
			WebhookSecret: cfg.GitHub.WebhookSecret,
		},
		GitHubTimeout: cfg.GitHub.Timeout,
	}, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("platform", platformName).Msg("failed to init platform back-end")
	}
	logger.Info().
		Str("platform", hosting.Name()).
		Str("webhook_header", hosting.WebhookHeader()).
		Msg("platform back-end initialized")

	// Optional Slack mirror
	var notifier notify.Notifier
	if cfg.SlackEnabled() {
		notifier = notify.NewSlack(cfg.Slack.BotToken, cfg.Slack.Channel, cfg.Slack.IssueBaseURL, logger)
		logger.Info().Str("channel", cfg.Slack.Channel).Msg("slack callback mirror enabled")
	} else {
		logger.Info().Msg("Slack not configured, callbacks are posted to issues only")
	}

	processor := bot.NewProcessor(craterClient, bot.Config{
		Name:               cfg.Bot.Name,
		TriggerPrefix:      cfg.Bot.TriggerPrefix,
		DefaultMode:        cfg.Bot.DefaultMode,
		DefaultCrateSelect: cfg.Bot.DefaultCrateSelect,
		Priority:           cfg.Bot.Priority,
		CallbackBaseURL:    cfg.CallbackBaseURL,
	}, m, logger)

	receiver := webhook.NewReceiver(hosting, processor, cfg.Bot.TriggerPrefix, m, logger)
	callbacks := webhook.NewCallbackHandler(hosting, notifier, m, logger)

	srv := server.New(server.Config{
		ListenAddr:         cfg.ListenAddr(),
		CallbackSecret:     cfg.CallbackSecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		WebhookPlatform:    hosting.Name(),
		WebhookHeader:      hosting.WebhookHeader(),
	}, receiver, callbacks, checker, m, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info().Str("callback_url", processor.CallbackURL()).Msg("crater relay ready")

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("crater relay stopped")
}
