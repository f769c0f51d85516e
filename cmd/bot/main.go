// Package main provides the entry point for the paper bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/scholarpost/paperbot/internal/bot"
	"github.com/scholarpost/paperbot/internal/config"
	"github.com/scholarpost/paperbot/internal/database"
	"github.com/scholarpost/paperbot/internal/observability"
	"github.com/scholarpost/paperbot/internal/ratelimit"
	"github.com/scholarpost/paperbot/internal/repository"
	"github.com/scholarpost/paperbot/internal/search"
	httpserver "github.com/scholarpost/paperbot/internal/server/http"
	"github.com/scholarpost/paperbot/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "bot").Logger()
	logger.Info().Msg("paperbot starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Create repositories.
	sessionRepo := repository.NewPgSessionRepository(db)
	usageRepo := repository.NewPgUsageRepository(db)

	// Create the arXiv search client.
	searcher := search.New(search.Config{
		BaseURL:    cfg.ArXiv.BaseURL,
		Timeout:    cfg.ArXiv.Timeout,
		RateLimit:  cfg.ArXiv.RateLimit,
		BurstSize:  cfg.ArXiv.Burst,
		MaxRetries: cfg.ArXiv.MaxRetries,
		RetryDelay: cfg.ArXiv.RetryDelay,
	})

	// Create the per-user admission limiter.
	limiter := ratelimit.New(cfg.Limits.RateLimitRequests, cfg.Limits.RateLimitWindow)

	// Create the Telegram API client and gateway.
	api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = cfg.Bot.Debug
	logger.Info().Str("username", api.Self.UserName).Msg("telegram bot authorized")

	gateway := telegram.NewGateway(api, logger)

	// Create metrics and the orchestrator.
	metrics := observability.NewMetrics("paperbot")
	orch := bot.NewOrchestrator(
		bot.Config{
			ResultsPerPage:       cfg.Limits.ResultsPerPage,
			LoadMoreTimeout:      cfg.Limits.LoadMoreTimeout,
			DailyQuotaBytes:      cfg.Limits.DailyTrafficQuotaMB << 20,
			MaxSingleFileBytes:   cfg.Limits.MaxSingleFileMB << 20,
			PlatformCeilingBytes: cfg.Limits.PlatformTransferCeilingMB << 20,
		},
		sessionRepo,
		usageRepo,
		searcher,
		limiter,
		gateway,
		metrics,
		logger,
	)
	defer orch.Stop()

	poller := telegram.NewPoller(api, orch, cfg.Bot.PollTimeout, logger)

	// Create the operational HTTP server for health probes and metrics.
	httpSrv := httpserver.NewServer(httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
	}, db, usageRepo, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		logger.Info().Int("poll_timeout", cfg.Bot.PollTimeout).Msg("update poller starting")
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("poller error: %w", err)
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// The poller stops itself when ctx is cancelled.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("paperbot stopped")
	return nil
}
