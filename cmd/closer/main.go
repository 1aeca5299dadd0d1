package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MikeSquared-Agency/closer/internal/anthropic"
	"github.com/MikeSquared-Agency/closer/internal/api"
	"github.com/MikeSquared-Agency/closer/internal/config"
	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/hermes"
	"github.com/MikeSquared-Agency/closer/internal/metrics"
	"github.com/MikeSquared-Agency/closer/internal/processor"
	"github.com/MikeSquared-Agency/closer/internal/session"
	"github.com/MikeSquared-Agency/closer/internal/slack"
	"github.com/MikeSquared-Agency/closer/internal/store"
	"github.com/MikeSquared-Agency/closer/internal/suggestion"
	"github.com/MikeSquared-Agency/closer/internal/telemetry"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	logger := slog.Default()

	logger.Info("closer starting", "port", cfg.Port, "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing {
		shutdown, err := telemetry.InitTracer("closer", logger)
		if err != nil {
			logger.Error("failed to start tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}
	metrics.Init(logger)

	// Persistence: Postgres when configured, otherwise embedded SQLite.
	recorder, feedback, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	gen := newGenerator(cfg, logger)
	if gen == nil {
		logger.Warn("no generation backend configured, every suggestion will be a fallback")
	}
	pipeline := suggestion.NewPipeline(gen, cfg.GenerationTimeout, logger)

	hub := api.NewHub(cfg.WebSocketOrigins, logger)
	notifiers := session.Notifiers{hub}

	// NATS is optional; without it sessions are driven over HTTP and WebSocket.
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
	if err != nil {
		logger.Warn("NATS unavailable, running without event bus", "error", err)
	}
	var publisher *hermes.Publisher
	if hermesClient != nil {
		defer hermesClient.Close()
		logger.Info("NATS connected", "url", cfg.NatsURL)
		publisher = hermes.NewPublisher(hermesClient, logger)
		notifiers = append(notifiers, publisher)
	}

	// Slack debriefs are optional.
	var poster *slack.Poster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		poster = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		notifiers = append(notifiers, poster)
		logger.Info("slack debriefs enabled", "channel", cfg.SlackChannel)
	}

	registry := session.NewRegistry(session.Deps{
		Pipeline: pipeline,
		Notifier: notifiers,
		Recorder: recorder,
		Logger:   logger,
	})
	proc := processor.New(registry, logger)

	if hermesClient != nil {
		if err := hermesClient.Subscribe(cfg.TranscriptSubject, proc.HandleTranscript); err != nil {
			logger.Error("failed to subscribe to transcript events", "error", err)
			os.Exit(1)
		}
		if err := publisher.Register(version, cfg.TranscriptSubject); err != nil {
			logger.Warn("failed to publish registration", "error", err)
		}
	}

	srv := api.NewServer(api.Options{
		Port:      cfg.Port,
		APIToken:  cfg.APIToken,
		Sessions:  registry,
		Processor: proc,
		Feedback:  feedback,
		Hub:       hub,
		Logger:    logger,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	logger.Info("closer ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	logger.Info("shutting down", "active_sessions", registry.Len())

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", "error", err)
	}
	registry.Close(shutdownCtx)
	if poster != nil {
		poster.Wait()
	}
	cancel()
	logger.Info("closer stopped")
}

type storeCloser func()

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (session.Recorder, api.FeedbackStore, storeCloser) {
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected", "backend", "postgres")
		return db, db, db.Close
	}

	db, err := store.NewSQLite(cfg.SQLitePath)
	if err != nil {
		logger.Error("failed to open sqlite store", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	logger.Info("database connected", "backend", "sqlite", "path", cfg.SQLitePath)
	return db, db, db.Close
}

func newGenerator(cfg config.Config, logger *slog.Logger) generation.Generator {
	switch cfg.Provider {
	case "openai":
		gen, err := generation.NewOpenAI(generation.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.GenerationTimeout,
			Temperature: cfg.Temperature,
		}, logger)
		if err != nil {
			logger.Warn("openai generator unavailable", "error", err)
			return nil
		}
		logger.Info("generation backend ready", "provider", gen.Name(), "model", cfg.OpenAIModel)
		return gen
	default:
		if cfg.AnthropicAPIKey == "" {
			return nil
		}
		llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, anthropic.WithTemperature(cfg.Temperature))
		logger.Info("generation backend ready", "provider", "anthropic", "model", cfg.AnthropicModel)
		return generation.NewAnthropic(llm, cfg.MaxTokens, logger)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
