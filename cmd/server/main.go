// Command server runs the generation backend: an HTTP admission gateway in
// front of an asynchronous two-stage generation workflow.
//
// Startup order:
//  1. Environment (.env in dev) and configuration
//  2. Logging (zerolog, global level and format)
//  3. SQLite via GORM (migrations, tracing plugin)
//  4. OpenTelemetry (optional, OTLP/gRPC)
//  5. Quota store (SQLite table or Redis)
//  6. Collaborators: validator, limiter, LLM client, notifier, orchestrator
//  7. Gin engine, routes, http.Server
//
// Shutdown drains in-flight HTTP requests first, then waits up to
// SHUTDOWN_GRACE for background workflow runs to finish.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"github.com/topicforge/go-generation-backend/internal/config"
	httpapi "github.com/topicforge/go-generation-backend/internal/http"
	"github.com/topicforge/go-generation-backend/internal/llm"
	"github.com/topicforge/go-generation-backend/internal/notify"
	"github.com/topicforge/go-generation-backend/internal/observability"
	"github.com/topicforge/go-generation-backend/internal/ratelimit"
	"github.com/topicforge/go-generation-backend/internal/repo"
	"github.com/topicforge/go-generation-backend/internal/validation"
	"github.com/topicforge/go-generation-backend/internal/workflow"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("failed to enable database tracing")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Quota counters: the SQLite table by default, Redis when configured. The
	// Redis store additionally offers the atomic increment-and-compare path.
	var store ratelimit.CounterStore
	var closeStore func() error
	switch cfg.Quota.Backend {
	case "redis":
		rs, err := ratelimit.NewRedisCounterStore(cfg.Quota.RedisAddr, cfg.Quota.RedisPassword, cfg.Quota.RedisPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis quota store")
		}
		store = rs
		closeStore = rs.Close
	default:
		store = &repo.CounterStore{DB: db}
	}

	limiter := &ratelimit.Limiter{
		Store:          store,
		PerCallerLimit: cfg.Quota.PerCallerLimit,
		DailyLimit:     cfg.Quota.DailyLimit,
		Logger:         log.With().Str("component", "ratelimit").Logger(),
	}

	validator := validation.New(language.English)

	llmClient := llm.NewOpenAICompatClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)

	notifier := notify.NewNotifier(
		cfg.Notify.Endpoint,
		cfg.Notify.MaxAttempts,
		cfg.Notify.RetryDelay,
		cfg.Notify.AttemptTimeout,
		log.With().Str("component", "notify").Logger(),
	)

	orchestrator := &workflow.Orchestrator{
		DB:       db,
		LLM:      llmClient,
		Notifier: notifier,
		Recorder: &observability.PromRecorder{Logger: log.With().Str("component", "workflow").Logger()},
		Logger:   log.With().Str("component", "workflow").Logger(),
	}

	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		Validator: validator,
		Limiter:   limiter,
		Workflow:  orchestrator,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// Stop accepting requests, then let background runs finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	if drained := orchestrator.Drain(cfg.ShutdownGrace); !drained {
		log.Warn().Dur("grace", cfg.ShutdownGrace).Msg("background runs still in flight at shutdown deadline")
	}

	if closeStore != nil {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("failed to close quota store")
		}
	}
	if err := shutdownOTel(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to shut down tracing")
	}
	log.Info().Msg("server stopped")
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
