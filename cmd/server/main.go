package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/backend"
	"github.com/stemsi/ielts-listening/internal/cache"
	"github.com/stemsi/ielts-listening/internal/config"
	"github.com/stemsi/ielts-listening/internal/database"
	"github.com/stemsi/ielts-listening/internal/handler"
	"github.com/stemsi/ielts-listening/internal/logger"
	"github.com/stemsi/ielts-listening/internal/repository"
	"github.com/stemsi/ielts-listening/internal/router"
	"github.com/stemsi/ielts-listening/internal/service"
	"github.com/stemsi/ielts-listening/internal/validator"
	"github.com/stemsi/ielts-listening/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("cache_driver", cfg.CacheDriver).
		Msg("Starting IELTS Listening service")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Migrate and Connect to PostgreSQL ─────────────────────────────
	if cfg.AutoMigrate {
		if err := database.MigrateUp(cfg.DatabaseURL, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Open Answer Cache ─────────────────────────────────────────────
	answerCache, cacheCloser, err := cache.Open(ctx, cfg, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open answer cache")
	}
	defer cacheCloser.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	backendClient := backend.New(cfg.BackendURL, cfg.BackendTimeout, log)
	journal := worker.NewJournalQueue(rdb)
	listeningService := service.NewListeningService(
		backendClient,
		answerCache,
		journal,
		attemptRepo,
		service.ListeningOptions{GracePeriod: cfg.GracePeriod, TickInterval: time.Second},
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Listening: handler.NewListeningHandler(listeningService, log),
		WS:        handler.NewWSHandler(listeningService, log, cfg.AllowedOrigins),
		System:    handler.NewSystemHandler(rdb, pool, listeningService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	journalWorker := worker.NewJournalWorker(attemptRepo, rdb, log)
	go func() {
		defer close(workerDone)
		journalWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop attempt timers. Answers are already mirrored to the cache.
	listeningService.Shutdown()

	// 3. Stop the journal worker; it flushes its pending batch on exit.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Journal worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
