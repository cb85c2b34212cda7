package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/database"
	"github.com/stemsi/exstem-prep/internal/engine"
	"github.com/stemsi/exstem-prep/internal/generator"
	"github.com/stemsi/exstem-prep/internal/handler"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/metrics"
	"github.com/stemsi/exstem-prep/internal/middleware"
	"github.com/stemsi/exstem-prep/internal/repository"
	"github.com/stemsi/exstem-prep/internal/router"
	"github.com/stemsi/exstem-prep/internal/service"
	"github.com/stemsi/exstem-prep/internal/validator"
	"github.com/stemsi/exstem-prep/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("window_policy", cfg.WindowPolicy).
		Msg("Starting ExStem Prep")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
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

	m := metrics.New()

	// ─── Repositories ──────────────────────────────────────────────────
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	bookmarkRepo := repository.NewBookmarkRepository(pool)

	// ─── Question Sources ──────────────────────────────────────────────
	var gen engine.Generator = generator.Unavailable{}
	if cfg.GeminiAPIKey != "" {
		gemini, err := generator.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GenerationTimeout, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize question generator")
		}
		gen = gemini
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, sessions are served from the static pool only")
	}

	questionService := service.NewQuestionService(questionRepo, rdb, cfg.StaticCacheTTL, log)
	source := engine.NewQuestionSource(
		m.Generator(gen),
		m.StaticStore(questionService),
		engine.SourceConfig{BatchSize: cfg.GenerationBatchSize, Concurrency: cfg.GenerationConcurrency},
		log,
	)

	policy, err := engine.PolicyByName(cfg.WindowPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid window policy")
	}

	// ─── Services ──────────────────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	sessionService := service.NewSessionService(source, rdb, service.SessionOptions{
		Policy:               policy,
		Budget:               engine.TimeBudget{Full: cfg.FullTestDuration, SecondsPerQuestion: cfg.SecondsPerQuestion},
		SubjectQuestionCount: cfg.SubjectQuestionCount,
		StaticBlend:          cfg.StaticBlendCount,
		StartWait:            cfg.StartWait,
	}, m, log)
	historyService := service.NewHistoryService(attemptRepo, bookmarkRepo)

	// ─── Handlers ──────────────────────────────────────────────────────
	handlers := &router.Handlers{
		Session:  handler.NewSessionHandler(sessionService, log),
		History:  handler.NewHistoryHandler(historyService),
		Question: handler.NewQuestionHandler(questionService, log),
		WS:       handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:   handler.NewSystemHandler(pool, rdb, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	attemptWorker := worker.NewAttemptWorker(attemptRepo, rdb, log)
	bookmarkWorker := worker.NewBookmarkWorker(bookmarkRepo, rdb, log)
	for _, run := range []func(context.Context){attemptWorker.Start, bookmarkWorker.Start, sessionService.Run} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workerCtx)
		}()
	}

	startLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimitPerMinute, time.Minute)
	r := router.SetupRouter(authService, handlers, m, startLimiter, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Abandon live sessions; unsubmitted attempts are not scored.
	sessionService.Shutdown()

	// 3. Stop workers once their in-flight batches are flushed.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
