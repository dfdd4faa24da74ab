package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/ai"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/database"
	"github.com/rurallearn/rurallearn-backend/internal/handler"
	"github.com/rurallearn/rurallearn-backend/internal/logger"
	"github.com/rurallearn/rurallearn-backend/internal/middleware"
	"github.com/rurallearn/rurallearn-backend/internal/observability"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
	"github.com/rurallearn/rurallearn-backend/internal/router"
	"github.com/rurallearn/rurallearn-backend/internal/service"
	"github.com/rurallearn/rurallearn-backend/internal/validator"
	"github.com/rurallearn/rurallearn-backend/internal/worker"
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
		Str("env", cfg.Environment).
		Msg("Starting RuralLearn Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Tracing ───────────────────────────────────────────────────────
	shutdownTracing := observability.InitTracing(ctx, cfg, log)

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

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	sessionRepo := repository.NewTestSessionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	draftRepo := repository.NewDraftRepository(rdb)
	analysisQueue := repository.NewAnalysisQueue(rdb)
	proctorFeed := repository.NewProctorFeed(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	now := time.Now
	bank := service.NewQuestionBank(testRepo, rdb, cfg.AnswerKeyCacheTTL, log)
	authService := service.NewAuthService(cfg, userRepo, now, log)
	testService := service.NewTestService(testRepo, bank, log)
	sessionService := service.NewTestSessionService(sessionRepo, attemptRepo, bank, draftRepo, analysisQueue, proctorFeed, now, log)
	attemptService := service.NewAttemptService(attemptRepo, bank, analysisQueue, log)

	var analyzer service.Analyzer
	if cfg.AIAPIKey != "" {
		analyzer = ai.NewClient(cfg, ai.NewCache(cfg.AICacheSize, cfg.AICacheTTL), log)
		log.Info().Str("model", cfg.AIModel).Msg("AI analysis enabled")
	} else {
		log.Info().Msg("AI_API_KEY not set, using rule-based analysis")
	}
	analysisService := service.NewAnalysisService(attemptRepo, bank, analyzer, now, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, log),
		Test:          handler.NewTestHandler(testService, sessionService, log),
		StudentPortal: handler.NewStudentPortalHandler(testService, sessionService, attemptService, log),
		Monitor:       handler.NewMonitorHandler(proctorFeed, sessionService, log),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(map[string]handler.Pinger{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, analysisQueue.Len, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	analysisWorker := worker.NewAnalysisWorker(rdb, analysisService, 2, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		analysisWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	limiter := middleware.NewRateLimiter(rdb, cfg.AuthRateLimit, cfg.AuthRateWindow, log)
	r := router.SetupRouter(authService, handlers, limiter, cfg, log)

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

	// 2. Stop background workers and let in-flight jobs finish.
	workerCancel()
	workers.Wait()

	// 3. Flush pending spans.
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Tracer shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
