// Coworker - templated AI agent backend
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/coworker-ai/coworker/internal/analytics"
	"github.com/coworker-ai/coworker/internal/api"
	"github.com/coworker-ai/coworker/internal/auth"
	"github.com/coworker-ai/coworker/internal/chat"
	"github.com/coworker-ai/coworker/internal/config"
	"github.com/coworker-ai/coworker/internal/generation"
	"github.com/coworker-ai/coworker/internal/metrics"
	"github.com/coworker-ai/coworker/internal/middleware"
	"github.com/coworker-ai/coworker/internal/store"
	"github.com/coworker-ai/coworker/web"
)

const sessionSweepInterval = 5 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "storage", cfg.StorageDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.New(cfg.StorageDriver, cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	sessions, err := openSessions(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()
	slog.Info("Session store ready", "driver", cfg.SessionStore, "ttl", cfg.SessionTTL)

	m := metrics.New()

	client, err := generation.NewClient(generation.ClientConfig{
		Provider:     cfg.Generation.Provider,
		Model:        cfg.Generation.Model,
		GoogleAPIKey: cfg.Generation.GoogleAPIKey,
		OpenAIAPIKey: cfg.Generation.OpenAIAPIKey,
	})
	if err != nil {
		slog.Error("Failed to initialize generation client", "error", err)
		os.Exit(1)
	}
	if !generation.IsConfigured(client) {
		slog.Warn("Generation API key missing, chat will answer with the fallback reply", "provider", client.Provider())
	}
	gen := generation.NewService(client, cfg.Generation.Timeout, m, logger)

	transcripts, err := chat.NewTranscriptLogger(chat.TranscriptConfig{
		Enabled:   cfg.TranscriptLog.Enabled,
		Dir:       cfg.TranscriptLog.Dir,
		QueueSize: cfg.TranscriptLog.QueueSize,
	}, logger, m)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	turns := chat.NewService(repo, gen, transcripts, m, logger)
	stats := analytics.NewService(repo)
	limiter := middleware.NewRateLimiter(ctx, cfg.ChatRateLimit, cfg.ChatRateWindow)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, sessions)
	healthHandler := api.NewHealthHandler(repo, sessions)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(m.Middleware)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", m.Handler())

	api.NewAuthHandler(baseHandler).RegisterRoutes(r)
	api.NewAgentHandler(baseHandler).RegisterRoutes(r)
	api.NewChatHandler(baseHandler, turns, limiter, m).RegisterRoutes(r)
	api.NewAnalyticsHandler(baseHandler, stats).RegisterRoutes(r)
	api.NewContactHandler(baseHandler).RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Generation.Timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.AnalyticsInterval > 0 {
		analytics.StartRollupWorker(ctx, repo, cfg.AnalyticsInterval)
	} else {
		slog.Info("Analytics rollup worker disabled")
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}

// openSessions builds the configured session store. The memory driver gets a
// janitor bound to ctx; the Redis driver is pinged before use.
func openSessions(ctx context.Context, cfg *config.Config) (auth.SessionStore, error) {
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		sessions, err := auth.NewStore(auth.StoreTypeRedis,
			auth.WithRedisClient(redis.NewClient(opts)),
			auth.WithTTL(cfg.SessionTTL),
		)
		if err != nil {
			return nil, err
		}
		if err := sessions.Ping(ctx); err != nil {
			_ = sessions.Close()
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return sessions, nil
	default:
		sessions, err := auth.NewStore(auth.StoreTypeMemory, auth.WithTTL(cfg.SessionTTL))
		if err != nil {
			return nil, err
		}
		if mem, ok := sessions.(*auth.MemoryStore); ok {
			mem.StartJanitor(ctx, sessionSweepInterval)
		}
		return sessions, nil
	}
}
