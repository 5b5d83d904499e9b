package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/leve-labs/trailmatch/internal/catalog"
	"github.com/leve-labs/trailmatch/internal/config"
	"github.com/leve-labs/trailmatch/internal/db"
	dbRedis "github.com/leve-labs/trailmatch/internal/db/redis"
	"github.com/leve-labs/trailmatch/internal/domain"
	logpkg "github.com/leve-labs/trailmatch/internal/logger"
	"github.com/leve-labs/trailmatch/internal/metrics"
	"github.com/leve-labs/trailmatch/internal/pipeline"
	"github.com/leve-labs/trailmatch/internal/repository/embcache"
	"github.com/leve-labs/trailmatch/internal/transport/httpapi"
	openaiEmb "github.com/leve-labs/trailmatch/internal/transport/openai"
	"github.com/leve-labs/trailmatch/internal/vectorindex"
	"github.com/leve-labs/trailmatch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting trailmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_backend", cfg.Index.Backend),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	// Redis backs both the vector index (when selected) and the
	// embedding cache; the memory backend runs without it.
	var store db.Store
	if cfg.Index.Backend == "redis" {
		redisStore, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Index.Redis.Addrs,
			Password: cfg.Index.Redis.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer redisStore.Close()

		if err := redisStore.WaitForReady(context.Background(), 30*time.Second); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis")
		store = redisStore
	}

	docEmbedder := buildEmbedder(cfg, cfg.Embedding.DocumentInstruction, store, logger)
	queryEmbedder := buildEmbedder(cfg, cfg.Embedding.QueryInstruction, store, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	indexFactory := buildIndexFactory(cfg, store)

	catalogClient, err := catalog.NewClient(catalog.ClientOptions{
		BaseURL:         cfg.Catalog.BaseURL,
		ConnectTimeout:  time.Duration(cfg.Catalog.ConnectTimeoutSec) * time.Second,
		RequestTimeout:  time.Duration(cfg.Catalog.RequestTimeoutSec) * time.Second,
		Retries:         cfg.Catalog.Retries,
		BackoffBase:     time.Duration(cfg.Catalog.BackoffBaseMS) * time.Millisecond,
		MaxPages:        cfg.Catalog.MaxPages,
		FilterPublished: cfg.Catalog.FilterPublished,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Failed to create catalog client", zap.Error(err))
	}

	pipe := pipeline.New(cfg, catalogClient, docEmbedder, queryEmbedder, indexFactory)

	server := httpapi.NewServer(pipe, newEmbeddingHealthChecker(queryEmbedder), logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(httpapi.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction.
func buildEmbedder(cfg config.Config, instruction string, store db.Store, logger *zap.Logger) domain.Embedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(
			base, store, cfg.Embedding.Model,
			time.Duration(cfg.Embedding.CacheTTLSec)*time.Second,
			metrics.EmbeddingCacheTotal, logger,
		)
	}

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

// buildIndexFactory returns the per-run vector index constructor for
// the configured backend.
func buildIndexFactory(cfg config.Config, store db.Store) pipeline.IndexFactory {
	if cfg.Index.Backend == "redis" {
		return func(ctx context.Context) (vectorindex.Index, error) {
			return vectorindex.NewRedis(ctx, store, vectorindex.RedisOptions{
				IndexName: cfg.Index.Name,
				KeyPrefix: cfg.Index.Redis.KeyPrefix + cfg.Index.Name + ":",
				Dim:       cfg.Embedding.Dimensions,
				Algo:      db.VectorHNSW,
			})
		}
	}
	return func(context.Context) (vectorindex.Index, error) {
		return vectorindex.NewMemory(cfg.Embedding.Dimensions), nil
	}
}

// embeddingHealthChecker wraps domain.Embedder to implement httpapi.HealthChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
