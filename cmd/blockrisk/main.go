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
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blockrisk/internal/config"
	dbRedis "github.com/kailas-cloud/blockrisk/internal/db/redis"
	logpkg "github.com/kailas-cloud/blockrisk/internal/logger"
	"github.com/kailas-cloud/blockrisk/internal/metrics"
	artifactrepo "github.com/kailas-cloud/blockrisk/internal/repository/artifact"
	"github.com/kailas-cloud/blockrisk/internal/repository/predcache"
	chiTransport "github.com/kailas-cloud/blockrisk/internal/transport/chi"
	healthuc "github.com/kailas-cloud/blockrisk/internal/usecase/health"
	predictuc "github.com/kailas-cloud/blockrisk/internal/usecase/predict"
	"github.com/kailas-cloud/blockrisk/internal/version"
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

	logger.Info("Starting blockrisk API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("route_prefix", cfg.HTTP.RoutePrefix),
		zap.String("artifact_path", cfg.Model.ArtifactPath),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	metrics.RegisterPredictionMetrics()
	ctx := context.Background()

	// Optional prediction cache. A cache that never becomes ready is dropped, not fatal.
	opts := predictuc.Options{RejectOutOfRange: cfg.Predict.RejectOutOfRange}
	var pinger healthuc.CachePinger
	if cfg.Cache.Enabled {
		store, closeStore := connectCache(ctx, cfg.Cache, logger)
		if store != nil {
			defer closeStore()
			opts.Cache = predcache.New(store, time.Duration(cfg.Cache.TTLSec)*time.Second,
				metrics.PredictionCacheTotal, logger)
			pinger = store
		}
	}

	// The model is loaded once, before the listener starts. Failure leaves the
	// server up and answering 503 on /predict.
	predictSvc := predictuc.New(artifactrepo.NewFileStore(cfg.Model.ArtifactPath), opts, logger)
	if err := predictSvc.Load(ctx); err != nil {
		logger.Warn("Serving without a model", zap.Error(err))
	}

	healthSvc := healthuc.New(predictSvc, pinger)
	server := chiTransport.NewServer(predictSvc, healthSvc, cfg.HTTP.RoutePrefix, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	if origins := nonEmpty(cfg.HTTP.CORSOrigins); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(chiTransport.BearerAuthMiddleware(nonEmpty(cfg.Auth.APIKeys), cfg.HTTP.RoutePrefix))
	r.Use(metrics.Middleware())

	mount := cfg.HTTP.RoutePrefix
	if mount == "" {
		mount = "/"
	}
	r.Mount(mount, server.Routes())

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

// connectCache returns nil when the cache cannot be reached within the readiness timeout.
func connectCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (*dbRedis.Store, func()) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
	})
	if err != nil {
		logger.Warn("Prediction cache disabled", zap.Error(err))
		return nil, nil
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		logger.Warn("Prediction cache disabled", zap.Strings("addrs", cfg.Addrs), zap.Error(err))
		return nil, nil
	}
	logger.Info("Connected to prediction cache", zap.Strings("addrs", cfg.Addrs))
	return store, store.Close
}

// nonEmpty drops entries that expanded to "" from an unset environment variable.
func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Error: "internal error",
						Code:  chiTransport.ErrorCodeInternalError,
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
