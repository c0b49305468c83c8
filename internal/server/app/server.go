// Package app assembles the syncspace server: storage, notifier, HTTP API and
// the update merge job.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/syncspace/internal/server/config"
	"github.com/iudanet/syncspace/internal/server/handlers"
	"github.com/iudanet/syncspace/internal/server/jobs"
	"github.com/iudanet/syncspace/internal/server/middleware"
	"github.com/iudanet/syncspace/internal/server/notify"
	"github.com/iudanet/syncspace/internal/server/storage/sqlite"
)

// shutdownTimeout время на завершение активных запросов
const shutdownTimeout = 10 * time.Second

// Server owns every long-lived server component
type Server struct {
	logger     *slog.Logger
	store      *sqlite.Storage
	notifier   notify.Notifier
	limiter    *middleware.RateLimiter
	mergeJob   *jobs.MergeJob
	httpServer *http.Server
	jwtConfig  handlers.JWTConfig
	version    string
}

// New opens storage and the notifier and builds the HTTP handler tree.
// The caller must call Close.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, version string) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	notifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s := &Server{
		logger:   logger,
		store:    store,
		notifier: notifier,
		limiter:  middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, logger),
		mergeJob: jobs.NewMergeJob(store, cfg.JobConfig(), logger.With("component", "merge_job")),
		jwtConfig: handlers.JWTConfig{
			Secret:         []byte(cfg.JWTSecret),
			AccessTokenTTL: cfg.TokenTTL,
		},
		version: version,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// newNotifier подключается к Redis, если адрес задан, иначе работает в одном процессе
func newNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.RedisAddr == "" {
		logger.Info("Redis is not configured, stream notices stay in process")
		return notify.NewLocalNotifier(), nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Connected to redis", "addr", cfg.RedisAddr)
	return notify.NewRedisNotifier(rdb, logger.With("component", "notifier")), nil
}

// Handler returns the root HTTP handler with all routes and middleware
func (s *Server) Handler() http.Handler {
	syncHandler := handlers.NewSyncHandler(s.logger, s.store)
	mutationHandler := handlers.NewMutationHandler(s.logger, s.store, s.notifier)
	fileHandler := handlers.NewFileHandler(s.logger, s.store, s.notifier)
	eventsHandler := handlers.NewEventsHandler(s.logger, s.notifier)
	healthHandler := handlers.NewHealthHandler(s.logger, s.store, s.version)

	// Защищенные маршруты: сначала аутентификация, затем лимит по user_id
	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(s.logger, s.jwtConfig)(s.limiter.Middleware(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /api/v1/sync/{stream}", protected(syncHandler.HandlePull))
	mux.Handle("POST /api/v1/mutations", protected(mutationHandler.HandleMutations))
	mux.Handle("POST /api/v1/files", protected(fileHandler.HandleCreateFile))
	mux.Handle("GET /api/v1/events", protected(eventsHandler.HandleEvents))

	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(s.logger, []string{"/api/v1/health", "/metrics"})(handler)
	handler = middleware.RecoveryMiddleware(s.logger)(handler)

	return handler
}

// Run serves HTTP and runs the merge job until ctx is cancelled or one of
// them fails.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.mergeJob.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Info("Shutting down HTTP server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close releases the notifier, rate limiter and storage
func (s *Server) Close() error {
	s.limiter.Stop()

	var errs []error
	if err := s.notifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close notifier: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
	}
	return errors.Join(errs...)
}
