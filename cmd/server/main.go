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

	"github.com/gin-gonic/gin"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/api"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/cache"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/config"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/database"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/logging"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/models"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/observability"
	"github.com/luxquanttrade/luxquant-analyze-app/internal/services"
)

const defaultServiceName = "luxquant-analyze-api"

// main serves as the entry point for the API server.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, connects the source database and Redis, serves
// the API and shuts down gracefully on SIGINT or SIGTERM.
//
// A source database that cannot be opened does not stop the server: the
// analysis routes answer 503 with the categorized hint instead.
func run() error {
	cfg, err := config.Load()
	var openErr error
	if err != nil {
		if cfg == nil || !errors.Is(err, config.ErrNoDatabaseURL) {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		openErr = err
	}

	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	if err := observability.InitSentry(cfg.Sentry, cfg.Telemetry.ServiceVersion, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Sentry: %v\n", err)
	}
	defer observability.Flush(context.Background())

	stdLogger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	defer func() { _ = stdLogger.Sync() }()
	logger := logging.Logger(stdLogger).WithService(serviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db database.Database
	if openErr == nil {
		db, openErr = database.NewDatabaseConnection(ctx, &cfg.Database, logger)
	}
	if openErr != nil {
		db = nil
		ce := database.ClassifyError(openErr)
		logger.WithError(openErr).WithFields(map[string]interface{}{
			"category": ce.Category,
			"hint":     ce.Hint,
		}).Error("Source database unavailable - serving 503 until it is reachable")
	} else {
		defer func() {
			if err := db.Close(); err != nil {
				logger.WithError(err).Error("Failed to close database connection")
			}
		}()
	}

	redisClient, err := database.NewRedisConnection(ctx, cfg.Redis, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to Redis - continuing with in-memory cache")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	snapshotCache := cache.NewSnapshotCache(cfg.Cache, redisClient, logger)

	var source services.SnapshotSource = unavailableSource{err: openErr}
	if db != nil {
		source = database.NewSnapshotLoader(db, logger)
	}
	processor := services.NewSignalProcessor(source, snapshotCache, cfg.Analytics, logger)

	deps := api.Dependencies{
		Config:    cfg,
		Processor: processor,
		Cache:     snapshotCache,
		Logger:    logger,
		Version:   cfg.Telemetry.ServiceVersion,
		Connection: func(ctx context.Context) models.ConnectionStatus {
			return database.CheckConnection(ctx, db, &cfg.Database, openErr)
		},
	}
	if db != nil {
		deps.DB = db
	}
	if redisClient != nil {
		deps.Redis = redisClient
		deps.RateRedis = redisClient.Client
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       parseDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:      parseDuration(cfg.Server.WriteTimeout, 60*time.Second),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(serviceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.LogShutdown(serviceName, "signal received")
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), parseDuration(cfg.Server.ShutdownTimeout, 30*time.Second))
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// unavailableSource reports why the source database could not be opened.
type unavailableSource struct{ err error }

func (s unavailableSource) Load(context.Context) (*models.SourceSnapshot, error) {
	return nil, s.err
}

// parseDuration parses raw, returning fallback when it is empty or invalid.
func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
