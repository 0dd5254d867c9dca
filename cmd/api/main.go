package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Tomlord1122/todo-files-backend/internal/config"
	"github.com/Tomlord1122/todo-files-backend/internal/database"
	"github.com/Tomlord1122/todo-files-backend/internal/logging"
	"github.com/Tomlord1122/todo-files-backend/internal/metrics"
	"github.com/Tomlord1122/todo-files-backend/internal/repository"
	"github.com/Tomlord1122/todo-files-backend/internal/server"
	"github.com/Tomlord1122/todo-files-backend/internal/service"
	"github.com/Tomlord1122/todo-files-backend/internal/storage"
)

func gracefulShutdown(apiServer *http.Server, dbService database.Service, timeout time.Duration, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logger.Info("shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	ctxTimeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := apiServer.Shutdown(ctxTimeout); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	if dbService != nil {
		if err := dbService.Close(); err != nil {
			logger.Error("error closing database connection pool", zap.Error(err))
		}
	}

	logger.Info("server exiting")

	done <- true
}

// openRepository returns a nil repository when the database is not configured
// or unreachable, so the API still starts and answers 503 for todo routes.
func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.Service, repository.TodoRepository) {
	dbService, err := database.New(cfg, logger)
	if err != nil {
		if errors.Is(err, database.ErrNotConfigured) {
			logger.Warn("DATABASE_URL not set, todo endpoints will answer 503")
		} else {
			logger.Error("database unavailable, todo endpoints will answer 503", zap.Error(err))
		}
		return nil, nil
	}

	todoRepo := repository.NewGormTodoRepository(dbService.GetDB())

	migrateCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := todoRepo.Initialize(migrateCtx); err != nil {
		logger.Error("failed to initialize todos table", zap.Error(err))
		_ = dbService.Close()
		return nil, nil
	}
	logger.Info("database schema ready")

	return dbService, todoRepo
}

func openBlobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.BlobStore {
	store, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			logger.Warn("S3 storage not configured, attachments will be skipped")
		} else {
			logger.Error("S3 storage unavailable, attachments will be skipped", zap.Error(err))
		}
		return nil
	}
	logger.Info("S3 storage configured", zap.String("bucket", cfg.S3Bucket))
	return store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	dbService, todoRepo := openRepository(ctx, cfg, logger)
	blobs := openBlobStore(ctx, cfg, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	todoService := service.NewTodoService(service.Options{
		Repo:         todoRepo,
		Blobs:        blobs,
		Logger:       logger.Named("todos"),
		Metrics:      appMetrics,
		StoreTimeout: cfg.StoreTimeout,
	})

	apiServer := server.NewServer(cfg, server.Dependencies{
		TodoService: todoService,
		DB:          dbService,
		Blobs:       blobs,
		Logger:      logger,
		Metrics:     appMetrics,
		Gatherer:    registry,
	})

	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, dbService, cfg.ShutdownTimeout, logger, done)

	logger.Info("starting server", zap.String("addr", apiServer.Addr))
	err = apiServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("HTTP server ListenAndServe error", zap.Error(err))
	}

	<-done
	logger.Info("graceful shutdown complete")
}
