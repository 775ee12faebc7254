package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"flock-backend/internal/config"
	"flock-backend/internal/di"
	"flock-backend/internal/infrastructure/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger

	if cfg.Tracing.Enabled {
		tp, err := observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName: cfg.Tracing.ServiceName,
			Environment: string(cfg.Environment),
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.IsDevelopment(),
		})
		if err != nil {
			logger.Warn("Tracing disabled", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Tracer shutdown error", zap.Error(err))
				}
			}()
		}
	}

	if cfg.FilePath != "" {
		watcher, err := config.NewWatcher(cfg, logger)
		if err != nil {
			logger.Warn("Configuration hot reload unavailable", zap.Error(err))
		} else {
			defer watcher.Stop()
			// Only the search limits are safe to swap while serving.
			watcher.OnChange(func(next *config.Config) {
				container.Ranker.SetLimits(di.RankLimits(next.Search))
				logger.Info("Search limits reloaded",
					zap.Int("defaultTopK", next.Search.DefaultTopK),
					zap.Int("maxTopK", next.Search.MaxTopK),
				)
			})
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.Server.Address),
			zap.String("environment", string(cfg.Environment)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
	log.Println("Server stopped")
}
