package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/app"
	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/logging"
)

func main() {
	// Handle SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = logger.Sync() }()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close", zap.Error(err))
		}
	}()

	logger.Info("docqa api is running",
		zap.String("dispatcher", cfg.Dispatcher),
		zap.String("vector_backend", cfg.VectorBackend),
	)
	if err := application.Run(ctx); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
		return
	}
	logger.Info("shutting down")
}
