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
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile}).Named("worker")
	defer func() { _ = logger.Sync() }()

	worker, err := app.NewWorker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer func() {
		if err := worker.Close(); err != nil {
			logger.Error("close", zap.Error(err))
		}
	}()

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("worker stopped")
}
