// Command buildworker drains the build queue, driving the Code Generator
// and an external build toolchain to completion, and runs the janitor that
// recovers jobs abandoned by a crashed worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zkgate/internal/buildqueue"
	"zkgate/internal/config"
	"zkgate/internal/logging"
	"zkgate/internal/registry"
	"zkgate/internal/store"
	"zkgate/internal/webhook"
)

func main() {
	logger := logging.New()
	defer logger.Sync()

	cfg, err := config.LoadBuildWorker()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Info("configuration loaded", zap.String("mode", cfg.App.Mode))

	redisStore, err := store.New(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	if err := os.MkdirAll(cfg.BuildWorker.WorkDir, 0o755); err != nil {
		logger.Fatal("failed to create work directory", zap.Error(err))
	}

	queue := buildqueue.New(redisStore.Client)
	reg := registry.New(redisStore.Client)
	wh := webhook.New(cfg.BuildWorker.WebhookTimeout, logger)

	workerID := "buildworker-" + uuid.NewString()
	worker := buildqueue.NewWorker(workerID, queue, reg, wh, buildqueue.Config{
		WorkDir:      cfg.BuildWorker.WorkDir,
		PopTimeout:   cfg.BuildWorker.PopTimeout,
		LeaseTTL:     cfg.BuildWorker.LeaseTTL,
		BuildCommand: cfg.BuildWorker.BuildCommand,
	}, logger)
	janitor := buildqueue.NewJanitor(queue, cfg.BuildWorker.JanitorPeriod, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx)
	go janitor.Run(ctx)

	logger.Info("build worker started", zap.String("worker_id", workerID))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	time.Sleep(2 * time.Second)

	logger.Info("build worker stopped")
}
