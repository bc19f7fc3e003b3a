// Command deployapi runs the Deployment HTTP surface: submit DSL for
// build, query job status, and manage the tenant → image registry.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"zkgate/internal/buildqueue"
	"zkgate/internal/config"
	"zkgate/internal/deployapi"
	"zkgate/internal/logging"
	"zkgate/internal/registry"
	"zkgate/internal/store"
)

func main() {
	logger := logging.New()
	defer logger.Sync()

	cfg, err := config.LoadDeployAPI()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Info("configuration loaded", zap.String("mode", cfg.App.Mode))

	redisStore, err := store.New(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	queue := buildqueue.New(redisStore.Client)
	reg := registry.New(redisStore.Client)
	handlers := deployapi.New(queue, reg, logger)
	router := deployapi.NewRouter(handlers, logger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.DeployAPI.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Info("deployment API listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("deployment API server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	logger.Info("deployment API stopped")
}
