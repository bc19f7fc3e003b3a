// Command admission runs the Admission Controller hot path: an HTTP
// surface implementing the ext_authz-shaped contract, backed by
// a gRPC health side-channel for orchestrator liveness/readiness probes.
package main

import (
	"context"
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"zkgate/internal/admission"
	"zkgate/internal/config"
	"zkgate/internal/logging"
	"zkgate/internal/nullifier"
	"zkgate/internal/payment"
	"zkgate/internal/receipt"
	"zkgate/internal/store"
	"zkgate/pkg/server"
)

func main() {
	logger := logging.New()
	defer logger.Sync()

	cfg, err := config.LoadAdmission()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Info("configuration loaded", zap.String("mode", cfg.App.Mode))

	redisStore, err := store.New(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	var expectedImageID receipt.ImageID
	if cfg.Admission.ExpectedImageIDHex != "" {
		raw, err := hex.DecodeString(cfg.Admission.ExpectedImageIDHex)
		if err != nil || len(raw) != len(expectedImageID) {
			logger.Fatal("ADMISSION_EXPECTED_IMAGE_ID must be 64 hex characters", zap.Error(err))
		}
		copy(expectedImageID[:], raw)
	}

	keys, err := receipt.LoadFileKeyResolver(cfg.Admission.VerifyingKeyPath, expectedImageID)
	if err != nil {
		logger.Fatal("failed to load verifying key", zap.Error(err))
	}

	nullifiers := nullifier.New(redisStore.Client, cfg.Admission.NullifierTTL)
	payments := payment.New(redisStore.Client, cfg.Admission.ReservationTTL)
	verifier := receipt.New(keys)

	controller := admission.New(nullifiers, payments, verifier, admission.Config{
		RequirePayment:   cfg.Admission.RequirePayment,
		MinPaymentAmount: cfg.Admission.MinPaymentAmount,
		MinConfirmations: cfg.Admission.MinConfirmations,
		ExpectedImageID:  expectedImageID,
	}, logger)
	handler := admission.NewHandler(controller, logger)

	router := newAdmissionRouter(handler)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	srv, err := server.New(
		server.WithHTTPServer(router, cfg.Admission.HTTPPort),
		server.WithGRPCHealthServer(cfg.Admission.GRPCHealthPort, healthSrv),
	)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}

	if err := srv.Run(logger); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	logger.Info("admission controller started",
		zap.String("http_port", cfg.Admission.HTTPPort),
		zap.String("grpc_health_port", cfg.Admission.GRPCHealthPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	logger.Info("admission controller stopped")
}

func newAdmissionRouter(handler *admission.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))
	handler.Mount(r)
	return r
}
