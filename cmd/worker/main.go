package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chandankumar123456/intellisense-ai/internal/bootstrap"
	"github.com/chandankumar123456/intellisense-ai/internal/config"
	"github.com/chandankumar123456/intellisense-ai/internal/core/ports"
	"github.com/chandankumar123456/intellisense-ai/internal/core/usecase"
	"github.com/chandankumar123456/intellisense-ai/internal/observability/logging"
	"github.com/chandankumar123456/intellisense-ai/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.Install("retrieval-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("retrieval-worker")
	engineMetrics := metrics.NewEngineMetrics(workerMetrics.Registerer())

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Role:            bootstrap.RoleWorker,
		BreakerListener: engineMetrics.ObserveBreakerState,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	if app.Memory == nil {
		app.Close()
		logger.Error("worker_requires_memory", "memory_backend", cfg.MemoryBackend)
		os.Exit(1)
	}
	defer app.Close()

	var subscriber ports.OutcomeSubscriber
	if app.Queue != nil {
		subscriber = app.Queue
		logger.Info("worker_subscribed", "subject", cfg.NATSOutcomeSubject)
	} else {
		logger.Warn("worker_without_queue", "reason", "NATS_ENABLED=false, running retention purge only")
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux(workerMetrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	worker := usecase.NewOutcomeWorker(app.Memory, subscriber, workerMetrics, cfg.MemoryPurgeInterval)
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker_stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker_metrics_shutdown_failed", "error", err)
	}
}

func metricsMux(handler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
