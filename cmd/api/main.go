package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/chandankumar123456/intellisense-ai/internal/adapters/http"
	"github.com/chandankumar123456/intellisense-ai/internal/bootstrap"
	"github.com/chandankumar123456/intellisense-ai/internal/config"
	"github.com/chandankumar123456/intellisense-ai/internal/observability/logging"
	"github.com/chandankumar123456/intellisense-ai/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.Install("retrieval-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("retrieval-api")
	engineMetrics := metrics.NewEngineMetrics(httpMetrics.Registerer())

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Role:            bootstrap.RoleAPI,
		Observer:        engineMetrics,
		BreakerListener: engineMetrics.ObserveBreakerState,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.Engine, app.QueryUC).WithMetrics(httpMetrics).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
