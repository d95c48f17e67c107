// Package main is the entry point for the actionplane worker.
// The worker claims ready jobs from the shared store and runs them through the executor registry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"actionplane/internal/config"
	"actionplane/internal/executor"
	"actionplane/internal/executor/webhook"
	"actionplane/internal/logger"
	"actionplane/internal/observability"
	"actionplane/internal/queue"
	"actionplane/internal/store/postgres"
	"actionplane/internal/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: actionplane.yaml in current directory)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.StoreDriver != config.DriverPostgres {
		log.Fatalf("The standalone worker needs a shared store, got store_driver=%s (use embedded_workers on the controller instead)", cfg.StoreDriver)
	}
	logr := logger.New(cfg.LogLevel)
	slog.SetDefault(logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer st.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "actionplane-worker",
		Endpoint:    cfg.OTELEndpoint,
		SampleRatio: cfg.OTELSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logr.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics(ctx, "actionplane-worker")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logr.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	// Start a dedicated metrics server
	metricsAddr := fmt.Sprintf(":%d", cfg.MetricsPort)
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux(metricsHandler)}
	go func() {
		logr.Info("worker metrics listening", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("metrics server error", "error", err)
		}
	}()

	registry := executor.NewRegistry()
	registry.MustRegister(executor.EchoType, executor.Echo())
	if err := webhook.RegisterAll(registry, cfg.Executors); err != nil {
		log.Fatalf("Failed to register executors: %v", err)
	}

	agent := worker.New(queue.New(st, logr, queue.Options{}), registry, worker.AgentConfig{
		Concurrency:         cfg.WorkerConcurrency,
		PollInterval:        cfg.WorkerPollInterval,
		MaxBackoff:          cfg.WorkerMaxBackoff,
		CancelCheckInterval: cfg.WorkerCancelCheckInterval,
		RetryBackoff:        cfg.WorkerRetryBackoff,
		OwnerID:             cfg.WorkerOwnerID,
	}, logr)

	logr.Info("worker started", "concurrency", cfg.WorkerConcurrency, "executors", registry.Names())
	go agent.Run(ctx)

	<-ctx.Done()
	logr.Info("shutting down worker")

	<-agent.Done()
	metricsSrv.Shutdown(context.Background())
}

func metricsMux(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return mux
}
