// Package main is the entry point for the actionplane controller.
// It serves the HTTP API and can run playbooks, workers and the reprioritization sweep in-process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"actionplane/internal/config"
	"actionplane/internal/controller"
	"actionplane/internal/controller/handlers"
	"actionplane/internal/controller/middleware"
	"actionplane/internal/executor"
	"actionplane/internal/executor/webhook"
	"actionplane/internal/logger"
	"actionplane/internal/observability"
	"actionplane/internal/orchestrator"
	"actionplane/internal/queue"
	"actionplane/internal/scheduler"
	"actionplane/internal/store"
	"actionplane/internal/store/memory"
	"actionplane/internal/store/postgres"
	"actionplane/internal/worker"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
)

// backend is what the controller needs from a store driver.
type backend interface {
	store.JobStore
	store.PlaybookStore
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: actionplane.yaml in current directory)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logr := logger.New(cfg.LogLevel)
	slog.SetDefault(logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, *migrateFlag, logr)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "actionplane-controller",
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
	metricsHandler, shutdownMetrics, err := observability.InitMetrics(ctx, "actionplane-controller")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logr.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	// Executors
	registry := executor.NewRegistry()
	registry.MustRegister(executor.EchoType, executor.Echo())
	if err := webhook.RegisterAll(registry, cfg.Executors); err != nil {
		log.Fatalf("Failed to register executors: %v", err)
	}
	logr.Info("executors registered", "types", registry.Names())

	q := queue.New(st, logr, queue.Options{})
	orch := orchestrator.New(st, registry, logr)

	// Queries the store only when scraped
	if _, err := observability.RegisterQueueDepth(otel.Meter("actionplane/controller"), func(ctx context.Context) (int64, error) {
		stats, err := q.GetQueueStats(ctx, "")
		return stats.Pending, err
	}); err != nil {
		logr.Warn("failed to register queue depth metric", "error", err)
	}

	var background sync.WaitGroup

	// Embedded workers
	var agents []*worker.Agent
	for i := 0; i < cfg.EmbeddedWorkers; i++ {
		agent := worker.New(q, registry, worker.AgentConfig{
			ID:                  fmt.Sprintf("controller-worker-%d", i),
			Concurrency:         cfg.WorkerConcurrency,
			PollInterval:        cfg.WorkerPollInterval,
			MaxBackoff:          cfg.WorkerMaxBackoff,
			CancelCheckInterval: cfg.WorkerCancelCheckInterval,
			RetryBackoff:        cfg.WorkerRetryBackoff,
			OwnerID:             cfg.WorkerOwnerID,
		}, logr)
		agents = append(agents, agent)
		go agent.Run(ctx)
	}

	// Reprioritization sweep
	if cfg.ReprioritizeSchedule != "" {
		sched, err := scheduler.New(q, cfg.ReprioritizeSchedule, logr)
		if err != nil {
			log.Fatalf("Failed to create scheduler: %v", err)
		}
		background.Add(1)
		go func() {
			defer background.Done()
			sched.Start(ctx)
		}()
	}

	// Start Server
	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(middleware.WithLimit(cfg.RateLimit, cfg.RateLimitBurst))
	}
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, handlers.New(q, orch, st, logr), controller.Options{
		MetricsHandler: metricsHandler,
		RateLimiter:    limiter,
		AdminToken:     cfg.AdminToken,
	})

	logr.Info("actionplane controller starting", "addr", addr, "store", cfg.StoreDriver, "embedded_workers", cfg.EmbeddedWorkers)
	if err := srv.Run(ctx); err != nil {
		logr.Error("server stopped", "error", err)
		stop()
	}

	// Graceful Shutdown
	logr.Info("shutting down controller")
	for _, agent := range agents {
		<-agent.Done()
	}
	background.Wait()

	drained := make(chan struct{})
	go func() {
		orch.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(30 * time.Second):
		logr.Warn("playbook runs still active at shutdown")
	}
	logr.Info("controller exited properly")
}

func openStore(ctx context.Context, cfg *config.Config, migrate bool, logr *slog.Logger) (backend, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logr.Warn("using in-memory store, state is lost on restart")
		return memory.New(), nil
	}

	// Connect to Postgres (the "Store")
	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	// Run migrations if requested
	if migrate {
		logr.Info("running database migrations")
		version, err := postgres.Migrate(st.DB())
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		logr.Info("migrations completed", "version", version)
	}
	return st, nil
}
