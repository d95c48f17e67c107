// Package worker contains the poll loop that claims queued jobs and runs them.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"actionplane/internal/executor"
	"actionplane/internal/observability"
	"actionplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "actionplane/worker"

// Queue is the subset of the queue manager the agent drives.
type Queue interface {
	ClaimNext(ctx context.Context, ownerID string) (*store.Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID) (*store.Job, error)
	Complete(ctx context.Context, id uuid.UUID, result map[string]any) (*store.Job, error)
	Fail(ctx context.Context, id uuid.UUID, errMsg string) (*store.Job, error)
	RecordRetry(ctx context.Context, id uuid.UUID) (int, error)
	GetJobStatus(ctx context.Context, id uuid.UUID) (*store.Job, error)
}

// Runner executes an action through the executor registry.
type Runner interface {
	Run(ctx context.Context, action executor.Action) (executor.Result, error)
}

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID                  string
	Concurrency         int
	PollInterval        time.Duration
	MaxBackoff          time.Duration // Maximum backoff when queue is empty (default: 30s)
	CancelCheckInterval time.Duration // How often a running job's stored status is re-read (default: 5s)
	RetryBackoff        time.Duration // Delay before the first retry, doubled per retry (default: 10s)
	OwnerID             string        // Optional. Only claim jobs of this owner.
}

// Agent is the worker that runs the claim loop.
type Agent struct {
	queue   Queue
	runner  Runner
	config  AgentConfig
	logger  *slog.Logger
	metrics *observability.JobMetrics
	done    chan struct{}
}

// New creates a new worker agent.
func New(q Queue, runner Runner, config AgentConfig, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	if config.CancelCheckInterval <= 0 {
		config.CancelCheckInterval = 5 * time.Second
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 10 * time.Second
	}

	if config.ID == "" {
		config.ID = "worker-" + uuid.NewString()[:8]
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker", "worker_id", config.ID)

	metrics, err := observability.NewJobMetrics(otel.Meter(instrumentationName))
	if err != nil {
		logger.Warn("job metrics disabled", "error", err)
		metrics = observability.NoopJobMetrics()
	}

	return &Agent{
		queue:   q,
		runner:  runner,
		config:  config,
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Run starts the claim loop. It blocks until the context is cancelled.
// On cancellation it stops claiming new work and lets in-flight jobs finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "concurrency", a.config.Concurrency, "owner_id", a.config.OwnerID)

	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	pollNow := make(chan struct{}, 1)

	// Grows while the queue is empty, resets when work is found.
	currentBackoff := a.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
		}
	}

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, waiting for running jobs to finish")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			claimed := 0
			for claimed < availableSlots {
				job, err := a.queue.ClaimNext(ctx, a.config.OwnerID)
				if err != nil {
					if ctx.Err() == nil {
						a.logger.Error("claim failed", "error", err)
					}
					break
				}
				if job == nil {
					break
				}
				claimed++
				a.metrics.Claimed.Add(ctx, 1)

				sem <- struct{}{}
				wg.Add(1)
				go func(job *store.Job) {
					defer wg.Done()
					defer func() {
						<-sem
						triggerPoll()
					}()
					// In-flight jobs outlive the poll context so shutdown drains them.
					a.processJob(context.WithoutCancel(ctx), job)
				}(job)
			}

			if claimed == 0 {
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			currentBackoff = a.config.PollInterval
			a.logger.Debug("claimed jobs", "count", claimed)
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processJob runs one claimed job to a terminal status.
// No error escapes: every failure becomes a stored FAILED outcome or a log line.
func (a *Agent) processJob(ctx context.Context, job *store.Job) {
	start := time.Now()
	logger := a.logger.With("job_id", job.ID, "type", job.Type, "owner_id", job.OwnerID)

	spanCtx, span := otel.Tracer(instrumentationName).Start(ctx, "process_job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("job.type", job.Type),
			attribute.String("owner.id", job.OwnerID),
			attribute.Int("job.priority", job.Priority),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	if _, err := a.queue.MarkRunning(spanCtx, job.ID); err != nil {
		// Typically cancelled between claim and start.
		logger.Warn("could not mark job running", "error", err)
		span.RecordError(err)
		return
	}

	execCtx, cancelExec := context.WithCancel(spanCtx)
	defer cancelExec()

	watchCtx, stopWatch := context.WithCancel(spanCtx)
	defer stopWatch()
	go a.watchCancellation(watchCtx, job.ID, cancelExec, logger)

	action := executor.Action{
		Type:       job.Type,
		Parameters: job.Payload,
		OwnerID:    job.OwnerID,
		JobID:      &job.ID,
	}

	retries := job.RetryCount
	for {
		res, err := a.runner.Run(execCtx, action)
		for _, line := range res.Logs {
			logger.Debug("executor log", "line", line)
		}

		if err == nil {
			stopWatch()
			a.finish(spanCtx, logger, job.ID, store.JobStatusCompleted, res.Result, "", start)
			return
		}

		if execCtx.Err() != nil {
			logger.Info("job cancelled while running", "error", err)
			span.SetStatus(codes.Error, "cancelled")
			a.metrics.RecordFinished(spanCtx, string(store.JobStatusCancelled), time.Since(start).Seconds())
			return
		}

		span.RecordError(err)

		if errors.Is(err, executor.ErrUnknownExecutor) || retries >= job.MaxRetries {
			stopWatch()
			a.finish(spanCtx, logger, job.ID, store.JobStatusFailed, nil, err.Error(), start)
			return
		}

		n, rerr := a.queue.RecordRetry(spanCtx, job.ID)
		if rerr != nil {
			logger.Warn("could not record retry", "error", rerr)
			stopWatch()
			a.finish(spanCtx, logger, job.ID, store.JobStatusFailed, nil, err.Error(), start)
			return
		}
		retries = n

		delay := a.retryDelay(n)
		logger.Info("job attempt failed, retrying", "error", err, "retry_count", n, "max_retries", job.MaxRetries, "delay", delay)

		select {
		case <-time.After(delay):
		case <-execCtx.Done():
			logger.Info("job cancelled while waiting to retry")
			a.metrics.RecordFinished(spanCtx, string(store.JobStatusCancelled), time.Since(start).Seconds())
			return
		}
	}
}

func (a *Agent) finish(ctx context.Context, logger *slog.Logger, id uuid.UUID, status store.JobStatus, result map[string]any, errMsg string, start time.Time) {
	var err error
	if status == store.JobStatusCompleted {
		_, err = a.queue.Complete(ctx, id, result)
	} else {
		_, err = a.queue.Fail(ctx, id, errMsg)
	}

	if err != nil {
		// Benign race: the job was cancelled or finished elsewhere.
		if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			logger.Warn("outcome not recorded", "status", status, "error", err)
			return
		}
		logger.Error("failed to record outcome", "status", status, "error", err)
		return
	}

	if status == store.JobStatusCompleted {
		logger.Info("job completed", "duration", time.Since(start))
	} else {
		logger.Info("job failed", "error", errMsg, "duration", time.Since(start))
		trace.SpanFromContext(ctx).SetStatus(codes.Error, errMsg)
	}
	a.metrics.RecordFinished(ctx, string(status), time.Since(start).Seconds())
}

// retryDelay is RetryBackoff * 2^(retry-1), capped at MaxBackoff.
func (a *Agent) retryDelay(retry int) time.Duration {
	delay := a.config.RetryBackoff
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= a.config.MaxBackoff {
			return a.config.MaxBackoff
		}
	}
	if delay > a.config.MaxBackoff {
		return a.config.MaxBackoff
	}
	return delay
}

// watchCancellation re-reads the job's status while it runs and cancels the
// executor context once the job has been cancelled.
func (a *Agent) watchCancellation(ctx context.Context, id uuid.UUID, cancel context.CancelFunc, logger *slog.Logger) {
	ticker := time.NewTicker(a.config.CancelCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := a.queue.GetJobStatus(ctx, id)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("cancellation check failed", "error", err)
				}
				continue
			}
			if job.Status == store.JobStatusCancelled {
				logger.Info("job cancelled, stopping executor")
				cancel()
				return
			}
		}
	}
}
