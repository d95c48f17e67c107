// Package scheduler periodically re-scores pending jobs so ICE-derived
// priorities stay current without recomputing on every enqueue.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reprioritizer is the part of the queue manager the sweeper calls.
type Reprioritizer interface {
	PendingOwners(ctx context.Context) ([]string, error)
	Reprioritize(ctx context.Context, ownerID string) (int, error)
}

// Scheduler runs the reprioritization sweep on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	queue    Reprioritizer
	schedule string
	logger   *slog.Logger
	tracer   trace.Tracer
}

// ParseSchedule validates a standard five-field cron expression or descriptor such as "@every 5m".
func ParseSchedule(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}

// New creates a scheduler for the given schedule.
func New(q Reprioritizer, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:     cron.New(),
		queue:    q,
		schedule: schedule,
		logger:   logger.With("component", "scheduler"),
		tracer:   otel.Tracer("actionplane/scheduler"),
	}

	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid reprioritize schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the cron loop until ctx is cancelled, then waits for a running sweep.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "schedule", s.schedule)
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(context.Background()); err != nil {
		s.logger.Error("reprioritize sweep failed", "error", err)
	}
}

// RunOnce reprioritizes every owner with pending jobs and returns the number of changed jobs.
// A failure for one owner is logged and does not stop the sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "reprioritize")
	defer span.End()

	owners, err := s.queue.PendingOwners(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	total := 0
	for _, owner := range owners {
		n, err := s.queue.Reprioritize(ctx, owner)
		if err != nil {
			s.logger.Warn("reprioritize failed", "owner_id", owner, "error", err)
			span.RecordError(err)
			continue
		}
		total += n
	}

	span.SetAttributes(attribute.Int("owners", len(owners)), attribute.Int("changed", total))
	s.logger.Debug("reprioritize sweep done", "owners", len(owners), "changed", total)
	return total, nil
}
