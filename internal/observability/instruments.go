package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// JobMetrics are the worker-side job instruments.
type JobMetrics struct {
	Claimed  metric.Int64Counter
	Finished metric.Int64Counter
	Duration metric.Float64Histogram
}

// NewJobMetrics creates the job instruments on meter.
func NewJobMetrics(meter metric.Meter) (*JobMetrics, error) {
	claimed, err := meter.Int64Counter("actionplane.jobs.claimed",
		metric.WithDescription("Jobs claimed by workers"))
	if err != nil {
		return nil, fmt.Errorf("failed to create claimed counter: %w", err)
	}

	finished, err := meter.Int64Counter("actionplane.jobs.finished",
		metric.WithDescription("Jobs that reached a terminal status, by status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create finished counter: %w", err)
	}

	duration, err := meter.Float64Histogram("actionplane.job.duration",
		metric.WithDescription("Wall time from claim to terminal status"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &JobMetrics{Claimed: claimed, Finished: finished, Duration: duration}, nil
}

// NoopJobMetrics returns instruments that record nothing.
func NoopJobMetrics() *JobMetrics {
	m, _ := NewJobMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

// RecordFinished counts a terminal outcome and its duration.
func (m *JobMetrics) RecordFinished(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Finished.Add(ctx, 1, attrs)
	m.Duration.Record(ctx, seconds, attrs)
}

// PlaybookMetrics are the orchestrator instruments.
type PlaybookMetrics struct {
	Finished metric.Int64Counter
}

// NewPlaybookMetrics creates the playbook instruments on meter.
func NewPlaybookMetrics(meter metric.Meter) (*PlaybookMetrics, error) {
	finished, err := meter.Int64Counter("actionplane.playbooks.finished",
		metric.WithDescription("Playbook runs that ended, by aggregate status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create playbook counter: %w", err)
	}
	return &PlaybookMetrics{Finished: finished}, nil
}

// NoopPlaybookMetrics returns instruments that record nothing.
func NoopPlaybookMetrics() *PlaybookMetrics {
	m, _ := NewPlaybookMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

// RecordFinished counts one finished playbook run.
func (m *PlaybookMetrics) RecordFinished(ctx context.Context, status string) {
	m.Finished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RegisterQueueDepth exposes the number of pending jobs as an observable gauge.
func RegisterQueueDepth(meter metric.Meter, pending func(context.Context) (int64, error)) (metric.Registration, error) {
	gauge, err := meter.Int64ObservableGauge("actionplane.queue.depth",
		metric.WithDescription("Jobs waiting to be claimed"))
	if err != nil {
		return nil, fmt.Errorf("failed to create queue depth gauge: %w", err)
	}

	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := pending(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(gauge, n)
		return nil
	}, gauge)
}
