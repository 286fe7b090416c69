package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/reposearch/internal/embeddings"

// Metrics holds embedding-related metrics. All calls here go to a remote
// provider (TEI or OpenAI-compatible), so instruments are labeled by provider
// and bucketed for network latencies rather than local inference.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
	retries   metric.Int64Counter
	rateDelay metric.Float64Histogram
}

// NewMetrics creates a Metrics instance for the embedding service.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"reposearch.embedding.request_duration_seconds",
		metric.WithDescription("Duration of a remote embedding request, labeled by provider, model, and operation (embed, batch_embed)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	// Chunks are capped at the configured max batch size (default 16).
	m.batchSize, err = m.meter.Int64Histogram(
		"reposearch.embedding.chunk_size",
		metric.WithDescription("Number of texts per embedding chunk after batch splitting"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 4, 8, 16, 32),
	)
	if err != nil {
		m.logger.Warn("failed to create chunk size histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"reposearch.embedding.errors_total",
		metric.WithDescription("Embedding requests that failed after exhausting retries"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.retries, err = m.meter.Int64Counter(
		"reposearch.embedding.retries_total",
		metric.WithDescription("Retry attempts beyond the first call per chunk, labeled by provider"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		m.logger.Warn("failed to create retries counter", zap.Error(err))
	}

	m.rateDelay, err = m.meter.Float64Histogram(
		"reposearch.embedding.rate_delay_seconds",
		metric.WithDescription("Time callers spent waiting on the rate window before dispatch"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create rate delay histogram", zap.Error(err))
	}
}

// RecordGeneration records one chunk dispatch: request duration, chunk size,
// retry attempts beyond the first, and terminal failure.
func (m *Metrics) RecordGeneration(ctx context.Context, provider, model, operation string, duration time.Duration, chunkSize, retries int, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("operation", operation),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if chunkSize > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(chunkSize), metric.WithAttributes(attrs...))
	}
	if retries > 0 && m.retries != nil {
		m.retries.Add(ctx, int64(retries), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRateDelay records a wait imposed by the rate window.
func (m *Metrics) RecordRateDelay(ctx context.Context, provider string, delay time.Duration) {
	if m.rateDelay == nil || delay <= 0 {
		return
	}
	m.rateDelay.Record(ctx, delay.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)))
}
