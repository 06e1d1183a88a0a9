package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FeedbackMetrics records ingestion and embedding enrichment metrics.
type FeedbackMetrics interface {
	RecordIngested(ctx context.Context, feedbackType string)
	RecordEmbeddingOutcome(ctx context.Context, status string, duration time.Duration)
}

// InsightsMetrics records aggregation and clustering metrics.
type InsightsMetrics interface {
	RecordNeighborSearch(ctx context.Context, status string, duration time.Duration)
	RecordClusters(ctx context.Context, count int)
	RecordInsightsDuration(ctx context.Context, duration time.Duration)
}

// CacheMetrics records cache hit/miss metrics with bounded cardinality (cache name).
type CacheMetrics interface {
	RecordHit(ctx context.Context, cacheName string)
	RecordMiss(ctx context.Context, cacheName string)
}

// HTTPMetrics records per-route request metrics and body limit rejections.
type HTTPMetrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordRequestBodyTooLarge(ctx context.Context)
}

type feedbackMetrics struct {
	ingested          metric.Int64Counter
	embeddingOutcomes metric.Int64Counter
	embeddingDuration metric.Float64Histogram
}

// NewFeedbackMetrics creates FeedbackMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewFeedbackMetrics(meter metric.Meter) (FeedbackMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	ingested, err := meter.Int64Counter(
		MetricNameFeedbackIngested,
		metric.WithDescription("Feedback events stored, by type"),
	)
	if err != nil {
		return nil, fmt.Errorf("create feedback ingested counter: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		MetricNameEmbeddingOutcomes,
		metric.WithDescription("Free-text embedding attempts by outcome (success, no_key, rate_limited, provider_error, invalid_dimensions)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding outcomes counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Embedding provider call duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding duration histogram: %w", err)
	}

	return &feedbackMetrics{ingested: ingested, embeddingOutcomes: outcomes, embeddingDuration: duration}, nil
}

func (m *feedbackMetrics) RecordIngested(ctx context.Context, feedbackType string) {
	m.ingested.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrFeedbackType, NormalizeFeedbackType(feedbackType))))
}

func (m *feedbackMetrics) RecordEmbeddingOutcome(ctx context.Context, status string, duration time.Duration) {
	status = normalize(status, allowedEmbeddingStatuses, "other")
	attrs := metric.WithAttributes(attribute.String(AttrStatus, status))

	m.embeddingOutcomes.Add(ctx, 1, attrs)

	// Only calls that reached the provider have a meaningful duration.
	if duration > 0 {
		m.embeddingDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

type insightsMetrics struct {
	neighborSearches metric.Int64Counter
	neighborDuration metric.Float64Histogram
	clusters         metric.Int64Histogram
	insightsDuration metric.Float64Histogram
}

// NewInsightsMetrics creates InsightsMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewInsightsMetrics(meter metric.Meter) (InsightsMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	searches, err := meter.Int64Counter(
		MetricNameNeighborSearches,
		metric.WithDescription("Nearest-neighbour queries issued while clustering, by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create neighbor searches counter: %w", err)
	}

	searchDuration, err := meter.Float64Histogram(
		MetricNameNeighborSearchDuration,
		metric.WithDescription("Nearest-neighbour query duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create neighbor search duration histogram: %w", err)
	}

	clusters, err := meter.Int64Histogram(
		MetricNameClustersProduced,
		metric.WithDescription("Feedback clusters returned per insights request"),
	)
	if err != nil {
		return nil, fmt.Errorf("create clusters histogram: %w", err)
	}

	insightsDuration, err := meter.Float64Histogram(
		MetricNameInsightsDuration,
		metric.WithDescription("Insights aggregation duration including clustering (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create insights duration histogram: %w", err)
	}

	return &insightsMetrics{
		neighborSearches: searches,
		neighborDuration: searchDuration,
		clusters:         clusters,
		insightsDuration: insightsDuration,
	}, nil
}

func (m *insightsMetrics) RecordNeighborSearch(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrStatus, normalize(status, allowedNeighborStatuses, "other")))
	m.neighborSearches.Add(ctx, 1, attrs)
	m.neighborDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *insightsMetrics) RecordClusters(ctx context.Context, count int) {
	m.clusters.Record(ctx, int64(count))
}

func (m *insightsMetrics) RecordInsightsDuration(ctx context.Context, duration time.Duration) {
	m.insightsDuration.Record(ctx, duration.Seconds())
}

type cacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewCacheMetrics creates CacheMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewCacheMetrics(meter metric.Meter) (CacheMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	hits, err := meter.Int64Counter(
		MetricNameCacheHits,
		metric.WithDescription("Cache lookups served from memory. Label cache: embedding_keys."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache hits counter: %w", err)
	}

	misses, err := meter.Int64Counter(
		MetricNameCacheMisses,
		metric.WithDescription("Cache lookups that loaded from the backing store. Label cache: embedding_keys."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache misses counter: %w", err)
	}

	return &cacheMetrics{hits: hits, misses: misses}, nil
}

func (c *cacheMetrics) RecordHit(ctx context.Context, cacheName string) {
	c.hits.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCache, NormalizeCacheName(cacheName))))
}

func (c *cacheMetrics) RecordMiss(ctx context.Context, cacheName string) {
	c.misses.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCache, NormalizeCacheName(cacheName))))
}

type httpMetrics struct {
	requests            metric.Int64Counter
	duration            metric.Float64Histogram
	requestBodyTooLarge metric.Int64Counter
}

// NewHTTPMetrics creates HTTPMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewHTTPMetrics(meter metric.Meter) (HTTPMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	requests, err := meter.Int64Counter(
		MetricNameHTTPRequests,
		metric.WithDescription("Total HTTP requests by method, route and status class"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http requests counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameHTTPRequestDuration,
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http duration histogram: %w", err)
	}

	tooLarge, err := meter.Int64Counter(
		MetricNameRequestBodyTooLarge,
		metric.WithDescription("Requests rejected because the body exceeded the configured limit (413)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request body too large counter: %w", err)
	}

	return &httpMetrics{requests: requests, duration: duration, requestBodyTooLarge: tooLarge}, nil
}

func (m *httpMetrics) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	m.requests.Add(ctx, 1, metric.WithAttributeSet(attribute.NewSet(
		attribute.String(AttrMethod, method),
		attribute.String(AttrRoute, route),
		attribute.String(AttrStatusClass, statusClass),
	)))
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(attribute.NewSet(
		attribute.String(AttrMethod, method),
		attribute.String(AttrRoute, route),
	)))
}

func (m *httpMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	m.requestBodyTooLarge.Add(ctx, 1)
}
