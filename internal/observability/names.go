// Package observability provides OpenTelemetry metrics, tracing, Sentry reporting and
// trace-aware logging for the feedback service.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameFeedbackIngested       = "mmm_feedback_ingested_total"
	MetricNameEmbeddingOutcomes      = "mmm_embedding_outcomes_total"
	MetricNameEmbeddingDuration      = "mmm_embedding_duration_seconds"
	MetricNameNeighborSearches       = "mmm_neighbor_searches_total"
	MetricNameNeighborSearchDuration = "mmm_neighbor_search_duration_seconds"
	MetricNameClustersProduced       = "mmm_feedback_clusters_produced"
	MetricNameInsightsDuration       = "mmm_insights_duration_seconds"
	MetricNameCacheHits              = "mmm_cache_hits_total"
	MetricNameCacheMisses            = "mmm_cache_misses_total"
	MetricNameHTTPRequests           = "mmm_http_requests_total"
	MetricNameHTTPRequestDuration    = "mmm_http_request_duration_seconds"
	MetricNameRequestBodyTooLarge    = "mmm_request_body_too_large_total"
)

// Attribute keys.
const (
	AttrFeedbackType = "feedback_type"
	AttrStatus       = "status"
	AttrCache        = "cache"
	AttrMethod       = "method"
	AttrRoute        = "route"
	AttrStatusClass  = "status_class"
)

// Embedding outcome statuses.
const (
	EmbeddingStatusSuccess           = "success"
	EmbeddingStatusNoKey             = "no_key"
	EmbeddingStatusRateLimited       = "rate_limited"
	EmbeddingStatusProviderError     = "provider_error"
	EmbeddingStatusInvalidDimensions = "invalid_dimensions"
)

// Neighbour search statuses.
const (
	NeighborSearchStatusSuccess = "success"
	NeighborSearchStatusFailed  = "failed"
)

// Cache names.
const (
	CacheEmbeddingKeys = "embedding_keys"
)

var allowedFeedbackTypes = map[string]bool{
	"satisfaction": true,
	"freeText":     true,
	"behavior":     true,
}

var allowedEmbeddingStatuses = map[string]bool{
	EmbeddingStatusSuccess:           true,
	EmbeddingStatusNoKey:             true,
	EmbeddingStatusRateLimited:       true,
	EmbeddingStatusProviderError:     true,
	EmbeddingStatusInvalidDimensions: true,
}

var allowedNeighborStatuses = map[string]bool{
	NeighborSearchStatusSuccess: true,
	NeighborSearchStatusFailed:  true,
}

var allowedCacheNames = map[string]bool{
	CacheEmbeddingKeys: true,
}

// normalize returns value if allowed, otherwise fallback. Keeps attribute cardinality bounded.
func normalize(value string, allowed map[string]bool, fallback string) string {
	if allowed[value] {
		return value
	}

	return fallback
}

// NormalizeFeedbackType returns t if it is a known feedback type, otherwise "unknown".
func NormalizeFeedbackType(t string) string {
	return normalize(t, allowedFeedbackTypes, "unknown")
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return normalize(name, allowedCacheNames, "other")
}
