package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric collectors. When metrics are disabled the struct itself is nil;
// components that accept one of the interfaces handle a nil value.
type Metrics struct {
	Feedback FeedbackMetrics
	Insights InsightsMetrics
	Cache    CacheMetrics
	HTTP     HTTPMetrics
}

// NewMetrics creates every collector from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	feedback, err := NewFeedbackMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("feedback metrics: %w", err)
	}

	insights, err := NewInsightsMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("insights metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	httpMetrics, err := NewHTTPMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	return &Metrics{
		Feedback: feedback,
		Insights: insights,
		Cache:    cache,
		HTTP:     httpMetrics,
	}, nil
}
