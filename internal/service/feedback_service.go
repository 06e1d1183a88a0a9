package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/huberrors"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/observability"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/pkg/embeddings"
)

// FeedbackStore is the append-only feedback event log.
type FeedbackStore interface {
	Create(ctx context.Context, event *models.FeedbackEvent) error
	// ListSince returns events with timestamp >= since, newest first, optionally for one episode.
	ListSince(ctx context.Context, since time.Time, episodeID *string) ([]models.FeedbackEvent, error)
}

// KeyResolver resolves the embedding API key for an optional user.
type KeyResolver interface {
	Resolve(ctx context.Context, userID *string) (string, bool)
}

// FeedbackService validates, enriches and stores feedback events.
type FeedbackService struct {
	store   FeedbackStore
	keys    KeyResolver
	clients EmbeddingClientFactory
	limiter RateLimiter
	metrics observability.FeedbackMetrics
	now     func() time.Time
	logger  *slog.Logger
}

// FeedbackServiceParams configures FeedbackService. Keys or Clients nil disables embeddings;
// Limiter and Metrics may be nil.
type FeedbackServiceParams struct {
	Store   FeedbackStore
	Keys    KeyResolver
	Clients EmbeddingClientFactory
	Limiter RateLimiter
	Metrics observability.FeedbackMetrics
	Now     func() time.Time
	Logger  *slog.Logger
}

// NewFeedbackService creates a FeedbackService.
func NewFeedbackService(p FeedbackServiceParams) *FeedbackService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	return &FeedbackService{
		store:   p.Store,
		keys:    p.Keys,
		clients: p.Clients,
		limiter: p.Limiter,
		metrics: p.Metrics,
		now:     now,
		logger:  logger,
	}
}

// Ingest builds a feedback event from req and stores it. userID nil records the event as anonymous.
// Free text is embedded when a key is available; any embedding failure stores the event without one.
// Store failures are returned to the caller.
func (s *FeedbackService) Ingest(ctx context.Context, req *models.CreateFeedbackRequest, userID *string) (*models.FeedbackEvent, error) {
	page := models.Page(req.Page)
	if !page.IsValid() {
		return nil, huberrors.NewValidationError("page", "page must be one of: home, episode")
	}

	payload, err := models.NewPayload(models.FeedbackType(req.Type), req.Value, req.Text, req.Action)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate feedback id: %w", err)
	}

	now := s.now().UTC()

	timestamp := now
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		timestamp = req.Timestamp.UTC()
	}

	if ft, ok := payload.(models.FreeText); ok {
		ft.Embedding = s.embed(ctx, ft.Text, userID)
		payload = ft
	}

	event := &models.FeedbackEvent{
		ID:        id,
		EpisodeID: nonEmpty(req.EpisodeID),
		Page:      page,
		Payload:   payload,
		UserID:    nonEmpty(userID),
		Timestamp: timestamp,
		CreatedAt: now,
	}

	if err := s.store.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to store feedback event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordIngested(ctx, string(event.Kind()))
	}

	s.logger.DebugContext(ctx, "feedback stored",
		"feedback_id", event.ID,
		"type", event.Kind(),
		"has_embedding", event.HasEmbedding(),
	)

	return event, nil
}

// embed returns the embedding for text, or nil when embeddings are disabled or fail.
func (s *FeedbackService) embed(ctx context.Context, text string, userID *string) []float32 {
	if s.keys == nil || s.clients == nil {
		return nil
	}

	ctx, span := observability.Tracer().Start(ctx, "feedback.embed")
	defer span.End()

	apiKey, ok := s.keys.Resolve(ctx, userID)
	if !ok {
		s.recordEmbedding(ctx, observability.EmbeddingStatusNoKey, 0)
		span.SetAttributes(attribute.String("embedding.status", observability.EmbeddingStatusNoKey))

		return nil
	}

	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.WarnContext(ctx, "embedding skipped: rate limit reached")
		s.recordEmbedding(ctx, observability.EmbeddingStatusRateLimited, 0)
		span.SetAttributes(attribute.String("embedding.status", observability.EmbeddingStatusRateLimited))

		return nil
	}

	client, err := s.clients.ForKey(ctx, apiKey)
	if err != nil {
		s.embeddingFailed(ctx, span, err, 0)

		return nil
	}

	start := time.Now()
	vector, err := client.CreateEmbedding(ctx, strings.TrimSpace(text))
	elapsed := time.Since(start)

	if err != nil {
		s.embeddingFailed(ctx, span, err, elapsed)

		return nil
	}

	if err := embeddings.CheckDimensions(vector, models.EmbeddingDimensions); err != nil {
		s.logger.WarnContext(ctx, "embedding discarded", "error", err)
		s.recordEmbedding(ctx, observability.EmbeddingStatusInvalidDimensions, elapsed)
		span.SetAttributes(attribute.String("embedding.status", observability.EmbeddingStatusInvalidDimensions))

		return nil
	}

	s.recordEmbedding(ctx, observability.EmbeddingStatusSuccess, elapsed)
	span.SetAttributes(attribute.String("embedding.status", observability.EmbeddingStatusSuccess))

	return vector
}

func (s *FeedbackService) embeddingFailed(ctx context.Context, span trace.Span, err error, elapsed time.Duration) {
	err = huberrors.NewUpstreamUnavailableError("embedding provider", err)

	s.logger.WarnContext(ctx, "embedding failed, storing feedback without embedding", "error", err)
	s.recordEmbedding(ctx, observability.EmbeddingStatusProviderError, elapsed)
	span.RecordError(err)
	span.SetStatus(codes.Error, "embedding failed")
}

func (s *FeedbackService) recordEmbedding(ctx context.Context, status string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordEmbeddingOutcome(ctx, status, elapsed)
	}
}

// nonEmpty returns nil for nil or blank strings.
func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}

	return s
}
