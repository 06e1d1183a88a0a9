package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/huberrors"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/observability"
)

// Insights result bounds.
const (
	maxTopEpisodes       = 10
	maxConfusionHotspots = 5
)

// ConfusionKeywords are the phrases counted as confusion hotspots, in tie-break order.
var ConfusionKeywords = []string{
	"confused",
	"confusing",
	"unclear",
	"don't understand",
	"doesn't make sense",
	"hard to follow",
	"too fast",
	"lost me",
}

// EpisodeStore resolves episode references. Unknown IDs are absent from the result.
type EpisodeStore interface {
	GetSummaries(ctx context.Context, ids []string) (map[string]models.EpisodeSummary, error)
}

// Clusterer groups embedded free-text feedback.
type Clusterer interface {
	Cluster(ctx context.Context, items []models.FeedbackEvent) []models.FeedbackCluster
}

// InsightsService aggregates feedback over a trailing window.
type InsightsService struct {
	store     FeedbackStore
	episodes  EpisodeStore
	clusterer Clusterer
	metrics   observability.InsightsMetrics
	now       func() time.Time
	logger    *slog.Logger
}

// InsightsServiceParams configures InsightsService. Episodes, Clusterer and Metrics may be nil.
type InsightsServiceParams struct {
	Store     FeedbackStore
	Episodes  EpisodeStore
	Clusterer Clusterer
	Metrics   observability.InsightsMetrics
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewInsightsService creates an InsightsService.
func NewInsightsService(p InsightsServiceParams) *InsightsService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	return &InsightsService{
		store:     p.Store,
		episodes:  p.Episodes,
		clusterer: p.Clusterer,
		metrics:   p.Metrics,
		now:       now,
		logger:    logger,
	}
}

// GetInsights aggregates the events whose timestamp falls in the last q.Days days
// (default 7), optionally restricted to one episode.
func (s *InsightsService) GetInsights(ctx context.Context, q models.InsightsQuery) (*models.Insights, error) {
	days := q.Days
	if days == 0 {
		days = models.DefaultInsightsDays
	}

	if days < 1 || days > models.MaxInsightsDays {
		return nil, huberrors.NewValidationError("days", fmt.Sprintf("days must be between 1 and %d", models.MaxInsightsDays))
	}

	episodeID := nonEmpty(q.EpisodeID)

	ctx, span := observability.Tracer().Start(ctx, "feedback.insights")
	defer span.End()

	span.SetAttributes(attribute.Int("insights.days", days))

	start := time.Now()
	until := s.now().UTC()
	since := until.Add(-time.Duration(days) * 24 * time.Hour)

	events, err := s.store.ListSince(ctx, since, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback events: %w", err)
	}

	span.SetAttributes(attribute.Int("insights.events", len(events)))

	insights := &models.Insights{
		Period:            models.Period{Days: days, Since: since, Until: until, EpisodeID: episodeID},
		TotalFeedback:     len(events),
		ByType:            make(map[string]int),
		ByPage:            make(map[string]int),
		BehaviorMetrics:   make(map[string]int),
		TopEpisodes:       []models.TopEpisode{},
		ConfusionHotspots: []models.ConfusionHotspot{},
		FeedbackClusters:  []models.FeedbackCluster{},
	}

	episodeCounts := make(map[string]int)
	keywordCounts := make([]int, len(ConfusionKeywords))
	embedded := make([]models.FeedbackEvent, 0)

	for _, event := range events {
		insights.ByType[string(event.Kind())]++
		insights.ByPage[string(event.Page)]++

		if event.EpisodeID != nil && *event.EpisodeID != "" {
			episodeCounts[*event.EpisodeID]++
		}

		switch p := event.Payload.(type) {
		case models.Satisfaction:
			switch p.Value {
			case models.SatisfactionHelpful:
				insights.Satisfaction.Helpful++
			case models.SatisfactionNotHelpful:
				insights.Satisfaction.NotHelpful++
			}
		case models.Behavior:
			insights.BehaviorMetrics[p.Action]++
		case models.FreeText:
			lower := strings.ToLower(p.Text)
			for i, keyword := range ConfusionKeywords {
				if strings.Contains(lower, keyword) {
					keywordCounts[i]++
				}
			}

			if len(p.Embedding) > 0 {
				embedded = append(embedded, event)
			}
		}
	}

	insights.Satisfaction.Ratio = satisfactionRatio(insights.Satisfaction.Helpful, insights.Satisfaction.NotHelpful)
	insights.TopEpisodes = s.topEpisodes(ctx, episodeCounts)
	insights.ConfusionHotspots = confusionHotspots(keywordCounts)

	if len(embedded) > 0 && s.clusterer != nil {
		insights.FeedbackClusters = s.clusterer.Cluster(ctx, embedded)
	}

	insights.GeneratedAt = s.now().UTC()

	if s.metrics != nil {
		s.metrics.RecordInsightsDuration(ctx, time.Since(start))
	}

	return insights, nil
}

// topEpisodes ranks episodes by count desc, then id asc, and annotates them with summaries.
func (s *InsightsService) topEpisodes(ctx context.Context, counts map[string]int) []models.TopEpisode {
	top := make([]models.TopEpisode, 0, len(counts))
	for id, count := range counts {
		top = append(top, models.TopEpisode{EpisodeID: id, Count: count})
	}

	slices.SortFunc(top, func(a, b models.TopEpisode) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}

		return cmp.Compare(a.EpisodeID, b.EpisodeID)
	})

	if len(top) > maxTopEpisodes {
		top = top[:maxTopEpisodes]
	}

	if len(top) == 0 || s.episodes == nil {
		return top
	}

	ids := make([]string, len(top))
	for i := range top {
		ids[i] = top[i].EpisodeID
	}

	summaries, err := s.episodes.GetSummaries(ctx, ids)
	if err != nil {
		s.logger.WarnContext(ctx, "episode lookup failed, returning top episodes without details", "error", err)

		return top
	}

	for i := range top {
		if summary, ok := summaries[top[i].EpisodeID]; ok {
			top[i].Episode = &summary
		}
	}

	return top
}

func confusionHotspots(counts []int) []models.ConfusionHotspot {
	hotspots := make([]models.ConfusionHotspot, 0, len(counts))
	for i, count := range counts {
		if count > 0 {
			hotspots = append(hotspots, models.ConfusionHotspot{Keyword: ConfusionKeywords[i], Count: count})
		}
	}

	slices.SortStableFunc(hotspots, func(a, b models.ConfusionHotspot) int {
		return cmp.Compare(b.Count, a.Count)
	})

	if len(hotspots) > maxConfusionHotspots {
		hotspots = hotspots[:maxConfusionHotspots]
	}

	return hotspots
}

// satisfactionRatio returns helpful/(helpful+notHelpful) rounded to 4 decimals, or 0 with no votes.
func satisfactionRatio(helpful, notHelpful int) float64 {
	total := helpful + notHelpful
	if total == 0 {
		return 0
	}

	return math.Round(float64(helpful)/float64(total)*10000) / 10000
}
