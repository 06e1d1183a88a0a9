package models

import "time"

// Insights query bounds.
const (
	DefaultInsightsDays = 7
	MaxInsightsDays     = 365
)

// InsightsQuery holds the query parameters of GET /api/feedback/insights.
type InsightsQuery struct {
	Days      int     `form:"days" validate:"omitempty,min=1,max=365"`
	EpisodeID *string `form:"episodeId" validate:"omitempty,min=1,max=255,no_null_bytes"`
}

// Insights is the aggregation over one trailing window.
type Insights struct {
	Period            Period              `json:"period"`
	TotalFeedback     int                 `json:"totalFeedback"`
	ByType            map[string]int      `json:"byType"`
	ByPage            map[string]int      `json:"byPage"`
	Satisfaction      SatisfactionSummary `json:"satisfaction"`
	BehaviorMetrics   map[string]int      `json:"behaviorMetrics"`
	TopEpisodes       []TopEpisode        `json:"topEpisodes"`
	ConfusionHotspots []ConfusionHotspot  `json:"confusionHotspots"`
	FeedbackClusters  []FeedbackCluster   `json:"feedbackClusters"`
	GeneratedAt       time.Time           `json:"generatedAt"`
}

// Period echoes the window an Insights value was computed over.
type Period struct {
	Days      int       `json:"days"`
	Since     time.Time `json:"since"`
	Until     time.Time `json:"until"`
	EpisodeID *string   `json:"episodeId,omitempty"`
}

// SatisfactionSummary counts satisfaction votes. Ratio is helpful/(helpful+notHelpful),
// rounded to 4 decimals, and 0 when there are no votes.
type SatisfactionSummary struct {
	Helpful    int     `json:"helpful"`
	NotHelpful int     `json:"notHelpful"`
	Ratio      float64 `json:"ratio"`
}

// TopEpisode is an episode ranked by feedback volume. Episode is nil when the
// reference has no matching episode.
type TopEpisode struct {
	EpisodeID string          `json:"episodeId"`
	Count     int             `json:"count"`
	Episode   *EpisodeSummary `json:"episode"`
}

// ConfusionHotspot counts free-text events containing a confusion keyword.
type ConfusionHotspot struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// FeedbackCluster is a runtime grouping of semantically similar free-text feedback.
// It is never persisted.
type FeedbackCluster struct {
	ID             int             `json:"id"`
	Representative string          `json:"representative"`
	Count          int             `json:"count"`
	Feedback       []FeedbackEvent `json:"feedback"`
	EpisodeIDs     []string        `json:"episodeIds"`
}
