package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/huberrors"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/observability"
)

// NeighborSearcher queries the vector index for free-text events near vector, excluding
// excludeID and events with empty text. Results are ordered by descending similarity.
type NeighborSearcher interface {
	NearestFreeText(
		ctx context.Context, vector []float32, excludeID uuid.UUID, numCandidates, limit int,
	) ([]models.Neighbor, error)
}

// ClusteringOptions holds the clustering constants.
type ClusteringOptions struct {
	// NumCandidates is the candidate pool requested from the approximate index.
	NumCandidates int
	// NeighborLimit is the number of neighbours returned per seed.
	NeighborLimit int
	// MaxFold caps how many of the returned neighbours may join one cluster.
	MaxFold int
	// MaxClusters caps the number of clusters returned.
	MaxClusters int
	// MinSingletonRunes is the seed text length a single-member cluster must exceed to be kept.
	MinSingletonRunes int
	// RepresentativeRunes is the length of the representative excerpt.
	RepresentativeRunes int
}

// DefaultClusteringOptions returns 50 candidates, 10 neighbours, 5 folds, 10 clusters,
// singletons over 50 runes and 100-rune representatives.
func DefaultClusteringOptions() ClusteringOptions {
	return ClusteringOptions{
		NumCandidates:       50,
		NeighborLimit:       10,
		MaxFold:             5,
		MaxClusters:         10,
		MinSingletonRunes:   50,
		RepresentativeRunes: 100,
	}
}

// ClusteringService groups similar free-text feedback with one neighbour query per seed.
//
// The pass is greedy and order-dependent: items are visited in input order and each seed
// claims its unprocessed neighbours before later items are considered, so reordering the
// input can change the result. Given the same input order and the same neighbour answers
// the output is identical.
type ClusteringService struct {
	searcher NeighborSearcher
	opts     ClusteringOptions
	metrics  observability.InsightsMetrics
	logger   *slog.Logger
}

// NewClusteringService creates a ClusteringService. searcher nil makes every item a
// singleton; metrics may be nil.
func NewClusteringService(
	searcher NeighborSearcher, opts ClusteringOptions, metrics observability.InsightsMetrics, logger *slog.Logger,
) *ClusteringService {
	if logger == nil {
		logger = slog.Default()
	}

	return &ClusteringService{searcher: searcher, opts: opts, metrics: metrics, logger: logger}
}

// Cluster groups items into at most MaxClusters clusters ordered by descending count.
// Neighbour search failures degrade the seed to a singleton; Cluster never fails.
func (s *ClusteringService) Cluster(ctx context.Context, items []models.FeedbackEvent) []models.FeedbackCluster {
	ctx, span := observability.Tracer().Start(ctx, "feedback.cluster")
	defer span.End()

	span.SetAttributes(attribute.Int("cluster.items", len(items)))

	// First occurrence wins if an ID is repeated.
	indexByID := make(map[uuid.UUID]int, len(items))
	for i := range items {
		if _, seen := indexByID[items[i].ID]; !seen {
			indexByID[items[i].ID] = i
		}
	}

	processed := make([]bool, len(items))
	kept := make([]models.FeedbackCluster, 0)
	ordinal := 0

	for i := range items {
		if processed[i] {
			continue
		}

		processed[i] = true
		seed := items[i]
		seedText := freeTextOf(seed).Text

		cluster := models.FeedbackCluster{
			ID:             ordinal,
			Representative: truncateRunes(seedText, s.opts.RepresentativeRunes),
			Count:          1,
			Feedback:       []models.FeedbackEvent{seed},
			EpisodeIDs:     []string{},
		}
		cluster.EpisodeIDs = appendEpisode(cluster.EpisodeIDs, seed.EpisodeID)
		ordinal++

		for _, n := range s.neighbors(ctx, seed) {
			j, ok := indexByID[n.ID]
			if !ok || processed[j] {
				continue
			}

			processed[j] = true
			cluster.Count++
			cluster.Feedback = append(cluster.Feedback, items[j])
			cluster.EpisodeIDs = appendEpisode(cluster.EpisodeIDs, items[j].EpisodeID)
		}

		if cluster.Count > 1 || utf8.RuneCountInString(seedText) > s.opts.MinSingletonRunes {
			kept = append(kept, cluster)
		}
	}

	slices.SortStableFunc(kept, func(a, b models.FeedbackCluster) int {
		return cmp.Compare(b.Count, a.Count)
	})

	if len(kept) > s.opts.MaxClusters {
		kept = kept[:s.opts.MaxClusters]
	}

	span.SetAttributes(attribute.Int("cluster.count", len(kept)))

	if s.metrics != nil {
		s.metrics.RecordClusters(ctx, len(kept))
	}

	return kept
}

// neighbors returns at most MaxFold neighbours of seed, or nil when seed has no embedding
// or the search fails.
func (s *ClusteringService) neighbors(ctx context.Context, seed models.FeedbackEvent) []models.Neighbor {
	embedding := freeTextOf(seed).Embedding
	if len(embedding) == 0 || s.searcher == nil {
		return nil
	}

	ctx, span := observability.Tracer().Start(ctx, "feedback.neighbor_search")
	defer span.End()

	start := time.Now()
	neighbors, err := s.searcher.NearestFreeText(ctx, embedding, seed.ID, s.opts.NumCandidates, s.opts.NeighborLimit)
	elapsed := time.Since(start)

	if err != nil {
		err = huberrors.NewUpstreamUnavailableError("vector search", err)

		s.logger.WarnContext(ctx, "neighbor search failed, keeping seed as singleton",
			"feedback_id", seed.ID,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "neighbor search failed")

		if s.metrics != nil {
			s.metrics.RecordNeighborSearch(ctx, observability.NeighborSearchStatusFailed, elapsed)
		}

		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordNeighborSearch(ctx, observability.NeighborSearchStatusSuccess, elapsed)
	}

	span.SetAttributes(attribute.Int("neighbor.count", len(neighbors)))

	if len(neighbors) > s.opts.MaxFold {
		neighbors = neighbors[:s.opts.MaxFold]
	}

	return neighbors
}

func freeTextOf(event models.FeedbackEvent) models.FreeText {
	ft, _ := event.FreeText()

	return ft
}

func appendEpisode(ids []string, episodeID *string) []string {
	if episodeID == nil || *episodeID == "" || slices.Contains(ids, *episodeID) {
		return ids
	}

	return append(ids, *episodeID)
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}

	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}

		count++
	}

	return s
}
