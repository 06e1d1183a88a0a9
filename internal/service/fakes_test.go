package service

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
)

// memoryFeedbackStore is an in-memory FeedbackStore ordered like the database stores.
type memoryFeedbackStore struct {
	mu        sync.Mutex
	events    []models.FeedbackEvent
	createErr error
	listErr   error
}

func (m *memoryFeedbackStore) Create(_ context.Context, event *models.FeedbackEvent) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, *event)

	return nil
}

func (m *memoryFeedbackStore) ListSince(_ context.Context, since time.Time, episodeID *string) ([]models.FeedbackEvent, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.FeedbackEvent, 0, len(m.events))
	for _, e := range m.events {
		if e.Timestamp.Before(since) {
			continue
		}

		if episodeID != nil && (e.EpisodeID == nil || *e.EpisodeID != *episodeID) {
			continue
		}

		out = append(out, e)
	}

	slices.SortStableFunc(out, func(a, b models.FeedbackEvent) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}

		return cmp.Compare(b.ID.String(), a.ID.String())
	})

	return out, nil
}

type fakeKeyResolver struct {
	key string
}

func (f fakeKeyResolver) Resolve(_ context.Context, _ *string) (string, bool) {
	return f.key, f.key != ""
}

type fakeEmbeddingClient struct {
	createFunc func(ctx context.Context, input string) ([]float32, error)
	inputs     []string
}

func (f *fakeEmbeddingClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	f.inputs = append(f.inputs, input)
	if f.createFunc != nil {
		return f.createFunc(ctx, input)
	}

	return unitVector(0), nil
}

type staticClientFactory struct {
	client EmbeddingClient
	err    error
}

func (f staticClientFactory) ForKey(_ context.Context, _ string) (EmbeddingClient, error) {
	return f.client, f.err
}

type fixedLimiter bool

func (l fixedLimiter) Allow() bool { return bool(l) }

// fakeSearcher answers neighbour queries from a per-seed table.
type fakeSearcher struct {
	neighbors map[uuid.UUID][]models.Neighbor
	failFor   map[uuid.UUID]error
	calls     []uuid.UUID
	lastArgs  [2]int
}

func (f *fakeSearcher) NearestFreeText(
	_ context.Context, _ []float32, excludeID uuid.UUID, numCandidates, limit int,
) ([]models.Neighbor, error) {
	f.calls = append(f.calls, excludeID)
	f.lastArgs = [2]int{numCandidates, limit}

	if err := f.failFor[excludeID]; err != nil {
		return nil, err
	}

	return f.neighbors[excludeID], nil
}

type fakeEpisodeStore struct {
	summaries map[string]models.EpisodeSummary
	err       error
	requested []string
}

func (f *fakeEpisodeStore) GetSummaries(_ context.Context, ids []string) (map[string]models.EpisodeSummary, error) {
	f.requested = ids
	if f.err != nil {
		return nil, f.err
	}

	out := make(map[string]models.EpisodeSummary)
	for _, id := range ids {
		if s, ok := f.summaries[id]; ok {
			out[id] = s
		}
	}

	return out, nil
}

type fakeSettingsStore struct {
	mu    sync.Mutex
	keys  map[string]string
	err   error
	calls int
}

func (f *fakeSettingsStore) GetEmbeddingAPIKey(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return "", f.err
	}

	return f.keys[userID], nil
}

// unitVector returns a 1536-dim vector with a single 1 at index i.
func unitVector(i int) []float32 {
	v := make([]float32, models.EmbeddingDimensions)
	v[i%models.EmbeddingDimensions] = 1

	return v
}

func strPtr(s string) *string { return &s }

func freeTextEvent(text string, episodeID *string, embedded bool) models.FeedbackEvent {
	ft := models.FreeText{Text: text}
	if embedded {
		ft.Embedding = unitVector(0)
	}

	return models.FeedbackEvent{
		ID:        uuid.Must(uuid.NewV7()),
		EpisodeID: episodeID,
		Page:      models.PageEpisode,
		Payload:   ft,
		Timestamp: time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
}
