package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/config"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
)

const (
	testInsightsKey   = "insights-key"
	testSessionSecret = "session-secret"
)

type memoryBackend struct {
	mu      sync.Mutex
	events  []models.FeedbackEvent
	pingErr error
}

func (m *memoryBackend) Create(_ context.Context, event *models.FeedbackEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, *event)

	return nil
}

func (m *memoryBackend) ListSince(_ context.Context, since time.Time, episodeID *string) ([]models.FeedbackEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.FeedbackEvent

	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if e.Timestamp.Before(since) {
			continue
		}

		if episodeID != nil && (e.EpisodeID == nil || *e.EpisodeID != *episodeID) {
			continue
		}

		out = append(out, e)
	}

	return out, nil
}

func (m *memoryBackend) NearestFreeText(context.Context, []float32, uuid.UUID, int, int) ([]models.Neighbor, error) {
	return nil, nil
}

func (m *memoryBackend) GetSummaries(context.Context, []string) (map[string]models.EpisodeSummary, error) {
	return map[string]models.EpisodeSummary{}, nil
}

func (m *memoryBackend) GetEmbeddingAPIKey(context.Context, string) (string, error) {
	return "", nil
}

func (m *memoryBackend) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pingErr
}

func (m *memoryBackend) setPingErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pingErr = err
}

func (m *memoryBackend) snapshot() []models.FeedbackEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.FeedbackEvent(nil), m.events...)
}

func (m *memoryBackend) backend() *backend {
	return &backend{
		feedback: m,
		searcher: m,
		episodes: m,
		settings: m,
		pinger:   m,
		close:    func(context.Context) {},
	}
}

func newTestServer(t *testing.T, mem *memoryBackend) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		InsightsAPIKey:       testInsightsKey,
		SessionSecret:        testSessionSecret,
		MaxRequestBodyBytes:  1 << 10,
		ClusterNumCandidates: 50,
		ClusterNeighborLimit: 10,
		ClusterMaxFold:       5,
	}

	handler, err := newHandler(cfg, mem.backend(), nil, nil, nil, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func postFeedback(t *testing.T, srv *httptest.Server, body, session string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/api/feedback", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}

	return do(t, req)
}

func getInsights(t *testing.T, srv *httptest.Server, query, key string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/api/feedback/insights"+query, http.NoBody)
	require.NoError(t, err)

	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	return do(t, req)
}

func TestAPI_IngestThenInsights(t *testing.T) {
	mem := &memoryBackend{}
	srv := newTestServer(t, mem)

	for _, body := range []string{
		`{"page":"episode","type":"satisfaction","value":"helpful","episodeId":"ep-1"}`,
		`{"page":"episode","type":"satisfaction","value":"helpful","episodeId":"ep-1"}`,
		`{"page":"home","type":"satisfaction","value":"notHelpful"}`,
		`{"page":"home","type":"behavior","action":"video_completed"}`,
	} {
		resp := postFeedback(t, srv, body, "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created models.CreateFeedbackResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		assert.True(t, created.Success)
		assert.NotEqual(t, uuid.Nil, created.ID)
	}

	resp := getInsights(t, srv, "?days=7", testInsightsKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var insights models.Insights
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&insights))
	assert.Equal(t, 4, insights.TotalFeedback)
	assert.Equal(t, 3, insights.ByType["satisfaction"])
	assert.Equal(t, 1, insights.BehaviorMetrics["video_completed"])
	assert.Equal(t, 2, insights.Satisfaction.Helpful)
	assert.Equal(t, 1, insights.Satisfaction.NotHelpful)
	assert.InDelta(t, 0.6667, insights.Satisfaction.Ratio, 1e-9)
	require.Len(t, insights.TopEpisodes, 1)
	assert.Equal(t, "ep-1", insights.TopEpisodes[0].EpisodeID)
	assert.NotNil(t, insights.FeedbackClusters)
}

func TestAPI_SessionUserIsRecorded(t *testing.T) {
	mem := &memoryBackend{}
	srv := newTestServer(t, mem)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSessionSecret))
	require.NoError(t, err)

	resp := postFeedback(t, srv, `{"page":"home","type":"freeText","text":"more on indexes please"}`, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	events := mem.snapshot()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].UserID)
	assert.Equal(t, "user-42", *events[0].UserID)

	// A bad token degrades to an anonymous request.
	resp = postFeedback(t, srv, `{"page":"home","type":"freeText","text":"again"}`, "not-a-jwt")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	events = mem.snapshot()
	require.Len(t, events, 2)
	assert.Nil(t, events[1].UserID)
}

func TestAPI_Errors(t *testing.T) {
	srv := newTestServer(t, &memoryBackend{})

	tests := []struct {
		name   string
		resp   func() *http.Response
		status int
	}{
		{
			name:   "malformed json",
			resp:   func() *http.Response { return postFeedback(t, srv, `{`, "") },
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid type",
			resp:   func() *http.Response { return postFeedback(t, srv, `{"page":"home","type":"rating"}`, "") },
			status: http.StatusBadRequest,
		},
		{
			name:   "missing satisfaction value",
			resp:   func() *http.Response { return postFeedback(t, srv, `{"page":"home","type":"satisfaction"}`, "") },
			status: http.StatusBadRequest,
		},
		{
			name: "body too large",
			resp: func() *http.Response {
				return postFeedback(t, srv, `{"page":"home","type":"freeText","text":"`+strings.Repeat("x", 2048)+`"}`, "")
			},
			status: http.StatusRequestEntityTooLarge,
		},
		{
			name:   "insights without key",
			resp:   func() *http.Response { return getInsights(t, srv, "", "") },
			status: http.StatusUnauthorized,
		},
		{
			name:   "insights with wrong key",
			resp:   func() *http.Response { return getInsights(t, srv, "", "nope") },
			status: http.StatusUnauthorized,
		},
		{
			name:   "days out of range",
			resp:   func() *http.Response { return getInsights(t, srv, "?days=400", testInsightsKey) },
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAPI_Health(t *testing.T) {
	mem := &memoryBackend{}
	srv := newTestServer(t, mem)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/health", http.NoBody)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(t, req).StatusCode)

	mem.setPingErr(errors.New("connection refused"))
	req, err = http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/health", http.NoBody)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, req).StatusCode)
}

func TestAPI_MetricsRouteOnlyWhenEnabled(t *testing.T) {
	srv := newTestServer(t, &memoryBackend{})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/metrics", http.NoBody)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, do(t, req).StatusCode)
}

func TestNewEmbeddingClientFunc(t *testing.T) {
	fn, err := newEmbeddingClientFunc(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, fn)

	fn, err = newEmbeddingClientFunc(&config.Config{EmbeddingProvider: config.EmbeddingProviderOpenAI, EmbeddingModel: "text-embedding-3-small"})
	require.NoError(t, err)
	require.NotNil(t, fn)

	client, err := fn(context.Background(), "sk-test")
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = newEmbeddingClientFunc(&config.Config{EmbeddingProvider: "cohere"})
	require.ErrorIs(t, err, errUnsupportedEmbeddingProvider)
}
