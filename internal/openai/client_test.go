package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

func newEmbeddingServer(t *testing.T, dims int, status int, calls *atomic.Int32, seen *embeddingRequest) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}

		w.Header().Set("Content-Type", "application/json")

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))

			return
		}

		vector := make([]float64, dims)
		for i := range vector {
			vector[i] = 0.01
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vector},
			},
			"usage": map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(server.Close)

	return server
}

func TestCreateEmbedding_success(t *testing.T) {
	var (
		calls atomic.Int32
		seen  embeddingRequest
	)

	server := newEmbeddingServer(t, defaultDimension, http.StatusOK, &calls, &seen)
	client := NewClient("sk-test", WithBaseURL(server.URL+"/"))

	vec, err := client.CreateEmbedding(context.Background(), "  too fast, lost me  ")
	require.NoError(t, err)
	assert.Len(t, vec, defaultDimension)
	assert.InDelta(t, 0.01, vec[0], 1e-6)

	assert.Equal(t, "too fast, lost me", seen.Input)
	assert.Equal(t, "text-embedding-3-small", seen.Model)
	assert.Equal(t, defaultDimension, seen.Dimensions)
}

func TestCreateEmbedding_dimensionMismatch(t *testing.T) {
	var calls atomic.Int32

	server := newEmbeddingServer(t, 8, http.StatusOK, &calls, nil)
	client := NewClient("sk-test", WithBaseURL(server.URL+"/"))

	_, err := client.CreateEmbedding(context.Background(), "unclear")
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCreateEmbedding_providerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := newEmbeddingServer(t, defaultDimension, http.StatusInternalServerError, &calls, nil)
	client := NewClient("sk-test", WithBaseURL(server.URL+"/"))

	_, err := client.CreateEmbedding(context.Background(), "unclear")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateEmbedding_inputValidation(t *testing.T) {
	client := NewClient("sk-test")

	_, err := client.CreateEmbedding(context.Background(), " \n ")
	require.ErrorIs(t, err, ErrEmptyInput)

	client = NewClient("sk-test", WithDimensions(0))

	_, err = client.CreateEmbedding(context.Background(), "unclear")
	require.ErrorIs(t, err, ErrInvalidDims)
}
