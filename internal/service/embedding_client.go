package service

import "context"

// EmbeddingClient generates embedding vectors for text.
// Implemented by provider-specific clients (e.g. OpenAI, Google Gemini).
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// EmbeddingClientFactory returns a provider client bound to one API key.
type EmbeddingClientFactory interface {
	ForKey(ctx context.Context, apiKey string) (EmbeddingClient, error)
}

// RateLimiter gates outbound embedding calls. *rate.Limiter satisfies it.
type RateLimiter interface {
	Allow() bool
}
