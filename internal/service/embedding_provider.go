package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ErrEmptyAPIKey is returned when a client is requested for an empty key.
var ErrEmptyAPIKey = errors.New("embedding api key is empty")

// NewEmbeddingClientFunc builds a provider client for one API key.
type NewEmbeddingClientFunc func(ctx context.Context, apiKey string) (EmbeddingClient, error)

// CachingClientFactory builds provider clients on demand and keeps the most recently used
// ones, keyed by a hash of the API key, so per-user keys do not rebuild SDK clients per request.
type CachingClientFactory struct {
	newClient NewEmbeddingClientFunc
	clients   *lru.Cache[string, EmbeddingClient]
	group     singleflight.Group
}

// NewCachingClientFactory creates a factory holding at most maxClients clients.
func NewCachingClientFactory(newClient NewEmbeddingClientFunc, maxClients int) (*CachingClientFactory, error) {
	clients, err := lru.New[string, EmbeddingClient](maxClients)
	if err != nil {
		return nil, fmt.Errorf("create embedding client cache: %w", err)
	}

	return &CachingClientFactory{newClient: newClient, clients: clients}, nil
}

// ForKey returns the cached client for apiKey, building it on first use.
func (f *CachingClientFactory) ForKey(ctx context.Context, apiKey string) (EmbeddingClient, error) {
	if apiKey == "" {
		return nil, ErrEmptyAPIKey
	}

	cacheKey := hashAPIKey(apiKey)
	if client, ok := f.clients.Get(cacheKey); ok {
		return client, nil
	}

	v, err, _ := f.group.Do(cacheKey, func() (any, error) {
		client, buildErr := f.newClient(ctx, apiKey)
		if buildErr != nil {
			return nil, buildErr
		}

		f.clients.Add(cacheKey, client)

		return client, nil
	})
	if err != nil {
		return nil, fmt.Errorf("build embedding client: %w", err)
	}

	client, _ := v.(EmbeddingClient)

	return client, nil
}

func hashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))

	return hex.EncodeToString(sum[:])
}
