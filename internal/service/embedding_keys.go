package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/huberrors"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/observability"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/pkg/cache"
)

// UserSettingsStore reads per-user settings. A user without a configured key returns ""
// (or a NotFoundError).
type UserSettingsStore interface {
	GetEmbeddingAPIKey(ctx context.Context, userID string) (string, error)
}

// EmbeddingKeyResolver picks the API key used to embed a user's feedback: the user's own
// configured key when present, otherwise the process-wide default.
type EmbeddingKeyResolver struct {
	store        UserSettingsStore
	cache        *cache.LoaderCache[string, string]
	defaultKey   string
	cacheMetrics observability.CacheMetrics
	logger       *slog.Logger
}

// EmbeddingKeyResolverParams configures EmbeddingKeyResolver. Store may be nil (default key only).
type EmbeddingKeyResolverParams struct {
	Store        UserSettingsStore
	DefaultKey   string
	CacheSize    int
	CacheTTL     time.Duration
	CacheMetrics observability.CacheMetrics
	Logger       *slog.Logger
}

// NewEmbeddingKeyResolver creates an EmbeddingKeyResolver.
func NewEmbeddingKeyResolver(p EmbeddingKeyResolverParams) (*EmbeddingKeyResolver, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keyCache, err := cache.NewLoaderCache[string, string](p.CacheSize, p.CacheTTL, func(userID string) string { return userID })
	if err != nil {
		return nil, fmt.Errorf("create embedding key cache: %w", err)
	}

	return &EmbeddingKeyResolver{
		store:        p.Store,
		cache:        keyCache,
		defaultKey:   p.DefaultKey,
		cacheMetrics: p.CacheMetrics,
		logger:       logger,
	}, nil
}

// Resolve returns the API key for userID and whether one is available.
// Settings lookup failures are logged and treated as "no user key".
func (r *EmbeddingKeyResolver) Resolve(ctx context.Context, userID *string) (string, bool) {
	if userID != nil && *userID != "" && r.store != nil {
		key, hit, err := r.cache.GetWithStats(ctx, *userID, r.loadUserKey)
		if r.cacheMetrics != nil {
			if hit {
				r.cacheMetrics.RecordHit(ctx, observability.CacheEmbeddingKeys)
			} else {
				r.cacheMetrics.RecordMiss(ctx, observability.CacheEmbeddingKeys)
			}
		}

		if err != nil {
			r.logger.WarnContext(ctx, "embedding key lookup failed, falling back to default key", "error", err)
		} else if key != "" {
			return key, true
		}
	}

	if r.defaultKey != "" {
		return r.defaultKey, true
	}

	return "", false
}

func (r *EmbeddingKeyResolver) loadUserKey(ctx context.Context, userID string) (string, error) {
	key, err := r.store.GetEmbeddingAPIKey(ctx, userID)
	if errors.Is(err, huberrors.ErrNotFound) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("get embedding api key: %w", err)
	}

	return key, nil
}
