package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/huberrors"
)

func newTestResolver(t *testing.T, store UserSettingsStore, defaultKey string) *EmbeddingKeyResolver {
	t.Helper()

	r, err := NewEmbeddingKeyResolver(EmbeddingKeyResolverParams{
		Store:      store,
		DefaultKey: defaultKey,
		CacheSize:  10,
		CacheTTL:   time.Minute,
	})
	require.NoError(t, err)

	return r
}

func TestEmbeddingKeyResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("user key wins over default", func(t *testing.T) {
		store := &fakeSettingsStore{keys: map[string]string{"u1": "sk-user"}}
		r := newTestResolver(t, store, "sk-default")

		key, ok := r.Resolve(ctx, strPtr("u1"))
		assert.True(t, ok)
		assert.Equal(t, "sk-user", key)
	})

	t.Run("falls back to default without user key", func(t *testing.T) {
		store := &fakeSettingsStore{keys: map[string]string{}}
		r := newTestResolver(t, store, "sk-default")

		key, ok := r.Resolve(ctx, strPtr("u2"))
		assert.True(t, ok)
		assert.Equal(t, "sk-default", key)

		key, ok = r.Resolve(ctx, nil)
		assert.True(t, ok)
		assert.Equal(t, "sk-default", key)
	})

	t.Run("not found and lookup errors fall back", func(t *testing.T) {
		for _, err := range []error{huberrors.NewNotFoundError("user settings", "no settings"), errors.New("db down")} {
			r := newTestResolver(t, &fakeSettingsStore{err: err}, "sk-default")

			key, ok := r.Resolve(ctx, strPtr("u3"))
			assert.True(t, ok)
			assert.Equal(t, "sk-default", key)
		}
	})

	t.Run("no key anywhere", func(t *testing.T) {
		r := newTestResolver(t, &fakeSettingsStore{}, "")

		_, ok := r.Resolve(ctx, strPtr("u4"))
		assert.False(t, ok)

		_, ok = r.Resolve(ctx, nil)
		assert.False(t, ok)
	})

	t.Run("user keys are cached", func(t *testing.T) {
		store := &fakeSettingsStore{keys: map[string]string{"u5": "sk-user"}}
		r := newTestResolver(t, store, "")

		for range 3 {
			key, ok := r.Resolve(ctx, strPtr("u5"))
			require.True(t, ok)
			assert.Equal(t, "sk-user", key)
		}

		assert.Equal(t, 1, store.calls)
	})

	t.Run("invalid cache size", func(t *testing.T) {
		_, err := NewEmbeddingKeyResolver(EmbeddingKeyResolverParams{CacheSize: 0, CacheTTL: time.Minute})
		require.Error(t, err)
	})
}

func TestCachingClientFactory_ForKey(t *testing.T) {
	ctx := context.Background()

	t.Run("reuses clients per key", func(t *testing.T) {
		var mu sync.Mutex
		built := map[string]int{}

		f, err := NewCachingClientFactory(func(_ context.Context, apiKey string) (EmbeddingClient, error) {
			mu.Lock()
			defer mu.Unlock()
			built[apiKey]++

			return &fakeEmbeddingClient{}, nil
		}, 4)
		require.NoError(t, err)

		c1, err := f.ForKey(ctx, "sk-a")
		require.NoError(t, err)
		c2, err := f.ForKey(ctx, "sk-a")
		require.NoError(t, err)
		c3, err := f.ForKey(ctx, "sk-b")
		require.NoError(t, err)

		assert.Same(t, c1, c2)
		assert.NotSame(t, c1, c3)
		assert.Equal(t, map[string]int{"sk-a": 1, "sk-b": 1}, built)
	})

	t.Run("empty key", func(t *testing.T) {
		f, err := NewCachingClientFactory(func(context.Context, string) (EmbeddingClient, error) {
			return &fakeEmbeddingClient{}, nil
		}, 1)
		require.NoError(t, err)

		_, err = f.ForKey(ctx, "")
		require.ErrorIs(t, err, ErrEmptyAPIKey)
	})

	t.Run("build errors are not cached", func(t *testing.T) {
		calls := 0
		f, err := NewCachingClientFactory(func(context.Context, string) (EmbeddingClient, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("invalid key")
			}

			return &fakeEmbeddingClient{}, nil
		}, 1)
		require.NoError(t, err)

		_, err = f.ForKey(ctx, "sk")
		require.Error(t, err)

		client, err := f.ForKey(ctx, "sk")
		require.NoError(t, err)
		assert.NotNil(t, client)
	})
}
