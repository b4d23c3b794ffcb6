package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (CacheClient, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheClient(rdb), mr
}

// Test round-tripping a template through the cache.
func TestCache_SetGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	in := &Template{Name: "order_confirmation", Language: "es", IsActive: true}
	require.NoError(t, cache.Set(ctx, CacheKeyTemplateName+":order_confirmation", in, TTLTemplate))

	var out Template
	require.NoError(t, cache.Get(ctx, CacheKeyTemplateName+":order_confirmation", &out))
	assert.Equal(t, "order_confirmation", out.Name)
	assert.Equal(t, "es", out.Language)
	assert.True(t, out.IsActive)
}

// Test that a missing key returns ErrCacheNotFound.
func TestCache_GetMissing(t *testing.T) {
	cache, _ := newTestCache(t)

	var out Template
	err := cache.Get(context.Background(), "template:name:missing", &out)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

// Test deletion and TTL expiry.
func TestCache_DeleteAndExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "template:name:tmp", &Template{Name: "tmp"}, time.Minute))
	require.NoError(t, cache.Delete(ctx, "template:name:tmp"))

	var out Template
	assert.ErrorIs(t, cache.Get(ctx, "template:name:tmp", &out), ErrCacheNotFound)

	require.NoError(t, cache.Set(ctx, "template:name:exp", &Template{Name: "exp"}, time.Minute))
	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, cache.Get(ctx, "template:name:exp", &out), ErrCacheNotFound)
}

// Test graceful failure when Redis is unavailable.
func TestCache_NilClient(t *testing.T) {
	cache := NewCacheClient(nil)
	ctx := context.Background()

	var out Template
	assert.Error(t, cache.Get(ctx, "k", &out))
	assert.Error(t, cache.Set(ctx, "k", &out, time.Minute))
	assert.Error(t, cache.Delete(ctx, "k"))
}
