package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/cache"
)

func newTestCache(t *testing.T, ttl time.Duration, precision int) (*cache.SpotCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewSpotCache(client, ttl, precision), mr
}

func TestSpotCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 2)
	ctx := context.Background()

	key := c.Key(37.5665, 126.9780, 5)
	ids := []uint{3, 1, 7}

	_, ok := c.Get(ctx, key)
	require.False(t, ok, "expected miss before set")

	c.Set(ctx, key, ids)

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, ids, got)
}

func TestSpotCacheKeyQuantization(t *testing.T) {
	c, _ := newTestCache(t, time.Hour, 2)

	// Points that round to the same bucket share a key
	k1 := c.Key(37.5665, 126.9780, 5)
	k2 := c.Key(37.5701, 126.9751, 5)
	require.Equal(t, k1, k2)

	// Fractional radii collapse into the next integer class
	require.Equal(t, c.Key(37.5665, 126.9780, 4.2), c.Key(37.5665, 126.9780, 5))

	// Different radius class means a different bucket
	require.NotEqual(t, c.Key(37.5665, 126.9780, 5), c.Key(37.5665, 126.9780, 10))
}

func TestSpotCacheTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t, time.Minute, 2)
	ctx := context.Background()

	key := c.Key(0, 0, 5)
	c.Set(ctx, key, []uint{1})

	_, ok := c.Get(ctx, key)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok = c.Get(ctx, key)
	require.False(t, ok, "expected miss after TTL")
}

func TestSpotCacheBackendDownIsMiss(t *testing.T) {
	c, mr := newTestCache(t, time.Hour, 2)
	ctx := context.Background()

	key := c.Key(0, 0, 5)
	c.Set(ctx, key, []uint{1, 2})

	mr.Close()

	_, ok := c.Get(ctx, key)
	require.False(t, ok, "backend failure must read as a miss")

	// Writes after failure must not panic either
	c.Set(ctx, key, []uint{3})
}

func TestSpotCacheNilClientDisabled(t *testing.T) {
	c := cache.NewSpotCache(nil, time.Hour, 2)
	ctx := context.Background()

	key := c.Key(0, 0, 5)
	c.Set(ctx, key, []uint{1})

	_, ok := c.Get(ctx, key)
	require.False(t, ok)
}

func TestOpenRedisEmptyAddr(t *testing.T) {
	require.Nil(t, cache.OpenRedis("", "", 0))
}
