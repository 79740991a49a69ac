package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStats_HitRate(t *testing.T) {
	tests := []struct {
		name  string
		stats CacheStats
		want  float64
	}{
		{"50% hit rate", CacheStats{Hits: 50, Misses: 50}, 0.5},
		{"100% hit rate", CacheStats{Hits: 100}, 1.0},
		{"0% hit rate", CacheStats{Misses: 100}, 0.0},
		{"no requests", CacheStats{}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.stats.HitRate(), 0.0001)
		})
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Size)
}

func TestMemoryCache_Overwrite(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("short"), 0))
	require.NoError(t, c.Set(ctx, "k", []byte("much longer"), 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "much longer", string(got))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(len("much longer")), c.Stats().Size)
}

func TestMemoryCache_Expiration(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "old", []byte("v"), time.Millisecond))
	require.NoError(t, c.Set(ctx, "new", []byte("v"), time.Hour))

	c.mu.Lock()
	removed := c.purgeExpired(time.Now().Add(time.Second))
	c.mu.Unlock()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
	_, err := c.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestMemoryCache_FullCacheDropsExpiredFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewMemoryCache(2, time.Hour)
	defer c.Close()
	c.mu.Lock()
	c.now = func() time.Time { return now }
	c.mu.Unlock()

	require.NoError(t, c.Set(ctx, "recent", []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, "short", []byte("2"), time.Minute))

	now = now.Add(2 * time.Minute)
	require.NoError(t, c.Set(ctx, "third", []byte("3"), 0))

	_, err := c.Get(ctx, "recent")
	assert.NoError(t, err, "the live entry survives even though it is least recently used")
	assert.Equal(t, int64(0), c.Stats().Evictions)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	in := []byte("snippet")
	require.NoError(t, c.Set(ctx, "k", in, 0))
	in[0] = 'X'

	out, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "snippet", string(out))

	out[0] = 'Y'
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, "snippet", string(again))
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	// touch "a" so "b" becomes the least recently used
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, c.Delete(ctx, "a"))
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, int64(1), c.Stats().Deletes)

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().Size)
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	c := NewMemoryCache(1, time.Minute)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestKey(t *testing.T) {
	a := Key("search", "MRVL ASIC", "5")
	b := Key("search", "  mrvl asic ", "5")
	c := Key("search", "MRVL ASIC", "10")

	assert.Equal(t, a, b, "keys are normalized")
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "search:")
	// parts are separated so that ("ab","c") and ("a","bc") differ
	assert.NotEqual(t, Key("x", "ab", "c"), Key("x", "a", "bc"))
}

func TestNew(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		c, err := New(&Config{Backend: "memory", MaxEntries: 5})
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &MemoryCache{}, c)
	})

	t.Run("nil config defaults to memory", func(t *testing.T) {
		c, err := New(nil)
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &MemoryCache{}, c)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(&Config{Backend: "memcached"})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		c, err := New(&Config{Backend: "redis", RedisHost: "127.0.0.1:1", MaxEntries: 5})
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &MemoryCache{}, c)
	})
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	rc := newRedisCache(client, "sw:", 0)
	defer rc.Close()

	assert.Equal(t, "sw:search:abc", rc.key("search:abc"))
	assert.Equal(t, 30*time.Minute, rc.defaultTTL)
}
