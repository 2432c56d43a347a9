package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", "value1", 0))
	val, found, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	val, found, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	require.NoError(t, c.Set(ctx, "to-delete", "x", 0))
	require.NoError(t, c.Delete(ctx, "to-delete"))
	_, found, err = c.Get(ctx, "to-delete")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "key2", "value2", 0))
	require.NoError(t, c.Clear(ctx))
	_, found, err = c.Get(ctx, "key2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(Config{DefaultTTL: time.Minute, CleanupInterval: time.Second})
	require.NoError(t, err)
	exerciseCache(t, c)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "expire-soon", "tmp", 50*time.Millisecond))
	time.Sleep(120 * time.Millisecond)
	_, found, err := c.Get(ctx, "expire-soon")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(Config{RedisAddr: mr.Addr(), KeyPrefix: "test", DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer c.(*RedisCache).Close()

	exerciseCache(t, c)

	// Clear 只删除本前缀
	mr.Set("other:key", "keep")
	require.NoError(t, c.Set(context.Background(), "a", "1", 0))
	require.NoError(t, c.Clear(context.Background()))
	assert.True(t, mr.Exists("other:key"))
	assert.False(t, mr.Exists("test:a"))

	// 过期由 Redis 处理
	require.NoError(t, c.Set(context.Background(), "ttl", "v", time.Second))
	mr.FastForward(2 * time.Second)
	_, found, err := c.Get(context.Background(), "ttl")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCacheUnavailable(t *testing.T) {
	_, err := NewRedisCache(Config{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestCacheFactory(t *testing.T) {
	c, err := NewCache(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	mr := miniredis.RunT(t)
	c, err = NewCache(Config{Type: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)

	c, err = NewCache(Config{Type: "unknown-type"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
}

func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "prefix", GenerateCacheKey("prefix"))
	assert.Equal(t, "prefix:part1", GenerateCacheKey("prefix", "part1"))
	assert.Equal(t, "prefix:a:b:c", GenerateCacheKey("prefix", "a", "b", "c"))

	long := strings.Repeat("binary search ", 20)
	key := GenerateCacheKey("embed", "model", long)
	assert.True(t, strings.HasPrefix(key, "embed:model:"))
	assert.Len(t, strings.TrimPrefix(key, "embed:model:"), 32)
	assert.Equal(t, key, GenerateCacheKey("embed", "model", long), "stable")
	assert.NotEqual(t, key, GenerateCacheKey("embed", "model", long+"!"))
}
