package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 基于 go-cache 的进程内缓存
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache(config Config) (Cache, error) {
	ttl := config.DefaultTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	cleanup := config.CleanupInterval
	if cleanup == 0 {
		cleanup = 10 * time.Minute
	}
	return &MemoryCache{cache: gocache.New(ttl, cleanup)}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	value, found := m.cache.Get(key)
	if !found {
		return "", false, nil
	}
	str, ok := value.(string)
	if !ok {
		return "", false, nil
	}
	return str, true, nil
}

// Set ttl 为0时使用默认过期时间
func (m *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.cache.Set(key, value, ttl)
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *MemoryCache) Clear(_ context.Context) error {
	m.cache.Flush()
	return nil
}

func init() {
	RegisterCache("memory", NewMemoryCache)
}
