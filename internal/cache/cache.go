package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache 键值缓存接口，目前用于缓存查询向量
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear 清空本缓存命名空间下的所有键
	Clear(ctx context.Context) error
}

// Factory 缓存工厂函数
type Factory func(config Config) (Cache, error)

var registry = make(map[string]Factory)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache 按类型创建缓存，未知类型退回内存缓存
func NewCache(config Config) (Cache, error) {
	if factory, ok := registry[config.Type]; ok {
		return factory(config)
	}
	return NewMemoryCache(config)
}

// Config 缓存配置
type Config struct {
	Type            string // memory | redis
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	KeyPrefix       string // Redis 键前缀，Clear 只删除该前缀下的键
	DefaultTTL      time.Duration
	CleanupInterval time.Duration // 仅内存缓存使用
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		KeyPrefix:       "quiz",
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// maxKeyPart 超过该长度的键片段用哈希代替
const maxKeyPart = 64

// GenerateCacheKey 生成形如 prefix:a:b 的缓存键
// 过长的片段（例如整段查询文本）会被替换为 sha256 摘要
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}

	var b strings.Builder
	b.WriteString(prefix)
	for _, part := range parts {
		b.WriteByte(':')
		if len(part) > maxKeyPart || strings.ContainsAny(part, " \n\t:") {
			sum := sha256.Sum256([]byte(part))
			b.WriteString(hex.EncodeToString(sum[:16]))
			continue
		}
		b.WriteString(part)
	}
	return b.String()
}
