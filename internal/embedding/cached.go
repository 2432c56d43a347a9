package embedding

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 缓存单条文本的向量，用于检索时的查询向量
// 缓存读写失败只记录日志，不影响调用结果
type CachedClient struct {
	*Shared
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 在共享客户端之上加查询缓存
func NewCachedClient(shared *Shared, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedClient{Shared: shared, cache: c, ttl: ttl, logger: logger}
}

func (c *CachedClient) cacheKey(text string) string {
	return cache.GenerateCacheKey("embed", c.Shared.Name(), text)
}

// Embed 先查缓存，未命中时调用底层客户端并回写
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if raw, found, err := c.cache.Get(ctx, key); err != nil {
		c.logger.WithError(err).Debug("Embedding cache read failed")
	} else if found {
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err == nil && len(vec) > 0 {
			return vec, nil
		}
	}

	vec, err := c.Shared.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(vec); err == nil {
		if err := c.cache.Set(ctx, key, string(raw), c.ttl); err != nil {
			c.logger.WithError(err).Debug("Embedding cache write failed")
		}
	}
	return vec, nil
}
