// Package retrieval 根据主题在知识库中检索相关片段
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/embedding"
	"github.com/fyerfyer/doc-quiz-system/internal/metrics"
	"github.com/fyerfyer/doc-quiz-system/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// DefaultK 默认返回的片段数
const DefaultK = 10

// Query 检索请求
type Query struct {
	Topic    string
	Category string // 为空表示不限分类
	K        int
	// MaxDistance 大于 0 时丢弃距离超过阈值的片段
	MaxDistance float32
}

// Hit 单个命中片段
type Hit struct {
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
	Source   string  `json:"source"`
	Category string  `json:"category"`
}

// Result 按距离升序排列的命中列表，可能为空
type Result struct {
	Hits []Hit
}

// Texts 返回命中片段正文
func (r Result) Texts() []string {
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Text
	}
	return out
}

// Empty 是否没有命中
func (r Result) Empty() bool {
	return len(r.Hits) == 0
}

// Retriever 检索器
// 向量化使用与写入路径同一个客户端，保证同一向量空间
type Retriever struct {
	embedder    embedding.Bound
	store       vectordb.Repository
	defaultK    int
	maxDistance float32
	logger      *logrus.Logger
	metrics     *metrics.Metrics
}

// Option 检索器配置选项
type Option func(*Retriever)

// WithDefaultK 设置默认 K
func WithDefaultK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

// WithMaxDistance 设置默认距离阈值，0 表示不过滤
func WithMaxDistance(d float32) Option {
	return func(r *Retriever) {
		r.maxDistance = d
	}
}

// WithLogger 设置日志器
func WithLogger(l *logrus.Logger) Option {
	return func(r *Retriever) {
		r.logger = l
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retriever) {
		r.metrics = m
	}
}

// New 创建检索器
func New(embedder embedding.Bound, store vectordb.Repository, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		store:    store,
		defaultK: DefaultK,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve 向量化主题并查找最近邻
// 向量化失败直接返回错误，不会降级为无上下文出题
func (r *Retriever) Retrieve(ctx context.Context, q Query) (Result, error) {
	topic := strings.TrimSpace(q.Topic)
	if topic == "" {
		return Result{}, errors.New("topic cannot be empty")
	}
	k := q.K
	if k <= 0 {
		k = r.defaultK
	}
	maxDistance := q.MaxDistance
	if maxDistance <= 0 {
		maxDistance = r.maxDistance
	}

	vector, err := r.embedder.Embed(ctx, topic)
	if err != nil {
		return Result{}, fmt.Errorf("embed topic: %w", err)
	}

	start := time.Now()
	neighbors, err := r.store.NearestNeighbors(ctx, vector, k, q.Category)
	r.metrics.ObserveCall("store", "search", outcome(err), time.Since(start))
	if err != nil {
		return Result{}, fmt.Errorf("search knowledge store: %w", err)
	}

	hits := make([]Hit, 0, len(neighbors))
	for _, n := range neighbors {
		if maxDistance > 0 && n.Distance > maxDistance {
			continue
		}
		hits = append(hits, Hit{
			Text:     n.Text,
			Distance: n.Distance,
			Source:   n.Source,
			Category: n.Category,
		})
	}

	r.metrics.RetrievalDone(len(hits))
	r.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"category": q.Category,
		"k":        k,
		"hits":     len(hits),
	}).Debug("Retrieved context segments")

	return Result{Hits: hits}, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
