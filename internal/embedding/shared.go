package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Shared 写入路径和检索路径共用的唯一向量化入口
// 负责单次调用超时、出站限流，以及向量为空或维度不符的检查
type Shared struct {
	inner      Client
	dimensions int
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *logrus.Logger
	metrics    *metrics.Metrics
}

// Bound 由唯一共享客户端派生的向量化入口
// 检索路径只接受 Bound，保证查询向量与入库向量来自同一个模型
type Bound interface {
	Client
	Origin() *Shared
}

// SharedOption Shared 配置选项
type SharedOption func(*Shared)

// WithCallTimeout 设置单次调用上限，0 表示只受调用方 ctx 约束
func WithCallTimeout(d time.Duration) SharedOption {
	return func(s *Shared) {
		s.timeout = d
	}
}

// WithRateLimit 设置每秒请求数，rps<=0 表示不限流
func WithRateLimit(rps float64, burst int) SharedOption {
	return func(s *Shared) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger 设置日志器
func WithLogger(l *logrus.Logger) SharedOption {
	return func(s *Shared) {
		s.logger = l
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) SharedOption {
	return func(s *Shared) {
		s.metrics = m
	}
}

// NewShared 包装提供方客户端
func NewShared(inner Client, dimensions int, opts ...SharedOption) *Shared {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	s := &Shared{
		inner:      inner,
		dimensions: dimensions,
		timeout:    15 * time.Second,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Shared) Name() string {
	return s.inner.Name()
}

// Origin 返回自身
func (s *Shared) Origin() *Shared {
	return s
}

// Dimensions 返回期望的向量维度
func (s *Shared) Dimensions() int {
	return s.dimensions
}

func (s *Shared) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	vectors, err := s.call(ctx, "embed", 1, func(ctx context.Context) ([][]float32, error) {
		v, err := s.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *Shared) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
		}
	}
	return s.call(ctx, "embed_batch", len(texts), func(ctx context.Context) ([][]float32, error) {
		return s.inner.EmbedBatch(ctx, texts)
	})
}

type callResult struct {
	vectors [][]float32
	err     error
}

// call 在独立 goroutine 中调用提供方，ctx 结束时立即返回，不等待调用完成
func (s *Shared) call(ctx context.Context, op string, want int, fn func(context.Context) ([][]float32, error)) ([][]float32, error) {
	start := time.Now()

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(callCtx); err != nil {
			if ctx.Err() == context.Canceled {
				return nil, s.finish(op, start, ctx.Err())
			}
			return nil, s.finish(op, start, NewEmbeddingError(ErrCodeTimeout, "rate limiter wait: "+err.Error()))
		}
	}

	ch := make(chan callResult, 1)
	go func() {
		v, err := fn(callCtx)
		ch <- callResult{vectors: v, err: err}
	}()

	var res callResult
	select {
	case res = <-ch:
	case <-callCtx.Done():
		res.err = callCtx.Err()
	}

	if res.err != nil {
		return nil, s.finish(op, start, s.mapError(ctx, res.err))
	}
	if err := s.check(res.vectors, want); err != nil {
		return nil, s.finish(op, start, err)
	}
	s.finish(op, start, nil)
	return res.vectors, nil
}

func (s *Shared) check(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return NewEmbeddingError(ErrCodeEmptyVector, fmt.Sprintf("expected %d vectors, got %d", want, len(vectors)))
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return NewEmbeddingError(ErrCodeEmptyVector, ErrMsgEmptyVector)
		}
		if len(v) != s.dimensions {
			return NewEmbeddingError(ErrCodeDimensionMismatch,
				fmt.Sprintf("expected dimension %d, got %d", s.dimensions, len(v)))
		}
	}
	return nil
}

// mapError 调用方取消时原样返回 ctx 错误，其余统一为 EmbeddingError
func (s *Shared) mapError(parent context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("embedding call abandoned: %w", parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewEmbeddingError(ErrCodeTimeout, ErrMsgTimeout)
	}
	var ee EmbeddingError
	if errors.As(err, &ee) {
		return ee
	}
	return NewEmbeddingError(ErrCodeServerError, err.Error())
}

func (s *Shared) finish(op string, start time.Time, err error) error {
	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var ee EmbeddingError
		if errors.As(err, &ee) && ee.Code == ErrCodeTimeout {
			outcome = "timeout"
		}
		s.logger.WithFields(logrus.Fields{
			"model":    s.inner.Name(),
			"op":       op,
			"duration": elapsed.String(),
		}).WithError(err).Warn("Embedding call failed")
	}
	s.metrics.ObserveCall("embedding", op, outcome, elapsed)
	return err
}
