package question

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/llm"
	"github.com/fyerfyer/doc-quiz-system/internal/metrics"
	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout 单次生成的超时时间
	DefaultTimeout = 60 * time.Second

	baseTemperature  = 0.85
	temperatureRange = 0.15
	defaultTopP      = 0.95
	defaultTopK      = 40
	defaultMaxTokens = 8192
	jsonMIMEType     = "application/json"
)

// Generator 调用生成模型并校验输出
// 只调用一次，不做内部重试
type Generator struct {
	client    llm.Client
	timeout   time.Duration
	maxTokens int

	mu  sync.Mutex
	rnd *rand.Rand

	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// GeneratorOption 生成器配置选项
type GeneratorOption func(*Generator)

// WithTimeout 设置生成超时
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxTokens 设置最大输出 token 数
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithRandSource 设置采样温度用的随机源
func WithRandSource(src rand.Source) GeneratorOption {
	return func(g *Generator) {
		g.rnd = rand.New(src)
	}
}

// WithLogger 设置日志器
func WithLogger(l *logrus.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = l
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) GeneratorOption {
	return func(g *Generator) {
		g.metrics = m
	}
}

// NewGenerator 创建生成器
func NewGenerator(client llm.Client, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:    client,
		timeout:   DefaultTimeout,
		maxTokens: defaultMaxTokens,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// temperature 在 [0.85, 1.0) 之间随机取值
func (g *Generator) temperature() float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return float32(baseTemperature + g.rnd.Float64()*temperatureRange)
}

type generateResult struct {
	resp *llm.Response
	err  error
}

// Generate 按提示词生成一道题并校验
func (g *Generator) Generate(ctx context.Context, p Prompt) (*Spec, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	opts := []llm.GenerateOption{
		llm.WithGenerateTemperature(g.temperature()),
		llm.WithGenerateTopP(defaultTopP),
		llm.WithGenerateTopK(defaultTopK),
		llm.WithGenerateMaxTokens(g.maxTokens),
		llm.WithResponseMIMEType(jsonMIMEType),
	}
	if p.Schema != nil {
		opts = append(opts, llm.WithResponseSchema(p.Schema))
	}

	start := time.Now()
	done := make(chan generateResult, 1)
	go func() {
		resp, err := g.client.Generate(ctx, p.Text, opts...)
		done <- generateResult{resp: resp, err: err}
	}()

	var res generateResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	err := classifyGenerateError(ctx, res.err)
	g.metrics.ObserveCall("generation", "generate", callOutcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	if res.resp == nil {
		return nil, fmt.Errorf("%w: empty response", models.ErrGenerationMalformed)
	}

	spec, err := Parse(res.resp.Text)
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"topic": p.Topic,
			"focus": p.Focus,
			"model": res.resp.ModelName,
		}).WithError(err).Warn("Generated question rejected")
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"topic":  p.Topic,
		"focus":  p.Focus,
		"model":  res.resp.ModelName,
		"tokens": res.resp.TokenCount,
	}).Debug("Generated question")
	return spec, nil
}

// classifyGenerateError 超时归为 ErrTimeout，调用方取消原样返回，其余失败归为 ErrGenerationUnavailable
func classifyGenerateError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrTimeout) || errors.Is(err, models.ErrGenerationUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("generate question abandoned: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("generate question: %w: %w", models.ErrTimeout, err)
	}
	return fmt.Errorf("generate question: %w: %w", models.ErrGenerationUnavailable, err)
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
