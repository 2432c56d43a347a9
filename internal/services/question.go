package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/metrics"
	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/fyerfyer/doc-quiz-system/internal/question"
	"github.com/fyerfyer/doc-quiz-system/internal/retrieval"
	"github.com/sirupsen/logrus"
)

const (
	defaultSourceLimit = 3
	sourcePreviewRunes = 150
)

// Source 出题参考的知识库片段
type Source struct {
	Content  string  `json:"content"`
	Source   string  `json:"source"`
	Category string  `json:"category"`
	Distance float32 `json:"distance"`
}

// QuestionResult 生成的题目及其参考片段
type QuestionResult struct {
	question.Spec
	Sources []Source `json:"sources"`
}

// QuestionService 出题服务：检索、组装提示词、调用模型并校验
type QuestionService struct {
	retriever *retrieval.Retriever
	composer  *question.Composer
	generator *question.Generator

	mu          sync.Mutex
	src         rand.Source
	sourceLimit int
	logger      *logrus.Logger
	metrics     *metrics.Metrics
}

// QuestionOption 出题服务配置选项
type QuestionOption func(*QuestionService)

// WithRandSource 设置选择出题角度的随机源
func WithRandSource(src rand.Source) QuestionOption {
	return func(s *QuestionService) {
		if src != nil {
			s.src = src
		}
	}
}

// WithSourceLimit 设置返回的参考片段数
func WithSourceLimit(n int) QuestionOption {
	return func(s *QuestionService) {
		if n >= 0 {
			s.sourceLimit = n
		}
	}
}

// WithQuestionLogger 设置日志记录器
func WithQuestionLogger(logger *logrus.Logger) QuestionOption {
	return func(s *QuestionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQuestionMetrics 设置指标
func WithQuestionMetrics(m *metrics.Metrics) QuestionOption {
	return func(s *QuestionService) {
		s.metrics = m
	}
}

// NewQuestionService 创建出题服务
func NewQuestionService(retriever *retrieval.Retriever, composer *question.Composer, generator *question.Generator, opts ...QuestionOption) *QuestionService {
	s := &QuestionService{
		retriever:   retriever,
		composer:    composer,
		generator:   generator,
		src:         rand.NewSource(time.Now().UnixNano()),
		sourceLimit: defaultSourceLimit,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate 为主题生成一道选择题
// 知识库为空或没有相关片段时仍会出题，此时模型依赖自身知识
func (s *QuestionService) Generate(ctx context.Context, topic, language, category string) (*QuestionResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		s.metrics.QuestionDone("error")
		return nil, fmt.Errorf("topic cannot be empty")
	}
	cat, err := models.ParseCategory(category)
	if err != nil {
		s.metrics.QuestionDone("error")
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"language": language,
		"category": cat,
	})

	hits, err := s.retriever.Retrieve(ctx, retrieval.Query{Topic: topic, Category: string(cat)})
	if err != nil {
		s.metrics.QuestionDone(questionOutcome(err))
		log.WithError(err).Error("Failed to retrieve context")
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	focus := s.pickFocus()
	prompt, err := s.composer.Compose(topic, language, hits, focus)
	if err != nil {
		s.metrics.QuestionDone("error")
		return nil, err
	}

	spec, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.metrics.QuestionDone(questionOutcome(err))
		log.WithError(err).Error("Failed to generate question")
		return nil, err
	}

	s.metrics.QuestionDone("ok")
	log.WithFields(logrus.Fields{
		"focus": focus,
		"hits":  len(hits.Hits),
	}).Info("Question generated")

	return &QuestionResult{Spec: *spec, Sources: s.sources(hits)}, nil
}

func (s *QuestionService) pickFocus() question.Focus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return question.PickFocus(s.src)
}

// sources 取前几个命中片段，正文截断为预览
func (s *QuestionService) sources(r retrieval.Result) []Source {
	n := len(r.Hits)
	if n > s.sourceLimit {
		n = s.sourceLimit
	}
	out := make([]Source, n)
	for i, h := range r.Hits[:n] {
		out[i] = Source{
			Content:  preview(h.Text, sourcePreviewRunes),
			Source:   h.Source,
			Category: h.Category,
			Distance: h.Distance,
		}
	}
	return out
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func questionOutcome(err error) string {
	switch {
	case errors.Is(err, models.ErrTimeout):
		return "timeout"
	case errors.Is(err, models.ErrGenerationMalformed):
		return "malformed"
	case errors.Is(err, models.ErrGenerationInvalid):
		return "invalid"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
