package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const defaultGeminiModel = "text-embedding-004"

// GeminiClient 基于 google.golang.org/genai 的向量化客户端
type GeminiClient struct {
	client     *genai.Client
	model      string
	dimensions int
	batchSize  int
}

// NewGeminiClient 创建 Gemini 向量化客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 16
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		dimensions: cfg.Dimensions,
		batchSize:  batch,
	}, nil
}

func (c *GeminiClient) Name() string {
	return c.model
}

func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 超过 batchSize 时分多次请求
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

func (c *GeminiClient) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		if t == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
		}
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{}
	if c.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(c.dimensions))
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeEmptyVector,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), embeddingCount(resp)))
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, NewEmbeddingError(ErrCodeEmptyVector, ErrMsgEmptyVector)
		}
		out[i] = e.Values
	}
	return out, nil
}

func embeddingCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}

// classifyGeminiError 把 SDK 错误映射为 EmbeddingError
func classifyGeminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewEmbeddingError(ErrCodeTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return NewEmbeddingError(ErrCodeInvalidAPIKey, apiErr.Message)
		case apiErr.Code == http.StatusTooManyRequests:
			return NewEmbeddingError(ErrCodeRateLimited, apiErr.Message)
		case apiErr.Code == http.StatusGatewayTimeout:
			return NewEmbeddingError(ErrCodeTimeout, apiErr.Message)
		case apiErr.Code >= 500:
			return NewEmbeddingError(ErrCodeServerError, apiErr.Message)
		default:
			return NewEmbeddingError(ErrCodeInvalidRequest, apiErr.Message)
		}
	}
	return NewEmbeddingError(ErrCodeNetworkError, err.Error())
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}
