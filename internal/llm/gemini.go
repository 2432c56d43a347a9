package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient 基于 google.golang.org/genai 的生成客户端
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float32
	topP        float32
}

// NewGeminiClient 创建 Gemini 生成客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
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
		model = ModelGeminiFlash
	}
	return &GeminiClient{
		client:      client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return c.model
}

// Generate 单轮生成，支持 JSON MIME 与响应 Schema
func (c *GeminiClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	opts := ApplyGenerateOptions(options...)

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		c.buildConfig(opts))
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, NewLLMError(ErrCodeContentFilter, string(resp.PromptFeedback.BlockReason))
		}
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	out := &Response{
		Text:         resp.Text(),
		ModelName:    c.model,
		FinishReason: string(resp.Candidates[0].FinishReason),
		FinishTime:   time.Now(),
	}
	if resp.UsageMetadata != nil {
		out.TokenCount = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func (c *GeminiClient) buildConfig(opts *GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	switch {
	case opts.Temperature != nil:
		cfg.Temperature = genai.Ptr(*opts.Temperature)
	case c.temperature > 0:
		cfg.Temperature = genai.Ptr(c.temperature)
	}
	switch {
	case opts.TopP != nil:
		cfg.TopP = genai.Ptr(*opts.TopP)
	case c.topP > 0:
		cfg.TopP = genai.Ptr(c.topP)
	}
	if opts.TopK != nil {
		cfg.TopK = genai.Ptr(float32(*opts.TopK))
	}
	switch {
	case opts.MaxTokens != nil:
		cfg.MaxOutputTokens = int32(*opts.MaxTokens)
	case c.maxTokens > 0:
		cfg.MaxOutputTokens = int32(c.maxTokens)
	}
	if opts.ResponseMIMEType != "" {
		cfg.ResponseMIMEType = opts.ResponseMIMEType
	}
	if opts.ResponseSchema != nil {
		cfg.ResponseJsonSchema = opts.ResponseSchema
	}
	if opts.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemInstruction, genai.RoleUser)
	}
	return cfg
}

// classifyGeminiError 把 SDK 错误映射为 LLMError
func classifyGeminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return NewLLMError(ErrCodeInvalidAPIKey, apiErr.Message)
		case apiErr.Code == http.StatusTooManyRequests:
			return NewLLMError(ErrCodeRateLimited, apiErr.Message)
		case apiErr.Code == http.StatusGatewayTimeout:
			return NewLLMError(ErrCodeTimeout, apiErr.Message)
		case apiErr.Code >= 500:
			return NewLLMError(ErrCodeServerError, apiErr.Message)
		default:
			return NewLLMError(ErrCodeInvalidRequest, apiErr.Message)
		}
	}
	return NewLLMError(ErrCodeNetworkError, err.Error())
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}
