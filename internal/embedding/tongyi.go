package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultDashScopeEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"
	defaultTongyiModel       = "text-embedding-v3"
	tongyiMaxBatch           = 10
)

// dashScopeRequest DashScope 原生接口请求
type dashScopeRequest struct {
	Model      string              `json:"model"`
	Input      dashScopeInput      `json:"input"`
	Parameters dashScopeParameters `json:"parameters"`
}

type dashScopeInput struct {
	Texts []string `json:"texts"`
}

type dashScopeParameters struct {
	Dimension  int    `json:"dimension,omitempty"`
	OutputType string `json:"output_type,omitempty"`
}

// dashScopeResponse DashScope 原生接口响应
type dashScopeResponse struct {
	StatusCode int    `json:"status_code,omitempty"`
	RequestID  string `json:"request_id"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Output     struct {
		Embeddings []struct {
			Embedding []float32 `json:"embedding"`
			TextIndex int       `json:"text_index"`
		} `json:"embeddings"`
	} `json:"output"`
}

// TongyiClient 通义千问 DashScope 向量化客户端
type TongyiClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	dimensions int
}

// NewTongyiClient 创建通义千问客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultDashScopeEndpoint
	}
	model := cfg.Model
	if model == "" || model == defaultGeminiModel {
		model = defaultTongyiModel
	}

	return &TongyiClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		dimensions: cfg.Dimensions,
	}, nil
}

func (c *TongyiClient) Name() string {
	return c.model
}

func (c *TongyiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 按接口上限（每次10条）切分请求
func (c *TongyiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += tongyiMaxBatch {
		end := start + tongyiMaxBatch
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

func (c *TongyiClient) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	req := dashScopeRequest{
		Model: c.model,
		Input: dashScopeInput{Texts: texts},
		Parameters: dashScopeParameters{
			Dimension:  c.dimensions,
			OutputType: "dense",
		},
	}

	var resp dashScopeResponse
	if err := c.sendRequest(ctx, req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "" {
		return nil, NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("API error: %s (%s)", resp.Message, resp.Code))
	}

	out := make([][]float32, len(texts))
	for _, emb := range resp.Output.Embeddings {
		if emb.TextIndex < 0 || emb.TextIndex >= len(texts) {
			continue
		}
		out[emb.TextIndex] = emb.Embedding
	}
	for _, v := range out {
		if len(v) == 0 {
			return nil, NewEmbeddingError(ErrCodeEmptyVector, ErrMsgEmptyVector)
		}
	}
	return out, nil
}

// sendRequest 发送一次请求，失败不在客户端内部重试
func (c *TongyiClient) sendRequest(ctx context.Context, reqData interface{}, respObj interface{}) error {
	payload, err := json.Marshal(reqData)
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	body, statusCode, lastErr := c.doOnce(ctx, payload)
	if lastErr != nil {
		if errors.Is(lastErr, context.DeadlineExceeded) {
			return NewEmbeddingError(ErrCodeTimeout, lastErr.Error())
		}
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
		return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", lastErr))
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewEmbeddingError(ErrCodeInvalidAPIKey, string(body))
	case statusCode == http.StatusTooManyRequests:
		return NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
	case statusCode != http.StatusOK:
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return NewEmbeddingError(ErrCodeServerError, errResp.Message)
		}
		return NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("API error (status %d): %s", statusCode, string(body)))
	}

	if err := json.Unmarshal(body, respObj); err != nil {
		return NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", err))
	}
	return nil
}

func (c *TongyiClient) doOnce(ctx context.Context, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
