package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTongyiEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

// TongyiClient 通义千问生成客户端
type TongyiClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	maxTokens   int
	temperature float32
	topP        float32
}

// tongyiRequest DashScope 文本生成请求
type tongyiRequest struct {
	Model      string           `json:"model"`
	Input      tongyiInput      `json:"input"`
	Parameters tongyiParameters `json:"parameters"`
}

type tongyiInput struct {
	Messages []Message `json:"messages"`
}

type tongyiParameters struct {
	Temperature    *float32        `json:"temperature,omitempty"`
	TopP           *float32        `json:"top_p,omitempty"`
	TopK           *int            `json:"top_k,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResultFormat   string          `json:"result_format,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type tongyiResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Output    struct {
		Text    *string `json:"text"`
		Choices []struct {
			FinishReason string  `json:"finish_reason"`
			Message      Message `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewTongyiClient 创建新的通义千问客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTongyiEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = ModelQwenTurbo
	}

	return &TongyiClient{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// Generate 单轮生成
// JSON MIME 对应 DashScope 的 json_object 输出模式，Schema 写入系统消息
func (c *TongyiClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	opts := ApplyGenerateOptions(options...)

	var messages []Message
	system := opts.SystemInstruction
	if opts.ResponseSchema != nil {
		schema, err := json.Marshal(opts.ResponseSchema)
		if err != nil {
			return nil, NewLLMError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal response schema: %v", err))
		}
		system = strings.TrimSpace(system + "\nRespond with a single JSON object that conforms to this JSON schema:\n" + string(schema))
	}
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	params := tongyiParameters{ResultFormat: "message"}
	if opts.MaxTokens != nil {
		params.MaxTokens = opts.MaxTokens
	} else if c.maxTokens > 0 {
		maxTokens := c.maxTokens
		params.MaxTokens = &maxTokens
	}
	if opts.Temperature != nil {
		params.Temperature = opts.Temperature
	} else if c.temperature > 0 {
		temp := c.temperature
		params.Temperature = &temp
	}
	if opts.TopP != nil {
		params.TopP = opts.TopP
	} else if c.topP > 0 {
		topP := c.topP
		params.TopP = &topP
	}
	params.TopK = opts.TopK
	if opts.ResponseMIMEType == "application/json" {
		params.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	resp, err := c.send(ctx, &tongyiRequest{
		Model:      c.model,
		Input:      tongyiInput{Messages: messages},
		Parameters: params,
	})
	if err != nil {
		return nil, err
	}
	return c.toResponse(resp)
}

// send 发送一次请求，失败直接返回，由调用方决定是否重试
func (c *TongyiClient) send(ctx context.Context, req *tongyiRequest) (*tongyiResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, NewLLMError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	body, status, err := c.do(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextError(ctx.Err())
		}
		return nil, NewLLMError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
	}

	if status != http.StatusOK {
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		msg := string(body)
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Message != "" {
			msg = fmt.Sprintf("%s (%s)", errResp.Message, errResp.Code)
		}
		return nil, NewLLMError(codeForStatus(status), fmt.Sprintf("API error (status %d): %s", status, msg))
	}

	var out tongyiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, NewLLMError(ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", err))
	}
	if out.Code != "" {
		return nil, NewLLMError(ErrCodeServerError, fmt.Sprintf("API error: %s (%s)", out.Message, out.Code))
	}
	return &out, nil
}

func (c *TongyiClient) do(ctx context.Context, payload []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
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

func (c *TongyiClient) toResponse(resp *tongyiResponse) (*Response, error) {
	out := &Response{
		ModelName:  c.model,
		TokenCount: resp.Usage.TotalTokens,
		FinishTime: time.Now(),
	}
	switch {
	case len(resp.Output.Choices) > 0:
		out.Text = resp.Output.Choices[0].Message.Content
		out.FinishReason = resp.Output.Choices[0].FinishReason
	case resp.Output.Text != nil:
		out.Text = *resp.Output.Text
	default:
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}
	return out, nil
}

func codeForStatus(status int) int {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}

// contextError 调用方取消原样返回，超时转换为 LLMError
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, ErrMsgTimeout)
	}
	return err
}

func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
