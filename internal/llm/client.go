package llm

import (
	"context"
	"sync"
	"time"
)

// Client 生成模型客户端接口
type Client interface {
	// Generate 根据提示词生成文本
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error)

	// Name 返回模型名称
	Name() string
}

// Config 生成模型客户端配置
type Config struct {
	APIKey      string        // API密钥
	BaseURL     string        // API基础URL
	Model       string        // 模型名称
	Timeout     time.Duration // HTTP 请求超时
	MaxTokens   int           // 默认最大生成Token数
	Temperature float32       // 默认采样温度
	TopP        float32       // 默认核采样阈值
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:     60 * time.Second,
		MaxTokens:   8192,
		Temperature: 0.9,
		TopP:        0.95,
	}
}

// Option 客户端配置选项函数类型
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL 设置API基础URL
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel 设置模型名称
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxTokens 设置最大生成Token数
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// NewConfig 创建一个新的配置并应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// GenerateOption 单次生成请求的选项
type GenerateOption func(*GenerateOptions)

// GenerateOptions 单次生成请求的选项集合，nil 表示使用客户端默认值
type GenerateOptions struct {
	MaxTokens         *int
	Temperature       *float32
	TopP              *float32
	TopK              *int
	ResponseMIMEType  string // 如 application/json
	ResponseSchema    any    // JSON Schema，要求模型按结构输出
	SystemInstruction string
}

// ApplyGenerateOptions 合并选项
func ApplyGenerateOptions(options ...GenerateOption) *GenerateOptions {
	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}

// WithGenerateMaxTokens 设置生成请求的最大Token数
func WithGenerateMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = &tokens
	}
}

// WithGenerateTemperature 设置生成请求的采样温度
func WithGenerateTemperature(temp float32) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &temp
	}
}

// WithGenerateTopP 设置生成请求的核采样概率阈值
func WithGenerateTopP(topP float32) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopP = &topP
	}
}

// WithGenerateTopK 设置生成请求的候选集大小
func WithGenerateTopK(topK int) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopK = &topK
	}
}

// WithResponseMIMEType 设置输出 MIME 类型
func WithResponseMIMEType(mime string) GenerateOption {
	return func(o *GenerateOptions) {
		o.ResponseMIMEType = mime
	}
}

// WithResponseSchema 设置输出 JSON Schema
func WithResponseSchema(schema any) GenerateOption {
	return func(o *GenerateOptions) {
		o.ResponseSchema = schema
	}
}

// WithSystemInstruction 设置系统指令
func WithSystemInstruction(s string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemInstruction = s
	}
}

// Factory 客户端工厂函数类型
type Factory func(opts ...Option) (Client, error)

var (
	factoriesMu     sync.RWMutex
	clientFactories = make(map[string]Factory)
)

// RegisterClient 注册客户端工厂函数
func RegisterClient(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	clientFactories[name] = factory
}

// NewClient 根据名称创建客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factoriesMu.RLock()
	factory, exists := clientFactories[name]
	factoriesMu.RUnlock()
	if !exists {
		return nil, NewLLMError(ErrCodeInvalidRequest, "llm client type not registered: "+name)
	}
	return factory(opts...)
}
