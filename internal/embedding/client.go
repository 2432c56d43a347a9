package embedding

import (
	"context"
	"time"
)

// Client 向量化客户端接口
// 负责将文本转换为固定维度的向量
type Client interface {
	// Embed 生成单条文本的向量
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 批量生成向量，结果与输入一一对应
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name 返回模型名称
	Name() string
}

// Config 向量化客户端配置
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int
	BatchSize  int
}

// Option 配置选项
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL 设置API地址，测试时可指向本地服务
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

// WithTimeout 设置HTTP层超时
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithDimensions 设置输出维度
func WithDimensions(dimensions int) Option {
	return func(c *Config) {
		c.Dimensions = dimensions
	}
}

// WithBatchSize 设置单次请求的最大文本数
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// DefaultDimensions 知识库使用的向量维度
const DefaultDimensions = 768

// DefaultConfig 默认使用 Gemini text-embedding-004
func DefaultConfig() *Config {
	return &Config{
		Model:      "text-embedding-004",
		Timeout:    30 * time.Second,
		Dimensions: DefaultDimensions,
		BatchSize:  16,
	}
}

// NewConfig 创建配置并应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Factory 客户端工厂函数
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient 注册客户端工厂
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 根据提供方名称创建客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factory, exists := clientFactories[name]
	if !exists {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "embedding client type not registered: "+name)
	}
	return factory(opts...)
}
