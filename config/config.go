package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Search   SearchConfig   `mapstructure:"search"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug | release | test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORS         bool          `mapstructure:"cors"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // 为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StorageConfig 上传暂存配置
type StorageConfig struct {
	Type      string `mapstructure:"type"` // local 或 minio
	Path      string `mapstructure:"path"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// VectorDBConfig 知识库配置
type VectorDBConfig struct {
	Type      string `mapstructure:"type"` // memory, sqlite, pgvector, faiss
	Path      string `mapstructure:"path"`
	DSN       string `mapstructure:"dsn"`
	Dimension int    `mapstructure:"dimension"`
	Distance  string `mapstructure:"distance"` // cosine 或 l2
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider  string        `mapstructure:"provider"` // gemini 或 tongyi
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	Endpoint  string        `mapstructure:"endpoint"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EmbedConfig 向量化模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	BatchSize  int           `mapstructure:"batch_size"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"` // 每秒请求数，0 表示不限
	Burst      int           `mapstructure:"burst"`
}

// CacheConfig 查询向量缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Type     string `mapstructure:"type"` // memory 或 redis
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"` // 秒
}

// QueueConfig 异步入库队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Concurrency   int           `mapstructure:"concurrency"`
	RetryLimit    int           `mapstructure:"retry_limit"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	TaskTimeout   time.Duration `mapstructure:"task_timeout"`
	Name          string        `mapstructure:"name"`
}

// DatabaseConfig 入库记录数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// DocumentConfig 分段配置
type DocumentConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	MaxChunks    int `mapstructure:"max_chunks"`
}

// SearchConfig 检索配置
type SearchConfig struct {
	Limit       int     `mapstructure:"limit"`
	MaxDistance float32 `mapstructure:"max_distance"` // 0 表示不过滤
}

// IngestConfig 入库并发配置
type IngestConfig struct {
	Workers     int           `mapstructure:"workers"`
	BatchSize   int           `mapstructure:"batch_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxUploadMB int           `mapstructure:"max_upload_mb"`
}

// MaxUploadBytes 上传大小上限
func (c IngestConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enable bool `mapstructure:"enable"`
}

// Load 从文件和环境变量加载配置
// 文件不存在时使用默认值；环境变量 SERVER_PORT 之类可以覆盖任意配置项
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.WithField("file", v.ConfigFileUsed()).Info("Using config file")
	} else if errors.Is(err, os.ErrNotExist) {
		logrus.WithField("file", configPath).Warn("Config file not found, using defaults")
	} else {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandEnvironmentVariables(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.VectorDB.Dimension <= 0 {
		return fmt.Errorf("invalid vectordb.dimension: %d", c.VectorDB.Dimension)
	}
	if c.Embed.Dimensions > 0 && c.Embed.Dimensions != c.VectorDB.Dimension {
		return fmt.Errorf("embed.dimensions (%d) must match vectordb.dimension (%d)",
			c.Embed.Dimensions, c.VectorDB.Dimension)
	}
	if c.Document.ChunkSize <= 0 {
		return fmt.Errorf("invalid document.chunk_size: %d", c.Document.ChunkSize)
	}
	if c.Document.ChunkOverlap < 0 {
		return fmt.Errorf("invalid document.chunk_overlap: %d", c.Document.ChunkOverlap)
	}
	if c.Search.MaxDistance < 0 {
		return fmt.Errorf("invalid search.max_distance: %v", c.Search.MaxDistance)
	}
	return nil
}

// expandEnvironmentVariables 替换密钥与连接串中的 ${VAR}
func expandEnvironmentVariables(cfg *Config) {
	fields := []*string{
		&cfg.Embed.APIKey,
		&cfg.LLM.APIKey,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.VectorDB.DSN,
		&cfg.Database.DSN,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
	}
	for _, f := range fields {
		*f = expandEnv(*f)
	}
}

// expandEnv 只替换整个值形如 ${VAR} 的情况，未设置的变量保留原值
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	if val := os.Getenv(s[2 : len(s)-1]); val != "" {
		return val
	}
	return s
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.cors", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/uploads")
	v.SetDefault("storage.bucket", "quiz")
	v.SetDefault("storage.prefix", "uploads/")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("vectordb.type", "sqlite")
	v.SetDefault("vectordb.path", "./data/knowledge.db")
	v.SetDefault("vectordb.dsn", "")
	v.SetDefault("vectordb.dimension", 768)
	v.SetDefault("vectordb.distance", "cosine")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_key", "${GEMINI_API_KEY}")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("embed.provider", "gemini")
	v.SetDefault("embed.model", "text-embedding-004")
	v.SetDefault("embed.api_key", "${GEMINI_API_KEY}")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.dimensions", 768)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.rate_limit", 0)
	v.SetDefault("embed.burst", 1)

	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 86400)

	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 2)
	v.SetDefault("queue.retry_delay", "30s")
	v.SetDefault("queue.task_timeout", "10m")
	v.SetDefault("queue.name", "default")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/quiz.db")

	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 200)
	v.SetDefault("document.max_chunks", 0)

	v.SetDefault("search.limit", 10)
	v.SetDefault("search.max_distance", 0)

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.batch_size", 16)
	v.SetDefault("ingest.timeout", "10m")
	v.SetDefault("ingest.max_upload_mb", 20)

	v.SetDefault("metrics.enable", true)
}
