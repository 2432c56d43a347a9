package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
)

// 调用方错误，不属于存储不可用
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
)

// Document 已向量化的文档片段
// 写入后不再修改，只会在入库回滚或按分类清理时删除
type Document struct {
	ID        string
	Text      string
	Vector    []float32
	Source    string // 来源文件名
	Category  string
	Page      int // 页码，非分页文档为 0
	Index     int // 片段在来源文档中的序号
	Seq       int64
	CreatedAt time.Time
}

// Metadata 持久化时与正文一起保存的元数据
type Metadata struct {
	Source   string `json:"source"`
	Category string `json:"category"`
	Page     int    `json:"page,omitempty"`
	Index    int    `json:"index"`
}

// metadata 提取文档元数据
func (d Document) metadata() Metadata {
	return Metadata{Source: d.Source, Category: d.Category, Page: d.Page, Index: d.Index}
}

// apply 将元数据写回文档
func (m Metadata) apply(d *Document) {
	d.Source = m.Source
	d.Category = m.Category
	d.Page = m.Page
	d.Index = m.Index
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	Cosine    DistanceType = "cosine"
	Euclidean DistanceType = "l2"
)

// ParseDistanceType 解析距离类型，空字符串取余弦距离
func ParseDistanceType(s string) (DistanceType, error) {
	switch DistanceType(strings.ToLower(strings.TrimSpace(s))) {
	case "", Cosine:
		return Cosine, nil
	case Euclidean, "euclidean":
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unsupported distance type: %s", s)
	}
}

// SearchResult 近邻查询结果，Distance 越小越相似
type SearchResult struct {
	Document
	Distance float32
}

// Repository 知识库存储接口
type Repository interface {
	// Insert 写入一个片段，ID 为空时自动分配，返回最终 ID
	Insert(ctx context.Context, doc Document) (string, error)

	// NearestNeighbors 返回至多 k 个最近邻，按距离升序，距离相同按写入顺序
	// category 非空时只在该分类内查找
	NearestNeighbors(ctx context.Context, vector []float32, k int, category string) ([]SearchResult, error)

	// Delete 按 ID 删除片段，不存在的 ID 被忽略
	Delete(ctx context.Context, ids ...string) error

	// DeleteByCategory 清理整个分类，返回删除数量
	DeleteByCategory(ctx context.Context, category string) (int, error)

	Count(ctx context.Context) (int, error)
	Dimension() int
	Close() error
}

// Config 向量仓库配置
type Config struct {
	Type              string       // memory, sqlite, pgvector, faiss
	Path              string       // sqlite 数据库文件 / faiss 索引文件
	DSN               string       // pgvector 连接串
	Dimension         int          // 向量维度
	DistanceType      DistanceType // 距离计算方法
	CreateIfNotExists bool         // 索引文件损坏时是否重建
	InMemory          bool         // 不落盘
}

// RepositoryFactory 创建仓库实例的函数
type RepositoryFactory func(config Config) (Repository, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]RepositoryFactory)
)

// RegisterRepository 注册仓库实现
func RegisterRepository(name string, factory RepositoryFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewRepository 按配置创建仓库
func NewRepository(config Config) (Repository, error) {
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported vector database type: %s", config.Type)
	}
	return factory(config)
}

// storeError 将驱动、连接等错误统一包装为 ErrStoreUnavailable
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrStoreUnavailable) {
		return err
	}
	// 调用方主动取消不代表存储不可用
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("vectordb %s: %w", op, err)
	}
	return fmt.Errorf("vectordb %s: %w: %w", op, models.ErrStoreUnavailable, err)
}
