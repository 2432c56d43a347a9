package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// scanBatchSize 近邻查询时每批加载的行数
const scanBatchSize = 500

// segmentRecord 知识库片段表
type segmentRecord struct {
	Seq       int64          `gorm:"primaryKey;autoIncrement"`
	SegmentID string         `gorm:"size:36;uniqueIndex;not null"`
	Content   string         `gorm:"type:text;not null"`
	Category  string         `gorm:"size:64;index;not null"`
	Metadata  datatypes.JSON `gorm:"type:json"`
	Embedding datatypes.JSON `gorm:"type:json;not null"`
	CreatedAt time.Time
}

func (segmentRecord) TableName() string {
	return "knowledge_segments"
}

// SQLiteRepository 基于 gorm + sqlite 的向量仓库
// 向量以 JSON 保存，查询时按写入顺序分批扫描
type SQLiteRepository struct {
	db        *gorm.DB
	dimension int
	distType  DistanceType
	ownsDB    bool
}

// NewSQLiteRepository 按配置打开独立的 sqlite 文件
func NewSQLiteRepository(config Config) (Repository, error) {
	dsn := config.Path
	if config.InMemory || dsn == "" {
		dsn = ":memory:"
	} else if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, storeError("open", err)
	}
	if dsn == ":memory:" {
		// 每个连接各自一份内存库
		sqlDB, err := db.DB()
		if err != nil {
			return nil, storeError("open", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	repo, err := NewSQLiteRepositoryWithDB(db, config)
	if err != nil {
		return nil, err
	}
	repo.ownsDB = true
	return repo, nil
}

// NewSQLiteRepositoryWithDB 复用已有的 gorm 连接（例如入库记录所在的库）
func NewSQLiteRepositoryWithDB(db *gorm.DB, config Config) (*SQLiteRepository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	distType, err := ParseDistanceType(string(config.DistanceType))
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&segmentRecord{}); err != nil {
		return nil, storeError("migrate", err)
	}
	return &SQLiteRepository{db: db, dimension: config.Dimension, distType: distType}, nil
}

// Insert 写入单个片段
func (r *SQLiteRepository) Insert(ctx context.Context, doc Document) (string, error) {
	doc, err := prepareDocument(doc, r.dimension)
	if err != nil {
		return "", err
	}

	meta, err := json.Marshal(doc.metadata())
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	vec, err := json.Marshal(doc.Vector)
	if err != nil {
		return "", fmt.Errorf("marshal embedding: %w", err)
	}

	rec := segmentRecord{
		SegmentID: doc.ID,
		Content:   doc.Text,
		Category:  doc.Category,
		Metadata:  datatypes.JSON(meta),
		Embedding: datatypes.JSON(vec),
		CreatedAt: doc.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", storeError("insert", err)
	}
	return doc.ID, nil
}

// NearestNeighbors 分批扫描候选行并计算距离
func (r *SQLiteRepository) NearestNeighbors(ctx context.Context, vector []float32, k int, category string) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&segmentRecord{})
	if category != "" {
		query = query.Where("category = ?", category)
	}

	results := make([]SearchResult, 0, k)
	var batch []segmentRecord
	res := query.FindInBatches(&batch, scanBatchSize, func(tx *gorm.DB, _ int) error {
		for _, rec := range batch {
			doc, err := rec.toDocument()
			if err != nil {
				return err
			}
			dist, err := ComputeDistance(vector, doc.Vector, r.distType)
			if err != nil {
				continue
			}
			results = append(results, SearchResult{Document: doc, Distance: dist})
		}
		// 每批之后只保留当前前 k 个
		results = topK(results, k)
		return nil
	})
	if res.Error != nil {
		return nil, storeError("search", res.Error)
	}
	return topK(results, k), nil
}

func (rec segmentRecord) toDocument() (Document, error) {
	doc := Document{
		ID:        rec.SegmentID,
		Text:      rec.Content,
		Category:  rec.Category,
		Seq:       rec.Seq,
		CreatedAt: rec.CreatedAt,
	}
	if len(rec.Metadata) > 0 {
		var meta Metadata
		if err := json.Unmarshal(rec.Metadata, &meta); err != nil {
			return doc, fmt.Errorf("decode metadata of %s: %w", rec.SegmentID, err)
		}
		meta.apply(&doc)
	}
	if err := json.Unmarshal(rec.Embedding, &doc.Vector); err != nil {
		return doc, fmt.Errorf("decode embedding of %s: %w", rec.SegmentID, err)
	}
	return doc, nil
}

// Delete 按 ID 删除
func (r *SQLiteRepository) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("segment_id IN ?", ids).Delete(&segmentRecord{}).Error; err != nil {
		return storeError("delete", err)
	}
	return nil
}

// DeleteByCategory 删除分类下全部片段
func (r *SQLiteRepository) DeleteByCategory(ctx context.Context, category string) (int, error) {
	res := r.db.WithContext(ctx).Where("category = ?", category).Delete(&segmentRecord{})
	if res.Error != nil {
		return 0, storeError("delete by category", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Count 获取片段总数
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&segmentRecord{}).Count(&n).Error; err != nil {
		return 0, storeError("count", err)
	}
	return int(n), nil
}

// Dimension 返回向量维数
func (r *SQLiteRepository) Dimension() int {
	return r.dimension
}

// Close 仅关闭自己打开的连接
func (r *SQLiteRepository) Close() error {
	if !r.ownsDB {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func init() {
	RegisterRepository("sqlite", NewSQLiteRepository)
}
