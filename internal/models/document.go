package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 入库状态
type DocumentStatus string

const (
	// DocStatusPending 已接收，等待处理
	DocStatusPending DocumentStatus = "pending"
	// DocStatusProcessing 处理中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 全部分段已写入知识库
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed 处理失败，已写入的分段已回滚
	DocStatusFailed DocumentStatus = "failed"
)

// ProcessStage 入库阶段
type ProcessStage string

const (
	StageParsing   ProcessStage = "parsing"
	StageChunking  ProcessStage = "chunking"
	StageIndexing  ProcessStage = "indexing"
	StageCompleted ProcessStage = "completed"
)

// Document 一次文档入库的记录
// 原始字节不保存，只记录处理结果
type Document struct {
	ID           string         `gorm:"primaryKey"`             // 记录ID
	FileName     string         `gorm:"not null"`               // 展示名
	FileType     string         `gorm:"size:20"`                // 文件类型（pdf/md/txt/docx）
	FileSize     int64          `gorm:"not null;default:0"`     // 字节数
	StoragePath  string         `gorm:"size:255"`               // 异步入库时暂存文件ID
	Category     Category       `gorm:"size:40;not null;index"` // 分类
	Status       DocumentStatus `gorm:"size:20;not null;index"` // 状态
	Stage        ProcessStage   `gorm:"size:20"`                // 当前阶段
	Progress     int            `gorm:"not null;default:0"`     // 进度（0-100）
	SegmentCount int            `gorm:"not null;default:0"`     // 成功写入的分段数
	Error        string         `gorm:"type:text"`              // 失败原因
	TaskID       string         `gorm:"size:64;index"`          // 异步任务ID
	Metadata     datatypes.JSON `gorm:"type:json"`              // 其他元数据
	UploadedAt   time.Time      `gorm:"not null;index"`
	ProcessedAt  *time.Time     `gorm:"index"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

// BeforeCreate 创建前补齐时间
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	if d.Status == "" {
		d.Status = DocStatusPending
	}
	return nil
}

// BeforeUpdate 更新前刷新更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) error {
	d.UpdatedAt = time.Now()
	return nil
}

func (Document) TableName() string {
	return "documents"
}

// DocumentSegment 记录文档写入知识库的分段
// VectorID 指向知识库中的记录，用于按文档清理
type DocumentSegment struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	DocumentID string    `gorm:"size:64;not null;index"`
	VectorID   string    `gorm:"size:64;not null;uniqueIndex"`
	Position   int       `gorm:"not null"`
	Page       int       `gorm:"not null;default:0"`
	StartPos   int       `gorm:"not null;default:0"`
	EndPos     int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"not null"`
}

// BeforeCreate 创建前设置时间
func (ds *DocumentSegment) BeforeCreate(tx *gorm.DB) error {
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now()
	}
	return nil
}

func (DocumentSegment) TableName() string {
	return "document_segments"
}
