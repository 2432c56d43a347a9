package repository

import (
	"context"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
)

// ListFilter 入库记录列表过滤条件
type ListFilter struct {
	Category models.Category
	Status   models.DocumentStatus
}

// DocumentRepository 入库记录仓储
type DocumentRepository interface {
	// Create 创建入库记录
	Create(ctx context.Context, doc *models.Document) error

	// GetByID 根据ID获取记录，不存在时返回 models.ErrDocumentNotFound
	GetByID(ctx context.Context, id string) (*models.Document, error)

	// List 分页列出记录，按上传时间倒序
	List(ctx context.Context, offset, limit int, filter ListFilter) ([]*models.Document, int64, error)

	// UpdateStatus 更新状态和错误信息
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, errMsg string) error

	// UpdateProgress 更新阶段和进度
	UpdateProgress(ctx context.Context, id string, stage models.ProcessStage, progress int) error

	// MarkCompleted 标记完成并写入分段数
	MarkCompleted(ctx context.Context, id string, segmentCount int) error

	// SetTaskID 关联异步任务
	SetTaskID(ctx context.Context, id, taskID string) error

	// SaveSegments 批量保存分段映射
	SaveSegments(ctx context.Context, segments []*models.DocumentSegment) error

	// GetSegments 获取文档的分段映射，按位置排序
	GetSegments(ctx context.Context, docID string) ([]*models.DocumentSegment, error)

	// Delete 删除记录及其分段映射
	Delete(ctx context.Context, id string) error
}
