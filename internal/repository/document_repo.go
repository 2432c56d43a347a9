package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/database"
	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"gorm.io/gorm"
)

// docRepository 基于 gorm 的入库记录仓储
type docRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 使用全局连接创建仓储
func NewDocumentRepository() DocumentRepository {
	return &docRepository{db: database.MustDB()}
}

// NewDocumentRepositoryWithDB 使用指定连接创建仓储
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{db: db}
}

func (r *docRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *docRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

func (r *docRepository) List(ctx context.Context, offset, limit int, filter ListFilter) ([]*models.Document, int64, error) {
	var (
		docs  []*models.Document
		total int64
	)

	query := r.db.WithContext(ctx).Model(&models.Document{})
	if filter.Category != "" {
		query = query.Where("category = ?", string(filter.Category))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	err := query.Order("uploaded_at DESC").Offset(offset).Limit(limit).Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *docRepository) UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, errMsg string) error {
	switch status {
	case models.DocStatusPending, models.DocStatusProcessing, models.DocStatusCompleted, models.DocStatusFailed:
	default:
		return fmt.Errorf("%w: %s", models.ErrInvalidDocumentStatus, status)
	}

	updates := map[string]interface{}{
		"status":     status,
		"error":      errMsg,
		"updated_at": time.Now(),
	}
	if status == models.DocStatusFailed {
		updates["segment_count"] = 0
		now := time.Now()
		updates["processed_at"] = &now
	}
	return r.update(ctx, id, updates)
}

func (r *docRepository) UpdateProgress(ctx context.Context, id string, stage models.ProcessStage, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return r.update(ctx, id, map[string]interface{}{
		"stage":      stage,
		"progress":   progress,
		"updated_at": time.Now(),
	})
}

func (r *docRepository) MarkCompleted(ctx context.Context, id string, segmentCount int) error {
	now := time.Now()
	return r.update(ctx, id, map[string]interface{}{
		"status":        models.DocStatusCompleted,
		"stage":         models.StageCompleted,
		"progress":      100,
		"segment_count": segmentCount,
		"error":         "",
		"processed_at":  &now,
		"updated_at":    now,
	})
}

func (r *docRepository) SetTaskID(ctx context.Context, id, taskID string) error {
	return r.update(ctx, id, map[string]interface{}{
		"task_id":    taskID,
		"updated_at": time.Now(),
	})
}

func (r *docRepository) SaveSegments(ctx context.Context, segments []*models.DocumentSegment) error {
	if len(segments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(segments, 100).Error
}

func (r *docRepository) GetSegments(ctx context.Context, docID string) ([]*models.DocumentSegment, error) {
	var segs []*models.DocumentSegment
	err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("position ASC").
		Find(&segs).Error
	return segs, err
}

func (r *docRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentSegment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil
	})
}

func (r *docRepository) update(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return nil
}
