package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/fyerfyer/doc-quiz-system/internal/repository"
	"github.com/sirupsen/logrus"
)

// validTransitions 入库记录允许的状态转换
// failed -> processing 用于异步任务重试
var validTransitions = map[models.DocumentStatus][]models.DocumentStatus{
	models.DocStatusPending:    {models.DocStatusProcessing, models.DocStatusFailed},
	models.DocStatusProcessing: {models.DocStatusCompleted, models.DocStatusFailed},
	models.DocStatusCompleted:  {},
	models.DocStatusFailed:     {models.DocStatusProcessing},
}

// ValidateTransition 校验状态转换
func ValidateTransition(from, to models.DocumentStatus) error {
	for _, s := range validTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidDocumentStatus, from, to)
}

// StatusManager 入库记录的生命周期管理
// pending -> processing -> completed | failed
type StatusManager struct {
	repo   repository.DocumentRepository
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewStatusManager 创建状态管理器
func NewStatusManager(repo repository.DocumentRepository, logger *logrus.Logger) *StatusManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StatusManager{repo: repo, logger: logger}
}

// Create 以 pending 状态创建记录
func (m *StatusManager) Create(ctx context.Context, doc *models.Document) error {
	doc.Status = models.DocStatusPending
	doc.Progress = 0
	if err := m.repo.Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create ingest record: %w", err)
	}
	m.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"filename": doc.FileName,
		"category": doc.Category,
	}).Info("Ingest record created")
	return nil
}

func (m *StatusManager) transition(ctx context.Context, id string, to models.DocumentStatus) (*models.Document, error) {
	doc, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(doc.Status, to); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	return doc, nil
}

// MarkProcessing 开始处理
func (m *StatusManager) MarkProcessing(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.transition(ctx, id, models.DocStatusProcessing); err != nil {
		return err
	}
	if err := m.repo.UpdateStatus(ctx, id, models.DocStatusProcessing, ""); err != nil {
		return err
	}
	return m.repo.UpdateProgress(ctx, id, models.StageParsing, 0)
}

// UpdateStage 更新处理阶段和进度，仅在 processing 状态下有效
func (m *StatusManager) UpdateStage(ctx context.Context, id string, stage models.ProcessStage, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status != models.DocStatusProcessing {
		return fmt.Errorf("%w: document %s is %s, not processing", models.ErrInvalidDocumentStatus, id, doc.Status)
	}
	return m.repo.UpdateProgress(ctx, id, stage, progress)
}

// MarkCompleted 处理完成并记录分段数
func (m *StatusManager) MarkCompleted(ctx context.Context, id string, segmentCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.transition(ctx, id, models.DocStatusCompleted); err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{
		"doc_id":        id,
		"segment_count": segmentCount,
	}).Info("Ingest completed")
	return m.repo.MarkCompleted(ctx, id, segmentCount)
}

// MarkFailed 处理失败，分段数归零
func (m *StatusManager) MarkFailed(ctx context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.transition(ctx, id, models.DocStatusFailed); err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{
		"doc_id": id,
		"error":  reason,
	}).Warn("Ingest failed")
	return m.repo.UpdateStatus(ctx, id, models.DocStatusFailed, reason)
}

// SetTaskID 关联异步任务
func (m *StatusManager) SetTaskID(ctx context.Context, id, taskID string) error {
	return m.repo.SetTaskID(ctx, id, taskID)
}

// Get 获取记录
func (m *StatusManager) Get(ctx context.Context, id string) (*models.Document, error) {
	return m.repo.GetByID(ctx, id)
}

// List 分页列出记录
func (m *StatusManager) List(ctx context.Context, offset, limit int, filter repository.ListFilter) ([]*models.Document, int64, error) {
	return m.repo.List(ctx, offset, limit, filter)
}

// SaveSegments 保存分段与知识库记录的对应关系
func (m *StatusManager) SaveSegments(ctx context.Context, segments []*models.DocumentSegment) error {
	return m.repo.SaveSegments(ctx, segments)
}
