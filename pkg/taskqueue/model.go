package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型，同时作为 asynq 的任务名
type TaskType string

const (
	// TaskIngestDocument 异步入库一份已暂存的文档
	TaskIngestDocument TaskType = "ingest:document"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Done 是否为终态
func (s TaskStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务记录，保存在 redis 中供查询
type Task struct {
	ID          string          `json:"id"`
	Type        TaskType        `json:"type"`
	DocumentID  string          `json:"document_id"`
	Status      TaskStatus      `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxRetries  int             `json:"max_retries"`
}

// IngestPayload 异步入库任务载荷
type IngestPayload struct {
	DocumentID string `json:"document_id"` // 入库记录ID
	FileID     string `json:"file_id"`     // 暂存文件ID
	FileName   string `json:"file_name"`   // 展示名
	Category   string `json:"category"`
}

// IngestResult 异步入库任务结果
type IngestResult struct {
	SegmentCount int    `json:"segment_count"`
	Error        string `json:"error,omitempty"`
}
