package model

import (
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// QuestionErrorMessage 出题失败时对外统一的提示
const QuestionErrorMessage = "could not produce a question, try again"

// QuestionErrorResponse 出题失败响应，不暴露具体原因
type QuestionErrorResponse struct {
	Error string `json:"error"`
}

// RecordInfo 入库记录
type RecordInfo struct {
	ID           string     `json:"id"`
	FileName     string     `json:"filename"`
	Category     string     `json:"category"`
	Status       string     `json:"status"`
	Stage        string     `json:"stage,omitempty"`
	Progress     int        `json:"progress"`
	SegmentCount int        `json:"segment_count"`
	Error        string     `json:"error,omitempty"`
	TaskID       string     `json:"task_id,omitempty"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// NewRecordInfo 将入库记录转换为响应结构
func NewRecordInfo(doc *models.Document) RecordInfo {
	return RecordInfo{
		ID:           doc.ID,
		FileName:     doc.FileName,
		Category:     string(doc.Category),
		Status:       string(doc.Status),
		Stage:        string(doc.Stage),
		Progress:     doc.Progress,
		SegmentCount: doc.SegmentCount,
		Error:        doc.Error,
		TaskID:       doc.TaskID,
		UploadedAt:   doc.UploadedAt,
		ProcessedAt:  doc.ProcessedAt,
	}
}

// RecordListResponse 入库记录列表
type RecordListResponse struct {
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Records  []RecordInfo `json:"records"`
}

// CategoryInfo 分类信息
type CategoryInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PurgeResponse 清空分类响应
type PurgeResponse struct {
	Category string `json:"category"`
	Deleted  int    `json:"deleted"`
}
