package model

import "mime/multipart"

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 当前页的偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// DocumentUploadRequest 文档上传请求
type DocumentUploadRequest struct {
	File     *multipart.FileHeader `form:"file" binding:"required"`
	Category string                `form:"category" binding:"required,category"`
}

// TextIngestRequest 文本入库请求
type TextIngestRequest struct {
	Name     string `json:"name"`
	Category string `json:"category" binding:"required,category"`
	Content  string `json:"content" binding:"required"`
}

// RecordRequest 入库记录查询请求
type RecordRequest struct {
	ID string `uri:"id" binding:"required"`
}

// RecordListRequest 入库记录列表请求
type RecordListRequest struct {
	PaginationRequest
	Category string `form:"category" binding:"omitempty,category"`
	Status   string `form:"status" binding:"omitempty,oneof=pending processing completed failed"`
}

// PurgeRequest 清空分类请求
type PurgeRequest struct {
	Category string `uri:"category" binding:"required,category"`
}

// QuestionRequest 出题请求
type QuestionRequest struct {
	Topic    string `json:"topic" binding:"required"`
	Language string `json:"language"`
	Category string `json:"category" binding:"omitempty,category"`
}
