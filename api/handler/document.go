package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fyerfyer/doc-quiz-system/api/middleware"
	"github.com/fyerfyer/doc-quiz-system/api/model"
	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/fyerfyer/doc-quiz-system/internal/repository"
	"github.com/fyerfyer/doc-quiz-system/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DefaultMaxUploadBytes 默认上传大小上限
const DefaultMaxUploadBytes int64 = 20 << 20

// DocumentHandler 处理文档入库相关的API请求
type DocumentHandler struct {
	ingest   *services.IngestService
	maxBytes int64
	logger   *logrus.Logger
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(ingest *services.IngestService, maxBytes int64) *DocumentHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &DocumentHandler{
		ingest:   ingest,
		maxBytes: maxBytes,
		logger:   middleware.GetLogger(),
	}
}

// UploadDocument 同步入库上传的文件
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid upload request", err.Error()))
		return
	}

	data, err := h.readUpload(&req)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	res := h.ingest.Ingest(c.Request.Context(), services.IngestRequest{
		Data:     data,
		Name:     req.File.Filename,
		Category: req.Category,
	})
	h.respondIngest(c, res)
}

// UploadText 入库一段原始文本
// POST /api/documents/text
func (h *DocumentHandler) UploadText(c *gin.Context) {
	var req model.TextIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid text ingest request", err.Error()))
		return
	}
	if int64(len(req.Content)) > h.maxBytes {
		middleware.HandleError(c, middleware.NewValidationError("Content too large"))
		return
	}

	res := h.ingest.IngestText(c.Request.Context(), req.Name, req.Category, req.Content)
	h.respondIngest(c, res)
}

// UploadDocumentAsync 暂存文件并交给任务队列入库
// POST /api/documents/async
func (h *DocumentHandler) UploadDocumentAsync(c *gin.Context) {
	if !h.ingest.AsyncEnabled() {
		c.JSON(http.StatusServiceUnavailable, model.NewErrorResponse(
			http.StatusServiceUnavailable,
			"Async ingestion is not enabled",
		))
		return
	}

	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid upload request", err.Error()))
		return
	}
	if req.File.Size > h.maxBytes {
		middleware.HandleError(c, middleware.NewValidationError(
			fmt.Sprintf("File exceeds %d bytes", h.maxBytes)))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Failed to open uploaded file", err.Error()))
		return
	}
	defer file.Close()

	doc, err := h.ingest.Submit(c.Request.Context(), file, req.File.Filename, req.Category)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.NewSuccessResponse(model.NewRecordInfo(doc))
	resp.TraceID = middleware.GetTraceID(c)
	c.JSON(http.StatusAccepted, resp)
}

// GetRecord 获取入库记录
// GET /api/documents/:id
func (h *DocumentHandler) GetRecord(c *gin.Context) {
	var req model.RecordRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid record id", err.Error()))
		return
	}

	doc, err := h.ingest.GetRecord(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewRecordInfo(doc)))
}

// ListRecords 分页列出入库记录
// GET /api/documents
func (h *DocumentHandler) ListRecords(c *gin.Context) {
	var req model.RecordListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid query parameters", err.Error()))
		return
	}

	filter := repository.ListFilter{Status: models.DocumentStatus(req.Status)}
	if req.Category != "" {
		cat, err := models.ParseCategory(req.Category)
		if err != nil {
			middleware.HandleError(c, err)
			return
		}
		filter.Category = cat
	}

	docs, total, err := h.ingest.ListRecords(c.Request.Context(), req.Offset(), req.GetPageSize(), filter)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	records := make([]model.RecordInfo, len(docs))
	for i, doc := range docs {
		records[i] = model.NewRecordInfo(doc)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.RecordListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Records:  records,
	}))
}

// readUpload 读取上传文件，超过上限时报错
func (h *DocumentHandler) readUpload(req *model.DocumentUploadRequest) ([]byte, error) {
	if req.File.Size > h.maxBytes {
		return nil, middleware.NewValidationError(fmt.Sprintf("File exceeds %d bytes", h.maxBytes))
	}
	file, err := req.File.Open()
	if err != nil {
		return nil, middleware.NewInternalError("Failed to open uploaded file", err.Error())
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		return nil, middleware.NewInternalError("Failed to read uploaded file", err.Error())
	}
	if int64(len(data)) > h.maxBytes {
		return nil, middleware.NewValidationError(fmt.Sprintf("File exceeds %d bytes", h.maxBytes))
	}
	return data, nil
}

// respondIngest 成功返回 200，失败返回 422 并带上失败原因
func (h *DocumentHandler) respondIngest(c *gin.Context, res services.IngestResult) {
	if res.Success {
		c.JSON(http.StatusOK, model.NewSuccessResponse(res))
		return
	}

	h.logger.WithFields(logrus.Fields{
		middleware.FieldTraceID: middleware.GetTraceID(c),
		"doc_id":                res.DocumentID,
		middleware.FieldError:   res.Error,
	}).Warn("Ingestion rejected")

	status := http.StatusUnprocessableEntity
	if strings.Contains(res.Error, models.ErrInvalidCategory.Error()) ||
		strings.Contains(res.Error, models.ErrUnsupportedFormat.Error()) {
		status = http.StatusBadRequest
	}
	resp := &model.Response{
		Code:    status,
		Message: res.Error,
		Data:    res,
		TraceID: middleware.GetTraceID(c),
	}
	c.JSON(status, resp)
}
