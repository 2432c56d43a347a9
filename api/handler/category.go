package handler

import (
	"net/http"

	"github.com/fyerfyer/doc-quiz-system/api/middleware"
	"github.com/fyerfyer/doc-quiz-system/api/model"
	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/fyerfyer/doc-quiz-system/internal/services"
	"github.com/gin-gonic/gin"
)

// CategoryHandler 分类相关接口
type CategoryHandler struct {
	ingest *services.IngestService
}

// NewCategoryHandler 创建分类处理器
func NewCategoryHandler(ingest *services.IngestService) *CategoryHandler {
	return &CategoryHandler{ingest: ingest}
}

// ListCategories 返回全部分类
// GET /api/categories
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	all := models.AllCategories()
	out := make([]model.CategoryInfo, len(all))
	for i, cat := range all {
		out[i] = model.CategoryInfo{ID: string(cat), Name: cat.DisplayName()}
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(out))
}

// PurgeCategory 删除知识库中某个分类的全部分段
// DELETE /api/categories/:category/segments
func (h *CategoryHandler) PurgeCategory(c *gin.Context) {
	var req model.PurgeRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid category", err.Error()))
		return
	}

	n, err := h.ingest.PurgeCategory(c.Request.Context(), req.Category)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	cat, _ := models.ParseCategory(req.Category)
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.PurgeResponse{Category: string(cat), Deleted: n}))
}
