package handler

import (
	"net/http"

	"github.com/fyerfyer/doc-quiz-system/api/middleware"
	"github.com/fyerfyer/doc-quiz-system/api/model"
	"github.com/fyerfyer/doc-quiz-system/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// QuestionHandler 出题接口
type QuestionHandler struct {
	questions *services.QuestionService
	logger    *logrus.Logger
}

// NewQuestionHandler 创建出题处理器
func NewQuestionHandler(questions *services.QuestionService) *QuestionHandler {
	return &QuestionHandler{
		questions: questions,
		logger:    middleware.GetLogger(),
	}
}

// GenerateQuestion 生成一道选择题
// POST /api/questions
// 任何失败都只返回统一提示，具体原因写入日志
func (h *QuestionHandler) GenerateQuestion(c *gin.Context) {
	var req model.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithFields(logrus.Fields{
			middleware.FieldTraceID: middleware.GetTraceID(c),
			middleware.FieldError:   err.Error(),
		}).Warn("Invalid question request")
		c.JSON(http.StatusBadRequest, model.QuestionErrorResponse{Error: model.QuestionErrorMessage})
		return
	}

	res, err := h.questions.Generate(c.Request.Context(), req.Topic, req.Language, req.Category)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			middleware.FieldTraceID: middleware.GetTraceID(c),
			middleware.FieldError:   err.Error(),
			"topic":                 req.Topic,
		}).Error("Question generation failed")
		c.JSON(http.StatusInternalServerError, model.QuestionErrorResponse{Error: model.QuestionErrorMessage})
		return
	}

	c.JSON(http.StatusOK, res)
}
