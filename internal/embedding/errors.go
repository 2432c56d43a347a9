package embedding

import (
	"fmt"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
)

// EmbeddingError 向量化错误
// 超时类错误匹配 models.ErrTimeout，其余匹配 models.ErrEmbeddingUnavailable
type EmbeddingError struct {
	Code    int
	Message string
}

func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// Is 支持 errors.Is 与错误分类比较
func (e EmbeddingError) Is(target error) bool {
	switch target {
	case models.ErrTimeout:
		return e.Code == ErrCodeTimeout
	case models.ErrEmbeddingUnavailable:
		return e.Code != ErrCodeTimeout
	}
	return false
}

// 错误码
const (
	ErrCodeInvalidAPIKey     = 1001
	ErrCodeInvalidRequest    = 1002
	ErrCodeNetworkError      = 1003
	ErrCodeRateLimited       = 1004
	ErrCodeServerError       = 1005
	ErrCodeTimeout           = 1006
	ErrCodeEmptyInput        = 1007
	ErrCodeEmptyVector       = 1008
	ErrCodeDimensionMismatch = 1009
)

// 错误消息
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyInput     = "input text cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgEmptyVector    = "model returned no vector"
)

// NewEmbeddingError 创建向量化错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{Code: code, Message: message}
}
