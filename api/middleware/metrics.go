package middleware

import (
	"strconv"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics 记录请求耗时，路径使用路由模板避免标签爆炸
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
