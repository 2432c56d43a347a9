package api

import (
	"net/http"

	"github.com/fyerfyer/doc-quiz-system/api/handler"
	"github.com/fyerfyer/doc-quiz-system/api/middleware"
	"github.com/fyerfyer/doc-quiz-system/api/model"
	"github.com/fyerfyer/doc-quiz-system/internal/metrics"
	"github.com/gin-gonic/gin"
)

// RouterOptions 路由可选项
type RouterOptions struct {
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler // 为空时不暴露 /metrics
	EnableCORS     bool
}

// SetupRouter 设置API路由
func SetupRouter(
	docHandler *handler.DocumentHandler,
	categoryHandler *handler.CategoryHandler,
	questionHandler *handler.QuestionHandler,
	opts RouterOptions,
) *gin.Engine {
	model.RegisterValidators()

	router := gin.New()

	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	if opts.Metrics != nil {
		router.Use(middleware.Metrics(opts.Metrics))
	}
	router.Use(middleware.ErrorMiddleware())
	if opts.EnableCORS {
		router.Use(Cors())
	}
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		docGroup := api.Group("/documents")
		{
			docGroup.POST("", docHandler.UploadDocument)
			docGroup.POST("/text", docHandler.UploadText)
			docGroup.POST("/async", docHandler.UploadDocumentAsync)
			docGroup.GET("", docHandler.ListRecords)
			docGroup.GET("/:id", docHandler.GetRecord)
		}

		catGroup := api.Group("/categories")
		{
			catGroup.GET("", categoryHandler.ListCategories)
			catGroup.DELETE("/:category/segments", categoryHandler.PurgeCategory)
		}

		api.POST("/questions", questionHandler.GenerateQuestion)

		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
