package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/contract-ai/internal/handler"
	"github.com/ashwinyue/contract-ai/internal/middleware"
	"github.com/ashwinyue/contract-ai/internal/service"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, svc *service.Services) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// Auth 认证
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", h.Auth.Register)
			authGroup.POST("/login", h.Auth.Login)
			authGroup.POST("/logout", middleware.RequireAuth(svc), h.Auth.Logout)
			authGroup.GET("/me", middleware.RequireAuth(svc), h.Auth.Me)
		}

		// 以下路由均要求认证，租户范围取自令牌
		authed := v1.Group("", middleware.RequireAuth(svc))

		// Document 合同文档
		docs := authed.Group("/documents")
		{
			docs.POST("", h.Document.Upload)
			docs.GET("", h.Document.List)
			docs.GET("/:id", h.Document.Get)
			docs.GET("/:id/status", h.Document.GetStatus)
			docs.GET("/:id/chunks", h.Document.GetChunks)
			docs.POST("/:id/process", h.Document.Reprocess)
			docs.DELETE("/:id", h.Document.Delete)
		}

		// Query 检索问答
		query := authed.Group("/query")
		{
			query.POST("", h.Query.Ask)
			query.GET("/history", h.Query.History)
			query.GET("/suggestions", h.Query.Suggestions)
		}

		// Analytics 统计
		authed.GET("/analytics", h.Query.Analytics)

		// System 系统
		authed.GET("/system/info", h.System.GetSystemInfo)
	}

	return r
}
