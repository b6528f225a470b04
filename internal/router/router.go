package router

import (
	"github.com/ashwinyue/docqa/internal/config"
	"github.com/ashwinyue/docqa/internal/handler"
	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, cfg *config.Config, log *logger.Logger) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware(log))
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.CORSMiddleware(cfg.Server.CORSOrigins))

	// 健康检查
	r.GET("/health", h.System.Health)

	// API v1
	v1 := r.Group("/api/v1")
	v1.GET("/health", h.System.Health)
	v1.Use(middleware.AuthMiddleware(&cfg.Auth, cfg.App.Debug))
	{
		// Document 文档
		docs := v1.Group("/documents")
		{
			docs.POST("", h.Document.Upload)
			docs.GET("", h.Document.List)
			docs.GET("/stats/me", h.Document.Stats)
			docs.GET("/:id", h.Document.Get)
			docs.GET("/:id/status", h.Document.Status)
			docs.DELETE("/:id", h.Document.Delete)
		}

		v1.DELETE("/users/me/data", h.Document.DeleteAllUserData)

		// Query 直接问答
		v1.POST("/query", h.Query.Query)

		// Chat 聊天
		chats := v1.Group("/chat")
		{
			send := []gin.HandlerFunc{h.Chat.SendMessage}
			if cfg.Server.ChatRateLimit > 0 {
				limiter := middleware.NewRateLimiter(cfg.Server.ChatRateLimit)
				send = append([]gin.HandlerFunc{limiter.Middleware()}, send...)
			}
			chats.POST("/message", send...)
			chats.GET("/sessions", h.Chat.ListSessions)
			chats.GET("/sessions/:id/messages", h.Chat.ListMessages)
			chats.PUT("/sessions/:id/title", h.Chat.RenameSession)
			chats.DELETE("/sessions/:id", h.Chat.DeleteSession)
		}

		// Admin 运维
		v1.GET("/admin/index/stats", h.System.IndexStats)
	}

	return r
}
