package handler

import (
	"context"
	"strconv"

	"github.com/ashwinyue/docqa/internal/middleware"
	"github.com/ashwinyue/docqa/internal/service"
	"github.com/gin-gonic/gin"
)

// Pinger 健康检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers 处理器集合
type Handlers struct {
	Document *DocumentHandler
	Chat     *ChatHandler
	Query    *QueryHandler
	System   *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services, db Pinger) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(svc.Document),
		Chat:     NewChatHandler(svc.Chat),
		Query:    NewQueryHandler(svc.Query),
		System:   NewSystemHandler(db, svc.Document, svc.Config.App.Version),
	}
}

// getUserID 获取用户ID，未认证时写入 401
func getUserID(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		Unauthorized(c, "authentication required")
	}
	return userID, ok
}

// queryInt 解析整数查询参数，缺省或非法时返回 def
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
