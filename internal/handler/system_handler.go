package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ashwinyue/docqa/internal/service/document"
	"github.com/gin-gonic/gin"
)

// SystemHandler 健康检查与运维接口
type SystemHandler struct {
	db      Pinger
	docs    *document.Service
	version string
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(db Pinger, docs *document.Service, version string) *SystemHandler {
	return &SystemHandler{db: db, docs: docs, version: version}
}

// Health 数据库不可用时返回 503
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": err.Error(),
				"version":  h.version,
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

// IndexStats 向量索引统计
func (h *SystemHandler) IndexStats(c *gin.Context) {
	stats, err := h.docs.IndexStats(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, stats)
}
