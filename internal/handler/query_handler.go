package handler

import (
	"strings"

	"github.com/ashwinyue/docqa/internal/service/query"
	"github.com/gin-gonic/gin"
)

// QueryHandler 直接问答，不落会话
type QueryHandler struct {
	engine *query.Engine
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(engine *query.Engine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

// QueryRequest 问答请求
type QueryRequest struct {
	Question     string   `json:"question" binding:"required"`
	DocumentIDs  []string `json:"document_ids"`
	TopK         int      `json:"top_k" binding:"omitempty,min=1,max=20"`
	UseReranking *bool    `json:"use_reranking"`
}

// Query 检索增强问答，失败时仍返回 200 与说明性回答
func (h *QueryHandler) Query(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		BadRequest(c, query.ErrEmptyQuestion.Error())
		return
	}
	useReranking := true
	if req.UseReranking != nil {
		useReranking = *req.UseReranking
	}

	result := h.engine.Answer(c.Request.Context(), query.Request{
		TenantID:     userID,
		Question:     req.Question,
		DocumentIDs:  req.DocumentIDs,
		TopK:         req.TopK,
		UseReranking: useReranking,
	})
	Success(c, result)
}
