package handler

import (
	"github.com/ashwinyue/docqa/internal/service/chat"
	"github.com/gin-gonic/gin"
)

// ChatHandler 聊天处理器
type ChatHandler struct {
	svc *chat.Service
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// SendMessageRequest use_reranking 缺省为 true
type SendMessageRequest struct {
	SessionID    string   `json:"session_id"`
	Message      string   `json:"message" binding:"required"`
	DocumentIDs  []string `json:"document_ids"`
	UseReranking *bool    `json:"use_reranking"`
}

// SendMessage 发送消息
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	useReranking := true
	if req.UseReranking != nil {
		useReranking = *req.UseReranking
	}

	resp, err := h.svc.SendMessage(c.Request.Context(), userID, chat.SendMessageRequest{
		SessionID:    req.SessionID,
		Message:      req.Message,
		DocumentIDs:  req.DocumentIDs,
		UseReranking: useReranking,
	})
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, resp)
}

// ListSessions 会话列表 ?limit=&cursor=
func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	page, err := h.svc.ListSessions(c.Request.Context(), userID, queryInt(c, "limit", 0), c.Query("cursor"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, page)
}

// ListMessages 会话消息 ?limit=&cursor=
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	page, err := h.svc.ListMessages(c.Request.Context(), userID, c.Param("id"), queryInt(c, "limit", 0), c.Query("cursor"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, page)
}

// RenameSessionRequest 重命名请求
type RenameSessionRequest struct {
	Title string `json:"title" binding:"required"`
}

// RenameSession 重命名会话
func (h *ChatHandler) RenameSession(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.svc.RenameSession(c.Request.Context(), userID, c.Param("id"), req.Title); err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"message": "Title updated successfully", "title": req.Title})
}

// DeleteSession 删除会话
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteSession(c.Request.Context(), userID, c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"message": "Session deleted successfully"})
}
