package handler

import (
	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/service/document"
	"github.com/gin-gonic/gin"
)

// DocumentHandler 文档处理器
type DocumentHandler struct {
	svc *document.Service
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(svc *document.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload 上传文档，multipart 字段 file
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required")
		return
	}
	if fh.Filename == "" {
		BadRequest(c, "filename is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		InternalServerError(c, "failed to read upload")
		return
	}
	defer f.Close()

	resp, err := h.svc.Upload(c.Request.Context(), userID, document.UploadRequest{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Reader:      f,
	})
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, resp)
}

// List 文档列表 ?status=&page=&size=
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	status := model.DocumentStatus(c.Query("status"))
	result, err := h.svc.List(c.Request.Context(), userID, status, queryInt(c, "page", 1), queryInt(c, "size", 20))
	if err != nil {
		Error(c, err)
		return
	}
	SuccessWithPagination(c, result.Documents, result.Total, result.Page, result.PageSize)
}

// Get 文档详情
func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	doc, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, doc)
}

// Status 处理状态，供客户端轮询
func (h *DocumentHandler) Status(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	doc, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{
		"document_id":   doc.ID,
		"status":        doc.Status,
		"chunk_count":   doc.ChunkCount,
		"error_message": doc.ErrorMessage,
	})
}

// Delete 删除文档
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), userID, id); err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"message": "Document deleted successfully", "document_id": id})
}

// Stats 当前用户统计
func (h *DocumentHandler) Stats(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	stats, err := h.svc.Stats(c.Request.Context(), userID)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, stats)
}

// DeleteAllUserData 删除当前用户的全部数据
func (h *DocumentHandler) DeleteAllUserData(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteAllUserData(c.Request.Context(), userID); err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"message": "All user data deleted successfully"})
}
