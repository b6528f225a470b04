package handler

import (
	"errors"
	"net/http"

	"github.com/ashwinyue/docqa/internal/service/chat"
	"github.com/ashwinyue/docqa/internal/service/document"
	"github.com/ashwinyue/docqa/internal/service/vectorstore"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Success 成功响应 (200)
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// Created 创建成功响应 (201)
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data})
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Msg: msg})
}

// Unauthorized 401 错误响应
func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{Code: 401, Msg: msg})
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Msg: msg})
}

// Conflict 409 错误响应
func Conflict(c *gin.Context, msg string) {
	c.JSON(http.StatusConflict, ErrorResponse{Code: 409, Msg: msg})
}

// InternalServerError 500 错误响应
func InternalServerError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Msg: msg})
}

// Error 根据错误类型返回相应的错误响应
func Error(c *gin.Context, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, document.ErrDocumentNotFound),
		errors.Is(err, chat.ErrSessionNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, document.ErrDocumentProcessing):
		Conflict(c, err.Error())
	case errors.Is(err, document.ErrUnsupportedFileType),
		errors.Is(err, document.ErrFileTooLarge),
		errors.Is(err, document.ErrEmptyFile),
		errors.Is(err, document.ErrInvalidStatus),
		errors.Is(err, chat.ErrInvalidMessage),
		errors.Is(err, chat.ErrInvalidTitle),
		errors.Is(err, vectorstore.ErrTenantRequired):
		BadRequest(c, err.Error())
	default:
		_ = c.Error(err)
		InternalServerError(c, err.Error())
	}
}

// PaginationData 分页响应数据结构
type PaginationData struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages,omitempty"`
}

// SuccessWithPagination 分页成功响应
func SuccessWithPagination(c *gin.Context, items interface{}, total int64, page, pageSize int) {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data: PaginationData{
			Items:      items,
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
		},
	})
}
