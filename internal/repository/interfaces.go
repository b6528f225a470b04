// Package repository 定义数据访问接口
// 接口抽象使依赖注入和单元测试成为可能
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ashwinyue/docqa/internal/model"
)

// ErrNotFound 记录不存在或不属于该租户
var ErrNotFound = errors.New("record not found")

// ========== DocumentStore 接口 ==========

// DocumentStore 文档与分块数据访问
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocumentByID(ctx context.Context, id string) (*model.Document, error)
	GetDocument(ctx context.Context, userID, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, userID string, status model.DocumentStatus, offset, limit int) ([]*model.Document, int64, error)
	ListByStatus(ctx context.Context, status model.DocumentStatus) ([]*model.Document, error)
	MarkCompleted(ctx context.Context, id string, pageCount *int, wordCount, chunkCount int) error
	MarkFailed(ctx context.Context, id, message string) error
	DeleteDocument(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error

	CreateChunks(ctx context.Context, chunks []*model.DocumentChunk) error
	GetChunk(ctx context.Context, documentID string, chunkIndex int) (*model.DocumentChunk, error)
}

// ========== SessionStore 接口 ==========

// SessionStore 会话与消息数据访问
type SessionStore interface {
	CreateSession(ctx context.Context, session *model.ChatSession) error
	GetSession(ctx context.Context, userID, id string) (*model.ChatSession, error)
	ListSessions(ctx context.Context, userID string, before *time.Time, limit int) ([]*model.ChatSession, error)
	CountSessions(ctx context.Context, userID string) (int64, error)
	RecordExchange(ctx context.Context, sessionID string, at time.Time) (int, error)
	UpdateTitle(ctx context.Context, userID, id, title string, at time.Time) error
	DeleteSession(ctx context.Context, userID, id string) error
	DeleteByUser(ctx context.Context, userID string) error

	CreateMessage(ctx context.Context, msg *model.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string, before *time.Time, limit int) ([]*model.ChatMessage, error)
	CountMessages(ctx context.Context, sessionID string) (int64, error)
	LatestMessage(ctx context.Context, sessionID string) (*model.ChatMessage, error)
}

// ========== StatsStore 接口 ==========

// StatsStore 租户统计数据访问
type StatsStore interface {
	GetStats(ctx context.Context, userID string) (*model.UserStats, error)
	RecordDocumentAdded(ctx context.Context, userID string, size int64, at time.Time) error
	RecordDocumentRemoved(ctx context.Context, userID string, size int64) error
	RecordQuery(ctx context.Context, userID string, at time.Time) error
	DeleteByUser(ctx context.Context, userID string) error
}

// 确保实现了接口
var (
	_ DocumentStore = (*DocumentRepository)(nil)
	_ SessionStore  = (*ChatRepository)(nil)
	_ StatsStore    = (*StatsRepository)(nil)
)
