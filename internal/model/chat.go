package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultSessionTitle 新会话的占位标题
const DefaultSessionTitle = "New Chat"

// MessageRole 消息角色
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatSession 聊天会话
// UpdatedAt is maintained explicitly: it is the timestamp of the latest message (or rename),
// and it drives recency ordering and the session cursor.
type ChatSession struct {
	ID           string        `gorm:"primaryKey;size:36" json:"session_id"`
	UserID       string        `gorm:"index;size:36;not null" json:"-"`
	Title        string        `gorm:"size:500" json:"title"`
	MessageCount int           `gorm:"default:0" json:"message_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `gorm:"index;autoUpdateTime:false" json:"updated_at"`
	Messages     []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// ChatMessage 聊天消息
type ChatMessage struct {
	ID             string      `gorm:"primaryKey;size:36" json:"message_id"`
	SessionID      string      `gorm:"index;size:36;not null" json:"session_id"`
	UserID         string      `gorm:"index;size:36;not null" json:"-"`
	Role           MessageRole `gorm:"size:20" json:"role"`
	Content        string      `gorm:"type:text" json:"content"`
	Sources        SourceList  `gorm:"type:text" json:"sources,omitempty"`
	Reranked       bool        `gorm:"default:false" json:"reranked"`
	ResponseTimeMs *int64      `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time   `gorm:"index" json:"created_at"`
}

// Source 回答引用的文档片段
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	PageNumber *int    `json:"page_number,omitempty"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview"`
}

// SourceList is stored as a JSON column.
type SourceList []Source

// Value 实现 driver.Valuer
func (s SourceList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner
func (s *SourceList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported source list type %T", value)
	}
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
