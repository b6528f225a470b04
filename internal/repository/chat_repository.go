package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ashwinyue/docqa/internal/model"
	"gorm.io/gorm"
)

// ChatRepository 聊天数据访问
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建聊天仓库
func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateSession 创建会话
func (r *ChatRepository) CreateSession(ctx context.Context, session *model.ChatSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetSession 获取属于 userID 的会话
func (r *ChatRepository) GetSession(ctx context.Context, userID, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&session).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// ListSessions 按 updated_at 倒序列出会话，before 非空时只取更早的
func (r *ChatRepository) ListSessions(ctx context.Context, userID string, before *time.Time, limit int) ([]*model.ChatSession, error) {
	var sessions []*model.ChatSession
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if before != nil {
		query = query.Where("updated_at < ?", *before)
	}
	err := query.Order("updated_at DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

// CountSessions 统计会话数
func (r *ChatRepository) CountSessions(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// RecordExchange adds one user/assistant pair to the session counter and moves
// updated_at to at. Returns the new message count.
func (r *ChatRepository) RecordExchange(ctx context.Context, sessionID string, at time.Time) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ChatSession{}).
			Where("id = ?", sessionID).
			Updates(map[string]interface{}{
				"message_count": gorm.Expr("message_count + ?", 2),
				"updated_at":    at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var session model.ChatSession
		if err := tx.Select("message_count").Where("id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}
		count = session.MessageCount
		return nil
	})
	return count, err
}

// UpdateTitle 更新会话标题
func (r *ChatRepository) UpdateTitle(ctx context.Context, userID, id, title string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"title":      title,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession 删除会话及其消息
func (r *ChatRepository) DeleteSession(ctx context.Context, userID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.ChatSession{}, "id = ? AND user_id = ?", id, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Delete(&model.ChatMessage{}, "session_id = ?", id).Error
	})
}

// DeleteByUser 删除用户全部会话与消息
func (r *ChatRepository) DeleteByUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.ChatMessage{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		return tx.Delete(&model.ChatSession{}, "user_id = ?", userID).Error
	})
}

// CreateMessage 创建消息
func (r *ChatRepository) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// ListMessages 按 created_at 倒序取消息，before 非空时只取更早的
func (r *ChatRepository) ListMessages(ctx context.Context, sessionID string, before *time.Time, limit int) ([]*model.ChatMessage, error) {
	var messages []*model.ChatMessage
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}
	err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// CountMessages 统计会话消息数
func (r *ChatRepository) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error
	return total, err
}

// LatestMessage 最新一条消息，会话为空时返回 nil
func (r *ChatRepository) LatestMessage(ctx context.Context, sessionID string) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
