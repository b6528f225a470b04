package repository

import (
	"context"
	"time"

	"github.com/ashwinyue/docqa/internal/model"
	"gorm.io/gorm"
)

// StatsRepository 用户统计数据访问
type StatsRepository struct {
	db *gorm.DB
}

// NewStatsRepository 创建统计仓库
func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetStats 获取统计，不存在时创建
func (r *StatsRepository) GetStats(ctx context.Context, userID string) (*model.UserStats, error) {
	var stats model.UserStats
	err := r.db.WithContext(ctx).
		Where(model.UserStats{UserID: userID}).
		FirstOrCreate(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// RecordDocumentAdded 文档数 +1，存储用量 +size
func (r *StatsRepository) RecordDocumentAdded(ctx context.Context, userID string, size int64, at time.Time) error {
	return r.update(ctx, userID, map[string]interface{}{
		"total_documents": gorm.Expr("total_documents + ?", 1),
		"storage_used":    gorm.Expr("storage_used + ?", size),
		"last_activity":   at,
	})
}

// RecordDocumentRemoved 文档数 -1，存储用量 -size，均不低于 0
func (r *StatsRepository) RecordDocumentRemoved(ctx context.Context, userID string, size int64) error {
	return r.update(ctx, userID, map[string]interface{}{
		"total_documents": gorm.Expr("CASE WHEN total_documents > 0 THEN total_documents - 1 ELSE 0 END"),
		"storage_used":    gorm.Expr("CASE WHEN storage_used > ? THEN storage_used - ? ELSE 0 END", size, size),
	})
}

// RecordQuery 查询数 +1
func (r *StatsRepository) RecordQuery(ctx context.Context, userID string, at time.Time) error {
	return r.update(ctx, userID, map[string]interface{}{
		"total_queries": gorm.Expr("total_queries + ?", 1),
		"last_activity": at,
	})
}

// DeleteByUser 删除用户统计
func (r *StatsRepository) DeleteByUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Delete(&model.UserStats{}, "user_id = ?", userID).Error
}

func (r *StatsRepository) update(ctx context.Context, userID string, values map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stats model.UserStats
		if err := tx.Where(model.UserStats{UserID: userID}).FirstOrCreate(&stats).Error; err != nil {
			return err
		}
		return tx.Model(&model.UserStats{}).Where("user_id = ?", userID).Updates(values).Error
	})
}
