package repository

import (
	"errors"

	"gorm.io/gorm"
)

// Repositories 仓库集合，用于统一管理所有仓库
type Repositories struct {
	DB       *gorm.DB // 直接访问数据库
	Document *DocumentRepository
	Chat     *ChatRepository
	Stats    *StatsRepository
}

// NewRepositories 创建所有仓库
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:       db,
		Document: NewDocumentRepository(db),
		Chat:     NewChatRepository(db),
		Stats:    NewStatsRepository(db),
	}
}

// notFound maps gorm's sentinel onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
