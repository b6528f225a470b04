package repository

import (
	"context"

	"github.com/ashwinyue/docqa/internal/model"
	"gorm.io/gorm"
)

// DocumentRepository 文档数据访问
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建文档仓库
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateDocument 创建文档
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// GetDocumentByID 按 ID 获取文档，不校验归属
func (r *DocumentRepository) GetDocumentByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

// GetDocument 获取属于 userID 的文档
func (r *DocumentRepository) GetDocument(ctx context.Context, userID, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&doc).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

// ListDocuments 列出文档，status 为空时不过滤
func (r *DocumentRepository) ListDocuments(ctx context.Context, userID string, status model.DocumentStatus, offset, limit int) ([]*model.Document, int64, error) {
	var docs []*model.Document
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Document{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&docs).Error
	return docs, total, err
}

// ListByStatus 跨租户按状态列出文档，按创建时间升序
func (r *DocumentRepository) ListByStatus(ctx context.Context, status model.DocumentStatus) ([]*model.Document, error) {
	var docs []*model.Document
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&docs).Error
	return docs, err
}

// MarkCompleted 标记处理完成并写入派生计数
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id string, pageCount *int, wordCount, chunkCount int) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.StatusCompleted,
			"page_count":    pageCount,
			"word_count":    wordCount,
			"chunk_count":   chunkCount,
			"error_message": nil,
		}).Error
}

// MarkFailed 标记处理失败
func (r *DocumentRepository) MarkFailed(ctx context.Context, id, message string) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.StatusFailed,
			"error_message": message,
		}).Error
}

// DeleteDocument 删除文档及其分块
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.DocumentChunk{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Document{}, "id = ?", id).Error
	})
}

// DeleteByUser 删除用户全部文档与分块
func (r *DocumentRepository) DeleteByUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&model.Document{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("document_id IN (?)", sub).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Document{}, "user_id = ?", userID).Error
	})
}

// CreateChunks 创建文档分块
func (r *DocumentRepository) CreateChunks(ctx context.Context, chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error
}

// GetChunk 按 (document_id, chunk_index) 取分块
func (r *DocumentRepository) GetChunk(ctx context.Context, documentID string, chunkIndex int) (*model.DocumentChunk, error) {
	var chunk model.DocumentChunk
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND chunk_index = ?", documentID, chunkIndex).
		Order("created_at ASC").
		First(&chunk).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &chunk, nil
}
