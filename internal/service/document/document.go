// Package document manages the lifecycle of uploaded documents: upload,
// listing, deletion and per-tenant statistics.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/repository"
	"github.com/ashwinyue/docqa/internal/service/ingest"
	"github.com/ashwinyue/docqa/internal/service/storage"
	"github.com/ashwinyue/docqa/internal/service/vectorstore"
	"github.com/google/uuid"
)

const (
	DefaultMaxFileSizeMB = 10
	defaultPageSize      = 20
	maxPageSize          = 100

	uploadMessage = "Document uploaded successfully. Processing in background."
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDocumentProcessing  = errors.New("document is still processing")
	ErrUnsupportedFileType = errors.New("file type not supported. Allowed: PDF, DOCX, TXT, XLSX, XLS")
	ErrFileTooLarge        = errors.New("file too large")
	ErrEmptyFile           = errors.New("file is empty")
	ErrInvalidStatus       = errors.New("invalid status. Valid options: processing, completed, failed")
)

// Service 文档服务
type Service struct {
	documents repository.DocumentStore
	sessions  repository.SessionStore
	stats     repository.StatsStore
	vectors   vectorstore.Store
	files     storage.Storage
	queue     ingest.Queue
	maxSize   int64
	log       *logger.Logger
	now       func() time.Time
}

// Config 文档服务依赖
type Config struct {
	Documents     repository.DocumentStore
	Sessions      repository.SessionStore
	Stats         repository.StatsStore
	Vectors       vectorstore.Store
	Files         storage.Storage
	Queue         ingest.Queue
	MaxFileSizeMB int
	Logger        *logger.Logger
}

// NewService 创建文档服务
func NewService(cfg Config) *Service {
	maxMB := cfg.MaxFileSizeMB
	if maxMB <= 0 {
		maxMB = DefaultMaxFileSizeMB
	}
	return &Service{
		documents: cfg.Documents,
		sessions:  cfg.Sessions,
		stats:     cfg.Stats,
		vectors:   cfg.Vectors,
		files:     cfg.Files,
		queue:     cfg.Queue,
		maxSize:   int64(maxMB) * 1024 * 1024,
		log:       cfg.Logger.With("component", "DocumentService"),
		now:       time.Now,
	}
}

// UploadRequest 上传请求
type UploadRequest struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UploadResponse 上传响应
type UploadResponse struct {
	DocumentID string               `json:"document_id"`
	Filename   string               `json:"filename"`
	FileType   model.FileType       `json:"file_type"`
	FileSize   int64                `json:"file_size"`
	Status     model.DocumentStatus `json:"status"`
	Message    string               `json:"message"`
}

// MaxFileSize 上传大小上限（字节）
func (s *Service) MaxFileSize() int64 {
	return s.maxSize
}

// Upload stores the file, creates the document row in processing state and
// hands it to the ingestion queue.
func (s *Service) Upload(ctx context.Context, tenantID string, req UploadRequest) (*UploadResponse, error) {
	fileType, ok := model.FileTypeFromName(req.Filename)
	if !ok {
		return nil, ErrUnsupportedFileType
	}
	if req.Size > s.maxSize {
		return nil, fmt.Errorf("%w: max size %dMB", ErrFileTooLarge, s.maxSize/(1024*1024))
	}
	if req.Size == 0 {
		return nil, ErrEmptyFile
	}

	key, err := s.files.Save(ctx, &storage.SaveRequest{
		TenantID:    tenantID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.Size,
		Reader:      req.Reader,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	doc := &model.Document{
		ID:        uuid.New().String(),
		UserID:    tenantID,
		Filename:  req.Filename,
		FileType:  fileType,
		FileSize:  req.Size,
		FilePath:  key,
		Status:    model.StatusProcessing,
		CreatedAt: s.now().UTC(),
	}
	if err := s.documents.CreateDocument(ctx, doc); err != nil {
		s.removeFile(ctx, key)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	if err := s.queue.Enqueue(ctx, ingest.Job{DocumentID: doc.ID, TenantID: tenantID}); err != nil {
		if markErr := s.documents.MarkFailed(context.WithoutCancel(ctx), doc.ID, "failed to schedule processing: "+err.Error()); markErr != nil {
			s.log.Error("failed to mark document failed", "document_id", doc.ID, "error", markErr)
		}
		return nil, fmt.Errorf("failed to enqueue document: %w", err)
	}

	s.log.Info("document uploaded", "document_id", doc.ID, "tenant_id", tenantID, "file_type", fileType, "size", req.Size)
	return &UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		FileType:   doc.FileType,
		FileSize:   doc.FileSize,
		Status:     doc.Status,
		Message:    uploadMessage,
	}, nil
}

// ListResult 文档分页
type ListResult struct {
	Documents []*model.Document `json:"documents"`
	Total     int64             `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
}

// List 按上传时间倒序分页，page 从 1 开始
func (s *Service) List(ctx context.Context, tenantID string, status model.DocumentStatus, page, pageSize int) (*ListResult, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	docs, total, err := s.documents.ListDocuments(ctx, tenantID, status, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	return &ListResult{Documents: docs, Total: total, Page: page, PageSize: pageSize}, nil
}

// Get 获取租户自己的文档
func (s *Service) Get(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	doc, err := s.documents.GetDocument(ctx, tenantID, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// Delete removes vectors first, then the relational rows, then the file.
// Documents still being ingested cannot be deleted.
func (s *Service) Delete(ctx context.Context, tenantID, documentID string) error {
	doc, err := s.Get(ctx, tenantID, documentID)
	if err != nil {
		return err
	}
	if doc.Status == model.StatusProcessing {
		return ErrDocumentProcessing
	}

	if err := s.vectors.Delete(ctx, vectorstore.Filter{TenantID: tenantID, DocumentIDs: []string{documentID}}); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if err := s.documents.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	// 只有处理完成的文档计入过统计
	if doc.Status == model.StatusCompleted {
		if err := s.stats.RecordDocumentRemoved(ctx, tenantID, doc.FileSize); err != nil {
			s.log.Warn("failed to update stats", "tenant_id", tenantID, "error", err)
		}
	}
	s.removeFile(ctx, doc.FilePath)

	s.log.Info("document deleted", "document_id", documentID, "tenant_id", tenantID)
	return nil
}

// StatsResponse 租户统计
type StatsResponse struct {
	TotalDocuments int        `json:"total_documents"`
	TotalQueries   int        `json:"total_queries"`
	StorageUsed    int64      `json:"storage_used"`
	StorageUsedMB  float64    `json:"storage_used_mb"`
	LastActivity   *time.Time `json:"last_activity"`
}

// Stats 租户统计，不存在时创建
func (s *Service) Stats(ctx context.Context, tenantID string) (*StatsResponse, error) {
	st, err := s.stats.GetStats(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &StatsResponse{
		TotalDocuments: st.TotalDocuments,
		TotalQueries:   st.TotalQueries,
		StorageUsed:    st.StorageUsed,
		StorageUsedMB:  st.StorageUsedMB(),
		LastActivity:   st.LastActivity,
	}, nil
}

// DeleteAllUserData removes every vector, document, chunk, session, message
// and stats row belonging to the tenant. Stored files are left to storage
// lifecycle rules.
func (s *Service) DeleteAllUserData(ctx context.Context, tenantID string) error {
	if err := s.vectors.Delete(ctx, vectorstore.Filter{TenantID: tenantID}); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if err := s.documents.DeleteByUser(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	if err := s.sessions.DeleteByUser(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	if err := s.stats.DeleteByUser(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete stats: %w", err)
	}
	s.log.Info("deleted all tenant data", "tenant_id", tenantID)
	return nil
}

// ResumeProcessing re-enqueues every document still marked processing.
// Used at startup with the in-process queue, whose pending jobs do not survive
// a restart. A document that cannot be enqueued is marked failed so it can be
// deleted. Returns the number of jobs enqueued.
func (s *Service) ResumeProcessing(ctx context.Context) (int, error) {
	docs, err := s.documents.ListByStatus(ctx, model.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing documents: %w", err)
	}

	resumed := 0
	for _, doc := range docs {
		if err := s.queue.Enqueue(ctx, ingest.Job{DocumentID: doc.ID, TenantID: doc.UserID}); err != nil {
			s.log.Warn("failed to resume document", "document_id", doc.ID, "error", err)
			if markErr := s.documents.MarkFailed(context.WithoutCancel(ctx), doc.ID, "failed to resume processing: "+err.Error()); markErr != nil {
				s.log.Error("failed to mark document failed", "document_id", doc.ID, "error", markErr)
			}
			continue
		}
		resumed++
	}
	if len(docs) > 0 {
		s.log.Info("resumed interrupted ingestions", "found", len(docs), "enqueued", resumed)
	}
	return resumed, nil
}

// IndexStats 向量索引统计
func (s *Service) IndexStats(ctx context.Context) (*vectorstore.IndexStats, error) {
	return s.vectors.Stats(ctx)
}

func (s *Service) removeFile(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.files.Delete(ctx, key); err != nil {
		s.log.Warn("failed to delete stored file", "key", key, "error", err)
	}
}
