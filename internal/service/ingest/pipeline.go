// Package ingest turns extracted document text into indexed, tenant-scoped
// vector records and chunk rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/repository"
	"github.com/ashwinyue/docqa/internal/service/embedding"
	"github.com/ashwinyue/docqa/internal/service/segment"
	"github.com/ashwinyue/docqa/internal/service/vectorstore"
	"github.com/google/uuid"
)

const (
	// MinTextLength 少于该字符数视为提取失败
	MinTextLength = 10
	// DefaultUpsertBatchSize 单次 upsert 的向量数上限
	DefaultUpsertBatchSize = 100

	previewLength      = 200
	maxErrorMessageLen = 500
)

// ErrInsufficientText 提取文本过短
var ErrInsufficientText = errors.New("insufficient text extracted")

// Request 一次摄取的输入
type Request struct {
	DocumentID string
	TenantID   string
	Filename   string
	FileType   model.FileType
	FileSize   int64
	Text       string
	PageCount  *int
}

// Pipeline 文档摄取流水线
type Pipeline struct {
	segmenter       *segment.Segmenter
	embedder        embedding.Provider
	vectors         vectorstore.Store
	documents       repository.DocumentStore
	stats           repository.StatsStore
	upsertBatchSize int
	log             *logger.Logger
	now             func() time.Time
}

// NewPipeline 创建摄取流水线
func NewPipeline(
	segmenter *segment.Segmenter,
	embedder embedding.Provider,
	vectors vectorstore.Store,
	documents repository.DocumentStore,
	stats repository.StatsStore,
	upsertBatchSize int,
	log *logger.Logger,
) *Pipeline {
	if upsertBatchSize <= 0 || upsertBatchSize > DefaultUpsertBatchSize {
		upsertBatchSize = DefaultUpsertBatchSize
	}
	return &Pipeline{
		segmenter:       segmenter,
		embedder:        embedder,
		vectors:         vectors,
		documents:       documents,
		stats:           stats,
		upsertBatchSize: upsertBatchSize,
		log:             log.With("component", "IngestPipeline"),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Ingest runs the pipeline and returns the terminal document status.
// On failure the document is marked failed and the cause is returned as well.
// Vector batches upserted before a failure are left in place.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (model.DocumentStatus, error) {
	start := time.Now()
	chunkCount, err := p.run(ctx, req)
	if err != nil {
		p.log.Warn("ingestion failed",
			"document_id", req.DocumentID,
			"tenant_id", req.TenantID,
			"error", err,
		)
		p.Fail(ctx, req.DocumentID, err)
		return model.StatusFailed, err
	}

	p.log.Info("ingestion completed",
		"document_id", req.DocumentID,
		"tenant_id", req.TenantID,
		"chunks", chunkCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return model.StatusCompleted, nil
}

// Fail 标记文档失败，错误信息截断到 500 字符
// The write ignores ctx cancellation: a cancelled job must still leave the
// document in a terminal state.
func (p *Pipeline) Fail(ctx context.Context, documentID string, cause error) {
	msg := truncate(cause.Error(), maxErrorMessageLen)
	if err := p.documents.MarkFailed(context.WithoutCancel(ctx), documentID, msg); err != nil {
		p.log.Error("failed to mark document failed", "document_id", documentID, "error", err)
	}
}

func (p *Pipeline) run(ctx context.Context, req Request) (int, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return 0, vectorstore.ErrTenantRequired
	}
	text := strings.TrimSpace(req.Text)
	if utf8.RuneCountInString(text) < MinTextLength {
		return 0, ErrInsufficientText
	}

	chunks := p.segmenter.Split(text)
	if len(chunks) == 0 {
		return 0, errors.New("no chunks produced from document text")
	}

	vectors, err := p.embedder.EmbedMany(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	createdAt := p.now().Format(time.RFC3339)
	records := make([]vectorstore.Record, len(chunks))
	rows := make([]*model.DocumentChunk, len(chunks))
	for i, chunk := range chunks {
		page := estimatePage(req.FileType, req.PageCount, i)
		id := vectorstore.VectorID(req.TenantID, req.DocumentID, i)

		records[i] = vectorstore.Record{
			ID:     id,
			Values: vectors[i],
			Metadata: vectorstore.Metadata{
				TenantID:   req.TenantID,
				DocumentID: req.DocumentID,
				Filename:   req.Filename,
				ChunkIndex: i,
				Text:       truncate(chunk, previewLength),
				PageNumber: page,
				CreatedAt:  createdAt,
			},
		}
		rows[i] = &model.DocumentChunk{
			ID:          uuid.New().String(),
			DocumentID:  req.DocumentID,
			ChunkIndex:  i,
			Text:        chunk,
			ChunkLength: utf8.RuneCountInString(chunk),
			PageNumber:  page,
			VectorID:    id,
		}
	}

	for startIdx := 0; startIdx < len(records); startIdx += p.upsertBatchSize {
		end := startIdx + p.upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := p.vectors.Upsert(ctx, records[startIdx:end]); err != nil {
			return 0, fmt.Errorf("failed to upsert vectors %d-%d: %w", startIdx, end, err)
		}
	}

	if err := p.documents.CreateChunks(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to save chunks: %w", err)
	}

	wordCount := segment.CountWords(text)
	if err := p.documents.MarkCompleted(ctx, req.DocumentID, req.PageCount, wordCount, len(chunks)); err != nil {
		return 0, fmt.Errorf("failed to mark document completed: %w", err)
	}

	if err := p.stats.RecordDocumentAdded(ctx, req.TenantID, req.FileSize, p.now()); err != nil {
		p.log.Warn("failed to update stats", "tenant_id", req.TenantID, "error", err)
	}
	return len(chunks), nil
}

// estimatePage 仅 PDF 且页数已知时估算页码，按每页约两个分块
func estimatePage(fileType model.FileType, pageCount *int, index int) *int {
	if fileType != model.FileTypePDF || pageCount == nil || *pageCount <= 0 {
		return nil
	}
	page := index/2 + 1
	if page > *pageCount {
		page = *pageCount
	}
	return &page
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
