package ingest

import (
	"context"
	"fmt"

	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/repository"
	"github.com/ashwinyue/docqa/internal/service/extract"
	"github.com/ashwinyue/docqa/internal/service/storage"
)

// Processor loads the stored upload, extracts its text and runs the pipeline.
type Processor struct {
	pipeline  *Pipeline
	documents repository.DocumentStore
	files     storage.Storage
	extractor extract.Extractor
}

// NewProcessor 创建任务处理器
func NewProcessor(pipeline *Pipeline, documents repository.DocumentStore, files storage.Storage, extractor extract.Extractor) *Processor {
	return &Processor{
		pipeline:  pipeline,
		documents: documents,
		files:     files,
		extractor: extractor,
	}
}

// Handle 实现 Handler
func (p *Processor) Handle(ctx context.Context, job Job) error {
	doc, err := p.documents.GetDocument(ctx, job.TenantID, job.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", job.DocumentID, err)
	}
	if doc.Status != model.StatusProcessing {
		// 已完成的文档重复摄取会产生重复分块
		return nil
	}

	result, err := p.extractText(ctx, doc)
	if err != nil {
		p.pipeline.Fail(ctx, doc.ID, err)
		return err
	}

	_, err = p.pipeline.Ingest(ctx, Request{
		DocumentID: doc.ID,
		TenantID:   doc.UserID,
		Filename:   doc.Filename,
		FileType:   doc.FileType,
		FileSize:   doc.FileSize,
		Text:       result.Text,
		PageCount:  result.PageCount,
	})
	return err
}

func (p *Processor) extractText(ctx context.Context, doc *model.Document) (*extract.Result, error) {
	rc, err := p.files.Open(ctx, doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	defer rc.Close()

	result, err := p.extractor.Extract(ctx, doc.FileType, rc)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	return result, nil
}
