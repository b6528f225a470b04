package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/service/segment"
	"github.com/ashwinyue/docqa/internal/service/vectorstore"
	"github.com/ashwinyue/docqa/internal/testutil"
)

// failingStore fails the nth Upsert call
type failingStore struct {
	mu      sync.Mutex
	calls   int
	failOn  int
	err     error
	batches [][]vectorstore.Record
}

func (s *failingStore) Upsert(ctx context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls == s.failOn {
		return s.err
	}
	s.batches = append(s.batches, records)
	return nil
}

func (s *failingStore) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	return nil, nil
}

func (s *failingStore) Delete(ctx context.Context, filter vectorstore.Filter) error { return nil }

func (s *failingStore) Stats(ctx context.Context) (*vectorstore.IndexStats, error) {
	return &vectorstore.IndexStats{}, nil
}

type fixture struct {
	docs     *testutil.MemoryDocumentStore
	stats    *testutil.MemoryStatsStore
	embedder *testutil.FakeEmbedder
	vectors  vectorstore.Store
	pipeline *Pipeline
}

func newFixture(t *testing.T, vectors vectorstore.Store, size, overlap, batch int) *fixture {
	t.Helper()
	seg, err := segment.New(size, overlap)
	if err != nil {
		t.Fatalf("segment.New() error = %v", err)
	}
	if vectors == nil {
		vectors, err = vectorstore.NewChromemStore("", "ingest-test")
		if err != nil {
			t.Fatalf("NewChromemStore() error = %v", err)
		}
	}
	f := &fixture{
		docs:     testutil.NewMemoryDocumentStore(),
		stats:    testutil.NewMemoryStatsStore(),
		embedder: testutil.NewFakeEmbedder(),
		vectors:  vectors,
	}
	f.pipeline = NewPipeline(seg, f.embedder, vectors, f.docs, f.stats, batch, logger.Nop())
	return f
}

func (f *fixture) addDocument(t *testing.T, id, tenant string, fileType model.FileType) {
	t.Helper()
	err := f.docs.CreateDocument(context.Background(), &model.Document{
		ID:       id,
		UserID:   tenant,
		Filename: id + ".txt",
		FileType: fileType,
		FileSize: 2048,
		Status:   model.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
}

func longText(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "Paragraph %d talks about topic number %d in some detail. It has two sentences.\n\n", i, i)
	}
	return b.String()
}

func TestPipeline_Success(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	ctx := context.Background()
	f := newFixture(t, nil, 200, 20, 100)
	f.addDocument(t, "doc1", "tenant1", model.FileTypeTXT)

	status, err := f.pipeline.Ingest(ctx, Request{
		DocumentID: "doc1",
		TenantID:   "tenant1",
		Filename:   "doc1.txt",
		FileType:   model.FileTypeTXT,
		FileSize:   2048,
		Text:       longText(10),
	})
	assert.NoError(err)
	assert.Equal(model.StatusCompleted, status)

	doc, _ := f.docs.GetDocumentByID(ctx, "doc1")
	assert.Equal(model.StatusCompleted, doc.Status)
	assert.True(doc.ChunkCount != nil && *doc.ChunkCount > 1, "expected several chunks")
	assert.True(doc.WordCount != nil && *doc.WordCount > 0)
	assert.True(doc.PageCount == nil, "txt has no page count")
	assert.Len(len(f.docs.ChunksOf("doc1")), *doc.ChunkCount)

	for i, c := range f.docs.ChunksOf("doc1") {
		assert.Equal(vectorstore.VectorID("tenant1", "doc1", i), c.VectorID)
		assert.True(c.PageNumber == nil)
	}

	stats, _ := f.stats.GetStats(ctx, "tenant1")
	assert.Equal(1, stats.TotalDocuments)
	assert.Equal(int64(2048), stats.StorageUsed)
	assert.True(stats.LastActivity != nil)

	idx, _ := f.vectors.Stats(ctx)
	assert.Equal(int64(*doc.ChunkCount), idx.TotalVectors)

	matches, err := f.vectors.Query(ctx, make32(f.embedder, "topic number 3"), 3, vectorstore.Filter{TenantID: "tenant1"})
	assert.NoError(err)
	assert.True(len(matches) > 0)
	for _, m := range matches {
		assert.Equal("tenant1", m.Metadata.TenantID)
		assert.True(utf8.RuneCountInString(m.Metadata.Text) <= 200, "preview is capped")
	}
}

func make32(e *testutil.FakeEmbedder, text string) []float32 {
	v, _ := e.EmbedOne(context.Background(), text)
	return v
}

func TestPipeline_InsufficientText(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	ctx := context.Background()
	f := newFixture(t, nil, 200, 20, 100)
	f.addDocument(t, "doc1", "tenant1", model.FileTypeTXT)

	status, err := f.pipeline.Ingest(ctx, Request{DocumentID: "doc1", TenantID: "tenant1", Text: "   short   "})
	assert.ErrorIs(err, ErrInsufficientText)
	assert.Equal(model.StatusFailed, status)
	assert.Equal(0, f.embedder.Calls)

	doc, _ := f.docs.GetDocumentByID(ctx, "doc1")
	assert.Equal(model.StatusFailed, doc.Status)
	assert.Equal("insufficient text extracted", *doc.ErrorMessage)
}

func TestPipeline_UpsertBatchFailure(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	ctx := context.Background()
	store := &failingStore{failOn: 2, err: errors.New(strings.Repeat("x", 800))}
	f := newFixture(t, store, 100, 10, 2)
	f.addDocument(t, "doc1", "tenant1", model.FileTypeTXT)

	status, err := f.pipeline.Ingest(ctx, Request{DocumentID: "doc1", TenantID: "tenant1", Text: longText(6)})
	assert.Error(err)
	assert.Equal(model.StatusFailed, status)

	doc, _ := f.docs.GetDocumentByID(ctx, "doc1")
	assert.Equal(model.StatusFailed, doc.Status)
	assert.Equal(500, utf8.RuneCountInString(*doc.ErrorMessage))

	// the first batch stays in the index
	assert.Len(len(store.batches), 1)
	assert.Len(len(store.batches[0]), 2)
	assert.Len(len(f.docs.ChunksOf("doc1")), 0)

	stats, _ := f.stats.GetStats(ctx, "tenant1")
	assert.Equal(0, stats.TotalDocuments)
}

func TestPipeline_EmbeddingFailure(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t, nil, 200, 20, 100)
	f.addDocument(t, "doc1", "tenant1", model.FileTypeTXT)
	f.embedder.Err = errors.New("provider unavailable")

	status, err := f.pipeline.Ingest(context.Background(), Request{DocumentID: "doc1", TenantID: "tenant1", Text: longText(3)})
	assert.ErrorContains(err, "provider unavailable")
	assert.Equal(model.StatusFailed, status)
}

func TestPipeline_PDFPageEstimate(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	ctx := context.Background()
	store := &failingStore{}
	f := newFixture(t, store, 100, 10, 100)
	f.addDocument(t, "doc1", "tenant1", model.FileTypePDF)

	pages := 2
	_, err := f.pipeline.Ingest(ctx, Request{
		DocumentID: "doc1",
		TenantID:   "tenant1",
		FileType:   model.FileTypePDF,
		Text:       longText(8),
		PageCount:  &pages,
	})
	assert.NoError(err)

	records := store.batches[0]
	assert.True(len(records) > 4, "need several chunks")
	for i, r := range records {
		want := i/2 + 1
		if want > pages {
			want = pages
		}
		assert.True(r.Metadata.PageNumber != nil, "pdf chunks carry a page")
		assert.Equal(want, *r.Metadata.PageNumber)
		_, ok := r.Metadata.Fields()[vectorstore.FieldPageNumber]
		assert.True(ok)
	}

	doc, _ := f.docs.GetDocumentByID(ctx, "doc1")
	assert.Equal(2, *doc.PageCount)
}

func TestEstimatePage(t *testing.T) {
	three := 3
	zero := 0
	tests := []struct {
		name      string
		fileType  model.FileType
		pageCount *int
		index     int
		want      *int
	}{
		{"pdf first chunk", model.FileTypePDF, &three, 0, intPtr(1)},
		{"pdf third chunk", model.FileTypePDF, &three, 2, intPtr(2)},
		{"pdf capped", model.FileTypePDF, &three, 40, intPtr(3)},
		{"pdf unknown pages", model.FileTypePDF, nil, 1, nil},
		{"pdf zero pages", model.FileTypePDF, &zero, 1, nil},
		{"docx", model.FileTypeDOCX, &three, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimatePage(tt.fileType, tt.pageCount, tt.index)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("estimatePage() = %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("estimatePage() = %d, want %d", *got, *tt.want)
			}
		})
	}
}

func intPtr(n int) *int { return &n }

func TestPipeline_ReingestDuplicatesChunkRowsOnly(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	ctx := context.Background()
	f := newFixture(t, nil, 200, 20, 100)
	f.addDocument(t, "doc1", "tenant1", model.FileTypeTXT)

	req := Request{DocumentID: "doc1", TenantID: "tenant1", Text: longText(5)}
	_, err := f.pipeline.Ingest(ctx, req)
	assert.NoError(err)
	first := len(f.docs.ChunksOf("doc1"))

	_, err = f.pipeline.Ingest(ctx, req)
	assert.NoError(err)

	idx, _ := f.vectors.Stats(ctx)
	assert.Equal(int64(first), idx.TotalVectors, "vector ids are deterministic")
	assert.Len(len(f.docs.ChunksOf("doc1")), 2*first)
}

// ctxDocumentStore rejects writes on a done context, like gorm does.
type ctxDocumentStore struct {
	*testutil.MemoryDocumentStore
}

func (s ctxDocumentStore) MarkFailed(ctx context.Context, id, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryDocumentStore.MarkFailed(ctx, id, message)
}

// blockingEmbedder blocks until ctx is cancelled.
type blockingEmbedder struct {
	started chan struct{}
}

func (e *blockingEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *blockingEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	close(e.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPipeline_CancelledIngestionMarksFailed(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	seg, err := segment.New(200, 20)
	assert.NoError(err)
	vectors, err := vectorstore.NewChromemStore("", "cancel-test")
	assert.NoError(err)

	docs := ctxDocumentStore{testutil.NewMemoryDocumentStore()}
	embedder := &blockingEmbedder{started: make(chan struct{})}
	pipeline := NewPipeline(seg, embedder, vectors, docs, testutil.NewMemoryStatsStore(), 100, logger.Nop())

	assert.NoError(docs.CreateDocument(context.Background(), &model.Document{
		ID: "doc1", UserID: "tenant1", Status: model.StatusProcessing,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-embedder.started
		cancel()
	}()

	status, err := pipeline.Ingest(ctx, Request{DocumentID: "doc1", TenantID: "tenant1", Text: longText(5)})
	assert.ErrorIs(err, context.Canceled)
	assert.Equal(model.StatusFailed, status)

	doc, _ := docs.GetDocumentByID(context.Background(), "doc1")
	assert.Equal(model.StatusFailed, doc.Status, "cancelled ingestion must not stay processing")
	assert.True(doc.ErrorMessage != nil && strings.Contains(*doc.ErrorMessage, "context canceled"))
}
