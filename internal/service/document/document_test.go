package document

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/service/ingest"
	"github.com/ashwinyue/docqa/internal/service/storage"
	"github.com/ashwinyue/docqa/internal/service/vectorstore"
	"github.com/ashwinyue/docqa/internal/testutil"
)

type recordingQueue struct {
	jobs []ingest.Job
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job ingest.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Start(ctx context.Context) {}

func (q *recordingQueue) Stop() {}

type fixture struct {
	svc      *Service
	docs     *testutil.MemoryDocumentStore
	sessions *testutil.MemorySessionStore
	stats    *testutil.MemoryStatsStore
	vectors  *vectorstore.ChromemStore
	files    *storage.LocalStorage
	queue    *recordingQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vectors, err := vectorstore.NewChromemStore("", "test")
	if err != nil {
		t.Fatalf("NewChromemStore() error = %v", err)
	}
	files, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	f := &fixture{
		docs:     testutil.NewMemoryDocumentStore(),
		sessions: testutil.NewMemorySessionStore(),
		stats:    testutil.NewMemoryStatsStore(),
		vectors:  vectors,
		files:    files,
		queue:    &recordingQueue{},
	}
	f.svc = NewService(Config{
		Documents:     f.docs,
		Sessions:      f.sessions,
		Stats:         f.stats,
		Vectors:       f.vectors,
		Files:         f.files,
		Queue:         f.queue,
		MaxFileSizeMB: 1,
		Logger:        logger.Nop(),
	})
	return f
}

func (f *fixture) addVector(t *testing.T, tenant, doc string) {
	t.Helper()
	err := f.vectors.Upsert(context.Background(), []vectorstore.Record{{
		ID:     vectorstore.VectorID(tenant, doc, 0),
		Values: []float32{0.1, 0.2, 0.3},
		Metadata: vectorstore.Metadata{
			TenantID:   tenant,
			DocumentID: doc,
			Filename:   doc + ".txt",
			Text:       "text",
		},
	}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func TestUpload(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Upload(ctx, "t1", UploadRequest{
		Filename: "notes.txt",
		Size:     int64(len("hello world")),
		Reader:   strings.NewReader("hello world"),
	})
	assert.NoError(err)
	assert.Equal(model.StatusProcessing, resp.Status)
	assert.Equal(model.FileTypeTXT, resp.FileType)
	assert.Equal(uploadMessage, resp.Message)

	assert.Len(len(f.queue.jobs), 1)
	assert.Equal(ingest.Job{DocumentID: resp.DocumentID, TenantID: "t1"}, f.queue.jobs[0])

	doc, err := f.docs.GetDocument(ctx, "t1", resp.DocumentID)
	assert.NoError(err)
	rc, err := f.files.Open(ctx, doc.FilePath)
	assert.NoError(err)
	rc.Close()
}

func TestUpload_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  UploadRequest
		want error
	}{
		{"unsupported", UploadRequest{Filename: "image.png", Size: 10}, ErrUnsupportedFileType},
		{"no extension", UploadRequest{Filename: "README", Size: 10}, ErrUnsupportedFileType},
		{"too large", UploadRequest{Filename: "a.pdf", Size: 2 * 1024 * 1024}, ErrFileTooLarge},
		{"empty", UploadRequest{Filename: "a.pdf", Size: 0}, ErrEmptyFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Upload(context.Background(), "t1", tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Upload() error = %v, want %v", err, tt.want)
			}
		})
	}
	if len(f.queue.jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(f.queue.jobs))
	}
}

func TestUpload_EnqueueFailureMarksFailed(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t)
	f.queue.err = ingest.ErrQueueClosed

	_, err := f.svc.Upload(context.Background(), "t1", UploadRequest{
		Filename: "a.txt", Size: 5, Reader: strings.NewReader("hello"),
	})
	assert.ErrorIs(err, ingest.ErrQueueClosed)

	for _, doc := range f.docs.Documents {
		assert.Equal(model.StatusFailed, doc.Status)
	}
}

func TestResumeProcessing(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, d := range []struct {
		id     string
		tenant string
		status model.DocumentStatus
	}{
		{"stuck1", "t1", model.StatusProcessing},
		{"done", "t1", model.StatusCompleted},
		{"stuck2", "t2", model.StatusProcessing},
	} {
		assert.NoError(f.docs.CreateDocument(ctx, &model.Document{
			ID: d.id, UserID: d.tenant, Status: d.status, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	n, err := f.svc.ResumeProcessing(ctx)
	assert.NoError(err)
	assert.Equal(2, n)
	assert.Len(len(f.queue.jobs), 2)
	assert.Equal(ingest.Job{DocumentID: "stuck1", TenantID: "t1"}, f.queue.jobs[0])
	assert.Equal(ingest.Job{DocumentID: "stuck2", TenantID: "t2"}, f.queue.jobs[1])
}

func TestResumeProcessing_EnqueueFailureMarksFailed(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t)
	ctx := context.Background()
	assert.NoError(f.docs.CreateDocument(ctx, &model.Document{ID: "stuck", UserID: "t1", Status: model.StatusProcessing}))
	f.queue.err = ingest.ErrQueueClosed

	n, err := f.svc.ResumeProcessing(ctx)
	assert.NoError(err)
	assert.Equal(0, n)

	doc, _ := f.docs.GetDocumentByID(ctx, "stuck")
	assert.Equal(model.StatusFailed, doc.Status)
	// a failed document can be deleted
	assert.NoError(f.svc.Delete(ctx, "t1", "stuck"))
}

func TestList(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []model.DocumentStatus{model.StatusCompleted, model.StatusFailed, model.StatusCompleted} {
		_ = f.docs.CreateDocument(ctx, &model.Document{
			ID: string(rune('a' + i)), UserID: "t1", Status: st, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	_ = f.docs.CreateDocument(ctx, &model.Document{ID: "x", UserID: "t2", Status: model.StatusCompleted})

	all, err := f.svc.List(ctx, "t1", "", 1, 2)
	assert.NoError(err)
	assert.Equal(int64(3), all.Total)
	assert.Len(len(all.Documents), 2)
	assert.Equal("c", all.Documents[0].ID)

	completed, err := f.svc.List(ctx, "t1", model.StatusCompleted, 0, 0)
	assert.NoError(err)
	assert.Equal(int64(2), completed.Total)
	assert.Equal(1, completed.Page)
	assert.Equal(defaultPageSize, completed.PageSize)

	_, err = f.svc.List(ctx, "t1", "archived", 1, 10)
	assert.ErrorIs(err, ErrInvalidStatus)
}

func TestGet_OtherTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.docs.CreateDocument(ctx, &model.Document{ID: "d1", UserID: "t1"})

	if _, err := f.svc.Get(ctx, "t2", "d1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Get() error = %v, want ErrDocumentNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Upload(ctx, "t1", UploadRequest{Filename: "a.txt", Size: 5, Reader: strings.NewReader("hello")})
	assert.NoError(err)
	id := resp.DocumentID

	assert.ErrorIs(f.svc.Delete(ctx, "t1", id), ErrDocumentProcessing)

	assert.NoError(f.docs.MarkCompleted(ctx, id, nil, 1, 1))
	assert.NoError(f.stats.RecordDocumentAdded(ctx, "t1", 5, time.Now()))
	f.addVector(t, "t1", id)
	f.addVector(t, "t1", "other")

	assert.NoError(f.svc.Delete(ctx, "t1", id))

	_, err = f.svc.Get(ctx, "t1", id)
	assert.ErrorIs(err, ErrDocumentNotFound)
	st, _ := f.stats.GetStats(ctx, "t1")
	assert.Equal(0, st.TotalDocuments)
	assert.Equal(int64(0), st.StorageUsed)

	is, err := f.svc.IndexStats(ctx)
	assert.NoError(err)
	assert.Equal(int64(1), is.TotalVectors)

	assert.ErrorIs(f.svc.Delete(ctx, "t1", id), ErrDocumentNotFound)
}

func TestDelete_FailedDocumentKeepsStats(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(f.stats.RecordDocumentAdded(ctx, "t1", 100, time.Now()))
	_ = f.docs.CreateDocument(ctx, &model.Document{ID: "d1", UserID: "t1", FileSize: 50, Status: model.StatusFailed})

	assert.NoError(f.svc.Delete(ctx, "t1", "d1"))
	st, _ := f.stats.GetStats(ctx, "t1")
	assert.Equal(1, st.TotalDocuments)
}

func TestStats(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.Stats(ctx, "t1")
	assert.NoError(err)
	assert.Equal(0, empty.TotalDocuments)

	assert.NoError(f.stats.RecordDocumentAdded(ctx, "t1", 1536*1024, time.Now()))
	st, err := f.svc.Stats(ctx, "t1")
	assert.NoError(err)
	assert.Equal(1.5, st.StorageUsedMB)
	assert.True(st.LastActivity != nil)
}

func TestDeleteAllUserData(t *testing.T) {
	assert := testutil.NewAssertHelper(t)
	f := newFixture(t)
	ctx := context.Background()

	_ = f.docs.CreateDocument(ctx, &model.Document{ID: "d1", UserID: "t1"})
	_ = f.docs.CreateDocument(ctx, &model.Document{ID: "d2", UserID: "t2"})
	_ = f.sessions.CreateSession(ctx, &model.ChatSession{ID: "s1", UserID: "t1"})
	_ = f.sessions.CreateSession(ctx, &model.ChatSession{ID: "s2", UserID: "t2"})
	_ = f.stats.RecordQuery(ctx, "t1", time.Now())
	f.addVector(t, "t1", "d1")
	f.addVector(t, "t2", "d2")

	assert.NoError(f.svc.DeleteAllUserData(ctx, "t1"))

	_, err := f.svc.Get(ctx, "t1", "d1")
	assert.ErrorIs(err, ErrDocumentNotFound)
	_, err = f.svc.Get(ctx, "t2", "d2")
	assert.NoError(err)
	n, _ := f.sessions.CountSessions(ctx, "t1")
	assert.Equal(int64(0), n)
	n, _ = f.sessions.CountSessions(ctx, "t2")
	assert.Equal(int64(1), n)

	is, _ := f.svc.IndexStats(ctx)
	assert.Equal(int64(1), is.TotalVectors)
}
