package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ashwinyue/docqa/internal/database"
	"github.com/ashwinyue/docqa/internal/model"
)

func openTestDB(t *testing.T) *Repositories {
	t.Helper()
	db, err := database.OpenSQLiteMemory()
	if err != nil {
		// go-sqlite3 needs cgo
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepositories(db.DB)
}

func TestChatRepository_ListSessionsCursor(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		if err := repos.Chat.CreateSession(ctx, &model.ChatSession{
			ID: fmt.Sprintf("s%d", i), UserID: "t1", Title: "New Chat", CreatedAt: at, UpdatedAt: at,
		}); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
	}

	first, err := repos.Chat.ListSessions(ctx, "t1", nil, 2)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(first) != 2 || first[0].ID != "s4" || first[1].ID != "s3" {
		t.Fatalf("unexpected first page %v", ids(first))
	}

	before := first[1].UpdatedAt
	next, err := repos.Chat.ListSessions(ctx, "t1", &before, 10)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(next) != 3 || next[0].ID != "s2" {
		t.Fatalf("unexpected next page %v", ids(next))
	}

	other, _ := repos.Chat.ListSessions(ctx, "t2", nil, 10)
	if len(other) != 0 {
		t.Errorf("tenant t2 sees %d sessions", len(other))
	}
}

func TestChatRepository_RecordExchangeAndDelete(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if err := repos.Chat.CreateSession(ctx, &model.ChatSession{ID: "s1", UserID: "t1", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	for i, role := range []model.MessageRole{model.RoleUser, model.RoleAssistant} {
		if err := repos.Chat.CreateMessage(ctx, &model.ChatMessage{
			ID: fmt.Sprintf("m%d", i), SessionID: "s1", UserID: "t1", Role: role,
			Content: "x", CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
			Sources: model.SourceList{{DocumentID: "d1", Score: 0.5}},
		}); err != nil {
			t.Fatalf("CreateMessage() error = %v", err)
		}
	}

	later := now.Add(time.Second)
	count, err := repos.Chat.RecordExchange(ctx, "s1", later)
	if err != nil || count != 2 {
		t.Fatalf("RecordExchange() = %d, %v", count, err)
	}
	session, _ := repos.Chat.GetSession(ctx, "t1", "s1")
	if !session.UpdatedAt.Equal(later) {
		t.Errorf("updated_at = %v, want %v", session.UpdatedAt, later)
	}

	last, err := repos.Chat.LatestMessage(ctx, "s1")
	if err != nil || last.ID != "m1" || len(last.Sources) != 1 {
		t.Fatalf("LatestMessage() = %+v, %v", last, err)
	}

	if _, err := repos.Chat.RecordExchange(ctx, "missing", later); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordExchange(missing) error = %v", err)
	}
	if err := repos.Chat.DeleteSession(ctx, "t2", "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant delete error = %v", err)
	}
	if err := repos.Chat.DeleteSession(ctx, "t1", "s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if n, _ := repos.Chat.CountMessages(ctx, "s1"); n != 0 {
		t.Errorf("messages left after delete: %d", n)
	}
}

func TestDocumentRepository_ChunksAndDelete(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	if err := repos.Document.CreateDocument(ctx, &model.Document{ID: "d1", UserID: "t1", Status: model.StatusProcessing}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	chunks := []*model.DocumentChunk{
		{ID: "c0", DocumentID: "d1", ChunkIndex: 0, Text: "first"},
		{ID: "c1", DocumentID: "d1", ChunkIndex: 1, Text: "second"},
	}
	if err := repos.Document.CreateChunks(ctx, chunks); err != nil {
		t.Fatalf("CreateChunks() error = %v", err)
	}
	if err := repos.Document.MarkCompleted(ctx, "d1", nil, 2, 2); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	chunk, err := repos.Document.GetChunk(ctx, "d1", 1)
	if err != nil || chunk.Text != "second" {
		t.Fatalf("GetChunk() = %+v, %v", chunk, err)
	}
	doc, _ := repos.Document.GetDocument(ctx, "t1", "d1")
	if doc.Status != model.StatusCompleted || doc.ChunkCount == nil || *doc.ChunkCount != 2 {
		t.Errorf("unexpected document %+v", doc)
	}
	if _, err := repos.Document.GetDocument(ctx, "t2", "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant get error = %v", err)
	}

	if err := repos.Document.DeleteByUser(ctx, "t1"); err != nil {
		t.Fatalf("DeleteByUser() error = %v", err)
	}
	if _, err := repos.Document.GetChunk(ctx, "d1", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("chunk survived delete: %v", err)
	}
}

func TestStatsRepository_FloorAtZero(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	if err := repos.Stats.RecordDocumentAdded(ctx, "t1", 100, time.Now()); err != nil {
		t.Fatalf("RecordDocumentAdded() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := repos.Stats.RecordDocumentRemoved(ctx, "t1", 150); err != nil {
			t.Fatalf("RecordDocumentRemoved() error = %v", err)
		}
	}
	if err := repos.Stats.RecordQuery(ctx, "t1", time.Now()); err != nil {
		t.Fatalf("RecordQuery() error = %v", err)
	}

	stats, err := repos.Stats.GetStats(ctx, "t1")
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.TotalDocuments != 0 || stats.StorageUsed != 0 || stats.TotalQueries != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func ids(sessions []*model.ChatSession) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}

func TestDocumentRepository_ListByStatus(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	docs := []*model.Document{
		{ID: "d1", UserID: "t1", Status: model.StatusProcessing, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "d2", UserID: "t2", Status: model.StatusProcessing, CreatedAt: base},
		{ID: "d3", UserID: "t1", Status: model.StatusCompleted, CreatedAt: base.Add(time.Minute)},
	}
	for _, d := range docs {
		if err := repos.Document.CreateDocument(ctx, d); err != nil {
			t.Fatalf("CreateDocument() error = %v", err)
		}
	}

	got, err := repos.Document.ListByStatus(ctx, model.StatusProcessing)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "d2" || got[1].ID != "d1" {
		t.Errorf("unexpected documents: %+v", got)
	}
}
