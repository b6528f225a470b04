package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ashwinyue/docqa/internal/model"
	"github.com/ashwinyue/docqa/internal/repository"
)

// MemoryDocumentStore in-memory repository.DocumentStore.
type MemoryDocumentStore struct {
	mu        sync.Mutex
	Documents map[string]*model.Document
	Chunks    []*model.DocumentChunk

	// 非 nil 时对应方法直接返回该错误
	CreateChunksErr error
}

// NewMemoryDocumentStore 创建内存文档仓库
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{Documents: make(map[string]*model.Document)}
}

func (s *MemoryDocumentStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	cp := *doc
	s.Documents[doc.ID] = &cp
	return nil
}

func (s *MemoryDocumentStore) GetDocumentByID(ctx context.Context, id string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.Documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryDocumentStore) GetDocument(ctx context.Context, userID, id string) (*model.Document, error) {
	doc, err := s.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

func (s *MemoryDocumentStore) ListDocuments(ctx context.Context, userID string, status model.DocumentStatus, offset, limit int) ([]*model.Document, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []*model.Document
	for _, d := range s.Documents {
		if d.UserID != userID || (status != "" && d.Status != status) {
			continue
		}
		cp := *d
		docs = append(docs, &cp)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	total := int64(len(docs))
	if offset >= len(docs) {
		return nil, total, nil
	}
	docs = docs[offset:]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, total, nil
}

func (s *MemoryDocumentStore) ListByStatus(ctx context.Context, status model.DocumentStatus) ([]*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []*model.Document
	for _, d := range s.Documents {
		if d.Status == status {
			cp := *d
			docs = append(docs, &cp)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	return docs, nil
}

func (s *MemoryDocumentStore) MarkCompleted(ctx context.Context, id string, pageCount *int, wordCount, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.Documents[id]
	if !ok {
		return repository.ErrNotFound
	}
	doc.Status = model.StatusCompleted
	doc.PageCount = pageCount
	doc.WordCount = &wordCount
	doc.ChunkCount = &chunkCount
	doc.ErrorMessage = nil
	return nil
}

func (s *MemoryDocumentStore) MarkFailed(ctx context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.Documents[id]
	if !ok {
		return repository.ErrNotFound
	}
	doc.Status = model.StatusFailed
	doc.ErrorMessage = &message
	return nil
}

func (s *MemoryDocumentStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Documents, id)
	kept := s.Chunks[:0]
	for _, c := range s.Chunks {
		if c.DocumentID != id {
			kept = append(kept, c)
		}
	}
	s.Chunks = kept
	return nil
}

func (s *MemoryDocumentStore) DeleteByUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	var ids []string
	for id, d := range s.Documents {
		if d.UserID == userID {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	for _, id := range ids {
		if err := s.DeleteDocument(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryDocumentStore) CreateChunks(ctx context.Context, chunks []*model.DocumentChunk) error {
	if s.CreateChunksErr != nil {
		return s.CreateChunksErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Chunks = append(s.Chunks, chunks...)
	return nil
}

func (s *MemoryDocumentStore) GetChunk(ctx context.Context, documentID string, chunkIndex int) (*model.DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.Chunks {
		if c.DocumentID == documentID && c.ChunkIndex == chunkIndex {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ChunksOf 返回文档的全部分块行（含重复）
func (s *MemoryDocumentStore) ChunksOf(documentID string) []*model.DocumentChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.DocumentChunk
	for _, c := range s.Chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out
}

// MemorySessionStore in-memory repository.SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	Sessions map[string]*model.ChatSession
	Messages []*model.ChatMessage
}

// NewMemorySessionStore 创建内存会话仓库
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{Sessions: make(map[string]*model.ChatSession)}
}

func (s *MemorySessionStore) CreateSession(ctx context.Context, session *model.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Microsecond)
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
	cp := *session
	s.Sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) GetSession(ctx context.Context, userID, id string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[id]
	if !ok || session.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *MemorySessionStore) ListSessions(ctx context.Context, userID string, before *time.Time, limit int) ([]*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ChatSession
	for _, session := range s.Sessions {
		if session.UserID != userID {
			continue
		}
		if before != nil && !session.UpdatedAt.Before(*before) {
			continue
		}
		cp := *session
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySessionStore) CountSessions(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, session := range s.Sessions {
		if session.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) RecordExchange(ctx context.Context, sessionID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[sessionID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	session.MessageCount += 2
	session.UpdatedAt = at
	return session.MessageCount, nil
}

func (s *MemorySessionStore) UpdateTitle(ctx context.Context, userID, id, title string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[id]
	if !ok || session.UserID != userID {
		return repository.ErrNotFound
	}
	session.Title = title
	session.UpdatedAt = at
	return nil
}

func (s *MemorySessionStore) DeleteSession(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[id]
	if !ok || session.UserID != userID {
		return repository.ErrNotFound
	}
	delete(s.Sessions, id)
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if m.SessionID != id {
			kept = append(kept, m)
		}
	}
	s.Messages = kept
	return nil
}

func (s *MemorySessionStore) DeleteByUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.Sessions {
		if session.UserID == userID {
			delete(s.Sessions, id)
		}
	}
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	s.Messages = kept
	return nil
}

func (s *MemorySessionStore) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.Messages = append(s.Messages, &cp)
	return nil
}

func (s *MemorySessionStore) ListMessages(ctx context.Context, sessionID string, before *time.Time, limit int) ([]*model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ChatMessage
	for _, m := range s.Messages {
		if m.SessionID != sessionID {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySessionStore) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.Messages {
		if m.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) LatestMessage(ctx context.Context, sessionID string) (*model.ChatMessage, error) {
	msgs, err := s.ListMessages(ctx, sessionID, nil, 1)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

// MemoryStatsStore in-memory repository.StatsStore.
type MemoryStatsStore struct {
	mu    sync.Mutex
	Stats map[string]*model.UserStats

	RecordQueryErr error
}

// NewMemoryStatsStore 创建内存统计仓库
func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{Stats: make(map[string]*model.UserStats)}
}

func (s *MemoryStatsStore) get(userID string) *model.UserStats {
	st, ok := s.Stats[userID]
	if !ok {
		st = &model.UserStats{UserID: userID}
		s.Stats[userID] = st
	}
	return st
}

func (s *MemoryStatsStore) GetStats(ctx context.Context, userID string) (*model.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.get(userID)
	return &cp, nil
}

func (s *MemoryStatsStore) RecordDocumentAdded(ctx context.Context, userID string, size int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(userID)
	st.TotalDocuments++
	st.StorageUsed += size
	st.LastActivity = &at
	return nil
}

func (s *MemoryStatsStore) RecordDocumentRemoved(ctx context.Context, userID string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(userID)
	if st.TotalDocuments > 0 {
		st.TotalDocuments--
	}
	st.StorageUsed -= size
	if st.StorageUsed < 0 {
		st.StorageUsed = 0
	}
	return nil
}

func (s *MemoryStatsStore) RecordQuery(ctx context.Context, userID string, at time.Time) error {
	if s.RecordQueryErr != nil {
		return s.RecordQueryErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(userID)
	st.TotalQueries++
	st.LastActivity = &at
	return nil
}

func (s *MemoryStatsStore) DeleteByUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Stats, userID)
	return nil
}

var (
	_ repository.DocumentStore = (*MemoryDocumentStore)(nil)
	_ repository.SessionStore  = (*MemorySessionStore)(nil)
	_ repository.StatsStore    = (*MemoryStatsStore)(nil)
)
