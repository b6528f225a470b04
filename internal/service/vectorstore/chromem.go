package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemStore in-process Store on a chromem-go collection.
type ChromemStore struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemStore path 为空时使用内存库，否则持久化到目录
func NewChromemStore(path, collection string) (*ChromemStore, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}

	// records always carry their own embeddings, so no embedding func is needed
	c, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return &ChromemStore{db: db, collection: c}, nil
}

// Upsert 写入向量，相同 ID 覆盖
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if r.Metadata.TenantID == "" {
			return fmt.Errorf("record %s: %w", r.ID, ErrTenantRequired)
		}
		content := r.Metadata.Text
		if content == "" {
			content = r.ID
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Metadata:  r.Metadata.StringFields(),
			Embedding: r.Values,
			Content:   content,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query 相似度检索
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	where := map[string]string{FieldTenantID: filter.TenantID}
	n := topK
	if len(filter.DocumentIDs) == 1 {
		where[FieldDocumentID] = filter.DocumentIDs[0]
	} else if len(filter.DocumentIDs) > 1 {
		// where only supports equality; widen and filter the subset below
		n = s.collection.Count()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if count := s.collection.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
		Where:          where,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		fields := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			fields[k] = v
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: ParseMetadata(fields),
		})
	}
	matches = keepTenant(matches, filter)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete 按过滤条件删除
func (s *ChromemStore) Delete(ctx context.Context, filter Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(filter.DocumentIDs) == 0 {
		return s.collection.Delete(ctx, map[string]string{FieldTenantID: filter.TenantID}, nil)
	}
	for _, docID := range filter.DocumentIDs {
		where := map[string]string{FieldTenantID: filter.TenantID, FieldDocumentID: docID}
		if err := s.collection.Delete(ctx, where, nil); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", docID, err)
		}
	}
	return nil
}

// Stats 索引统计
func (s *ChromemStore) Stats(ctx context.Context) (*IndexStats, error) {
	return &IndexStats{Backend: "chromem", TotalVectors: int64(s.collection.Count())}, nil
}
