package vectorstore

import (
	"context"
	"fmt"
	"strings"
)

// PineconeStore Store backed by one Pinecone index and namespace.
type PineconeStore struct {
	client    *PineconeClient
	host      string
	namespace string
}

// NewPineconeStore 创建 Pinecone 向量存储；host 为空时通过 describe_index 解析
func NewPineconeStore(ctx context.Context, client *PineconeClient, indexName, host, namespace string) (*PineconeStore, error) {
	if client == nil {
		return nil, fmt.Errorf("pinecone client required")
	}
	host = strings.TrimSpace(host)
	if host == "" {
		desc, err := client.DescribeIndex(ctx, indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = desc.Host
	}
	return &PineconeStore{client: client, host: host, namespace: namespace}, nil
}

// Upsert 写入向量，调用方负责分批
func (s *PineconeStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]pineconeVector, 0, len(records))
	for _, r := range records {
		if r.Metadata.TenantID == "" {
			return fmt.Errorf("record %s: %w", r.ID, ErrTenantRequired)
		}
		vectors = append(vectors, pineconeVector{
			ID:       r.ID,
			Values:   r.Values,
			Metadata: r.Metadata.Fields(),
		})
	}
	_, err := s.client.upsert(ctx, s.host, upsertRequest{Vectors: vectors, Namespace: s.namespace})
	return err
}

// Query 相似度检索
func (s *PineconeStore) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	resp, err := s.client.query(ctx, s.host, queryRequest{
		Namespace:       s.namespace,
		Vector:          vector,
		TopK:            topK,
		Filter:          pineconeFilter(filter),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, Match{
			ID:       m.ID,
			Score:    m.Score,
			Metadata: ParseMetadata(m.Metadata),
		})
	}
	return keepTenant(matches, filter), nil
}

// Delete 按过滤条件删除
func (s *PineconeStore) Delete(ctx context.Context, filter Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	return s.client.deleteByFilter(ctx, s.host, deleteRequest{
		Namespace: s.namespace,
		Filter:    pineconeFilter(filter),
	})
}

// Stats 索引统计
func (s *PineconeStore) Stats(ctx context.Context) (*IndexStats, error) {
	resp, err := s.client.describeIndexStats(ctx, s.host)
	if err != nil {
		return nil, err
	}
	return &IndexStats{
		Backend:      "pinecone",
		TotalVectors: resp.TotalVectorCount,
		Dimension:    resp.Dimension,
	}, nil
}

func pineconeFilter(f Filter) map[string]any {
	out := map[string]any{
		FieldTenantID: map[string]any{"$eq": f.TenantID},
	}
	if len(f.DocumentIDs) > 0 {
		out[FieldDocumentID] = map[string]any{"$in": f.DocumentIDs}
	}
	return out
}
