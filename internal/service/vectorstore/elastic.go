package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const esVectorField = "vector"

// ElasticStore Store backed by an Elasticsearch dense_vector index.
// Scores are reported as cosine similarity in [-1, 1].
type ElasticStore struct {
	client     *elasticsearch.Client
	index      string
	dimensions int
}

// NewElasticStore 创建 ES 向量存储
func NewElasticStore(client *elasticsearch.Client, index string, dimensions int) *ElasticStore {
	if dimensions == 0 {
		dimensions = 1024
	}
	return &ElasticStore{client: client, index: index, dimensions: dimensions}
}

// EnsureIndex 确保索引存在（如不存在则创建）
func (s *ElasticStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				FieldTenantID:   map[string]interface{}{"type": "keyword"},
				FieldDocumentID: map[string]interface{}{"type": "keyword"},
				FieldFilename:   map[string]interface{}{"type": "keyword"},
				FieldChunkIndex: map[string]interface{}{"type": "integer"},
				FieldText:       map[string]interface{}{"type": "text", "index": false},
				FieldPageNumber: map[string]interface{}{"type": "integer"},
				FieldCreatedAt:  map[string]interface{}{"type": "keyword"},
				esVectorField: map[string]interface{}{
					"type":       "dense_vector",
					"dims":       s.dimensions,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	req := esapi.IndicesCreateRequest{
		Index: s.index,
		Body:  bytes.NewReader(body),
	}
	res, err = req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", res.String())
	}
	return nil
}

// Upsert bulk-indexes records under their deterministic ids.
func (s *ElasticStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if r.Metadata.TenantID == "" {
			return fmt.Errorf("record %s: %w", r.ID, ErrTenantRequired)
		}
		doc := r.Metadata.Fields()
		doc[esVectorField] = r.Values
		if err := enc.Encode(map[string]any{"index": map[string]any{"_index": s.index, "_id": r.ID}}); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	res, err := s.client.Bulk(bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("bulk upsert failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk upsert failed: %s", res.String())
	}

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string `json:"_id"`
			Error *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if out.Errors {
		for _, item := range out.Items {
			for _, op := range item {
				if op.Error != nil {
					return fmt.Errorf("bulk upsert failed for %s: %s", op.ID, op.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk upsert reported errors")
	}
	return nil
}

// Query knn search restricted by the tenant filter.
func (s *ElasticStore) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	body, err := json.Marshal(knnQuery(vector, topK, filter))
	if err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	matches, err := decodeHits(res.Body)
	if err != nil {
		return nil, err
	}
	return keepTenant(matches, filter), nil
}

// Delete delete_by_query with the tenant filter.
func (s *ElasticStore) Delete(ctx context.Context, filter Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"bool": map[string]any{"filter": esFilterClauses(filter)}},
	})
	if err != nil {
		return err
	}

	res, err := s.client.DeleteByQuery([]string{s.index}, bytes.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("delete by query failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete by query failed: %s", res.String())
	}
	return nil
}

// Stats 索引统计
func (s *ElasticStore) Stats(ctx context.Context) (*IndexStats, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
	)
	if err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("count failed: %s", res.String())
	}
	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode count response: %w", err)
	}
	return &IndexStats{Backend: "elastic", TotalVectors: out.Count, Dimension: s.dimensions}, nil
}

func esFilterClauses(f Filter) []map[string]any {
	clauses := []map[string]any{
		{"term": map[string]any{FieldTenantID: f.TenantID}},
	}
	if len(f.DocumentIDs) > 0 {
		clauses = append(clauses, map[string]any{"terms": map[string]any{FieldDocumentID: f.DocumentIDs}})
	}
	return clauses
}

func knnQuery(vector []float32, topK int, f Filter) map[string]any {
	candidates := topK * 10
	if candidates < 100 {
		candidates = 100
	}
	return map[string]any{
		"size": topK,
		"knn": map[string]any{
			"field":          esVectorField,
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": candidates,
			"filter":         map[string]any{"bool": map[string]any{"filter": esFilterClauses(f)}},
		},
		"_source": map[string]any{"excludes": []string{esVectorField}},
	}
}

func decodeHits(r io.Reader) ([]Match, error) {
	var out struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Score  float64        `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	matches := make([]Match, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		matches = append(matches, Match{
			ID: h.ID,
			// ES reports (1 + cosine) / 2 for cosine similarity
			Score:    h.Score*2 - 1,
			Metadata: ParseMetadata(h.Source),
		})
	}
	return matches, nil
}
