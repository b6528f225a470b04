// Package vectorstore is the tenant-isolated vector index.
//
// All tenants share one logical index. Isolation relies on the tenant_id
// metadata field carried by every record and on the tenant filter that every
// Query and Delete validates before reaching a backend.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrTenantRequired 查询/删除缺少租户过滤条件
var ErrTenantRequired = errors.New("tenant filter is required")

// 元数据字段名
const (
	FieldTenantID   = "tenant_id"
	FieldDocumentID = "document_id"
	FieldFilename   = "filename"
	FieldChunkIndex = "chunk_index"
	FieldText       = "text"
	FieldPageNumber = "page_number"
	FieldCreatedAt  = "created_at"
)

// VectorID 确定性向量 ID：{tenant}_{document}_chunk_{index}
func VectorID(tenantID, documentID string, index int) string {
	return fmt.Sprintf("%s_%s_chunk_%d", tenantID, documentID, index)
}

// Metadata 向量记录的元数据
type Metadata struct {
	TenantID   string
	DocumentID string
	Filename   string
	ChunkIndex int
	Text       string
	PageNumber *int
	CreatedAt  string
}

// Fields flattens metadata into the provider key/value form.
// Absent optional values are omitted, never sent as null.
func (m Metadata) Fields() map[string]any {
	fields := map[string]any{
		FieldTenantID:   m.TenantID,
		FieldDocumentID: m.DocumentID,
		FieldChunkIndex: m.ChunkIndex,
	}
	if m.Filename != "" {
		fields[FieldFilename] = m.Filename
	}
	if m.Text != "" {
		fields[FieldText] = m.Text
	}
	if m.PageNumber != nil {
		fields[FieldPageNumber] = *m.PageNumber
	}
	if m.CreatedAt != "" {
		fields[FieldCreatedAt] = m.CreatedAt
	}
	return fields
}

// StringFields 同 Fields，值全部转为字符串（chromem 只支持字符串元数据）
func (m Metadata) StringFields() map[string]string {
	fields := m.Fields()
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// ParseMetadata 从 provider 返回的键值还原元数据
func ParseMetadata(fields map[string]any) Metadata {
	m := Metadata{
		TenantID:   stringValue(fields[FieldTenantID]),
		DocumentID: stringValue(fields[FieldDocumentID]),
		Filename:   stringValue(fields[FieldFilename]),
		Text:       stringValue(fields[FieldText]),
		CreatedAt:  stringValue(fields[FieldCreatedAt]),
	}
	if n, ok := intValue(fields[FieldChunkIndex]); ok {
		m.ChunkIndex = n
	}
	if n, ok := intValue(fields[FieldPageNumber]); ok {
		m.PageNumber = &n
	}
	return m
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func intValue(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case float32:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	default:
		return 0, false
	}
}

// Record 一条待写入的向量
type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Filter 查询/删除过滤条件，TenantID 必填
type Filter struct {
	TenantID    string
	DocumentIDs []string
}

// Validate 校验租户过滤条件
func (f Filter) Validate() error {
	if strings.TrimSpace(f.TenantID) == "" {
		return ErrTenantRequired
	}
	return nil
}

// Match 相似度检索结果
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// IndexStats 索引统计
type IndexStats struct {
	Backend      string `json:"backend"`
	TotalVectors int64  `json:"total_vectors"`
	Dimension    int    `json:"dimension,omitempty"`
}

// Store 向量索引
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	// Query returns matches ordered by score, highest first.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, filter Filter) error
	Stats(ctx context.Context) (*IndexStats, error)
}

// keepTenant drops any match whose metadata belongs to another tenant or
// falls outside the document subset. Backends filter server-side as well.
func keepTenant(matches []Match, filter Filter) []Match {
	var docs map[string]struct{}
	if len(filter.DocumentIDs) > 0 {
		docs = make(map[string]struct{}, len(filter.DocumentIDs))
		for _, id := range filter.DocumentIDs {
			docs[id] = struct{}{}
		}
	}
	out := matches[:0]
	for _, m := range matches {
		if m.Metadata.TenantID != filter.TenantID {
			continue
		}
		if docs != nil {
			if _, ok := docs[m.Metadata.DocumentID]; !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}
