package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PineconeConfig Pinecone REST 客户端配置
type PineconeConfig struct {
	APIKey     string
	APIVersion string
	BaseURL    string
	Timeout    time.Duration
}

// PineconeClient Pinecone REST API 客户端
type PineconeClient struct {
	cfg  PineconeConfig
	http *http.Client
}

// NewPineconeClient 创建客户端
func NewPineconeClient(cfg PineconeConfig) (*PineconeClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Pinecone API key")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-10"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &PineconeClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// -------------------- Control plane --------------------

// IndexDescription describe_index 响应
type IndexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
}

// DescribeIndex resolves the data-plane host of an index.
func (c *PineconeClient) DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error) {
	indexName = strings.TrimSpace(indexName)
	if indexName == "" {
		return nil, fmt.Errorf("indexName required")
	}
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/indexes/" + indexName
	out, err := doJSON[IndexDescription](ctx, c, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Host) == "" {
		return nil, fmt.Errorf("pinecone describe_index returned empty host")
	}
	return out, nil
}

// -------------------- Data plane --------------------

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int64 `json:"upsertedCount"`
}

type queryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type queryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type queryResponse struct {
	Matches []queryMatch `json:"matches"`
}

type deleteRequest struct {
	Namespace string         `json:"namespace,omitempty"`
	Filter    map[string]any `json:"filter"`
}

type statsResponse struct {
	Dimension        int   `json:"dimension"`
	TotalVectorCount int64 `json:"totalVectorCount"`
}

func (c *PineconeClient) upsert(ctx context.Context, host string, req upsertRequest) (*upsertResponse, error) {
	return doJSON[upsertResponse](ctx, c, http.MethodPost, dataURL(host, "/vectors/upsert"), req)
}

func (c *PineconeClient) query(ctx context.Context, host string, req queryRequest) (*queryResponse, error) {
	return doJSON[queryResponse](ctx, c, http.MethodPost, dataURL(host, "/query"), req)
}

func (c *PineconeClient) deleteByFilter(ctx context.Context, host string, req deleteRequest) error {
	_, err := doJSON[map[string]any](ctx, c, http.MethodPost, dataURL(host, "/vectors/delete"), req)
	return err
}

func (c *PineconeClient) describeIndexStats(ctx context.Context, host string) (*statsResponse, error) {
	return doJSON[statsResponse](ctx, c, http.MethodPost, dataURL(host, "/describe_index_stats"), map[string]any{})
}

// dataURL accepts a bare host or a full URL (tests point it at httptest).
func dataURL(host, path string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host + path
}

// -------------------- helpers --------------------

func doJSON[T any](ctx context.Context, c *PineconeClient, method, url string, body any) (*T, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", c.cfg.APIVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pinecone http %d: %s", resp.StatusCode, string(raw))
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone decode error: %w; raw=%s", err, string(raw))
	}
	return &out, nil
}
