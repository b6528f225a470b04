// Package embedding adapts eino embedders into the order-preserving, batched
// Provider used by ingestion and query.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashwinyue/docqa/internal/config"
	"github.com/cloudwego/eino-ext/components/embedding/dashscope"
	openaiemb "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoembedding "github.com/cloudwego/eino/components/embedding"
)

// DefaultBatchSize 单次调用嵌入服务的文本数上限
const DefaultBatchSize = 64

// ErrNotConfigured 嵌入服务未配置
var ErrNotConfigured = errors.New("embedding provider not configured")

// Provider 文本向量化能力
type Provider interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Service wraps an eino Embedder. One provider call per batch.
type Service struct {
	embedder  einoembedding.Embedder
	batchSize int
}

// NewService 包装任意 eino Embedder
func NewService(embedder einoembedding.Embedder, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{embedder: embedder, batchSize: batchSize}
}

// EmbedOne 向量化单条文本
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany 批量向量化，输出顺序与输入一致
func (s *Service) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedder == nil {
		return nil, ErrNotConfigured
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := s.embedder.EmbedStrings(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(batch))
		}
		for _, v := range vectors {
			out = append(out, toFloat32(v))
		}
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// New 根据配置创建 eino Embedder
func New(ctx context.Context, cfg *config.EmbeddingConfig) (einoembedding.Embedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	timeout := time.Duration(cfg.Timeout) * time.Second

	var dims *int
	if cfg.Dimensions > 0 {
		d := cfg.Dimensions
		dims = &d
	}

	switch cfg.Provider {
	case "dashscope", "alibaba", "qwen", "":
		model := cfg.Model
		if model == "" {
			model = "text-embedding-v3"
		}
		return dashscope.NewEmbedder(ctx, &dashscope.EmbeddingConfig{
			APIKey:     cfg.APIKey,
			Model:      model,
			Timeout:    timeout,
			Dimensions: dims,
		})
	case "openai":
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		return openaiemb.NewEmbedder(ctx, &openaiemb.EmbeddingConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      model,
			Timeout:    timeout,
			Dimensions: dims,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
