package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ashwinyue/docqa/internal/config"
	"github.com/elastic/go-elasticsearch/v8"
)

// New 按配置创建向量存储
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Vector.Backend {
	case "pinecone":
		client, err := NewPineconeClient(PineconeConfig{
			APIKey:     cfg.Pinecone.APIKey,
			APIVersion: cfg.Pinecone.APIVersion,
			BaseURL:    cfg.Pinecone.BaseURL,
			Timeout:    time.Duration(cfg.Pinecone.Timeout) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return NewPineconeStore(ctx, client, cfg.Pinecone.IndexName, cfg.Pinecone.IndexHost, cfg.Pinecone.Namespace)

	case "elastic", "elasticsearch":
		client, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{cfg.Elastic.Host},
			Username:  cfg.Elastic.Username,
			Password:  cfg.Elastic.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ES client: %w", err)
		}
		store := NewElasticStore(client, cfg.Elastic.Index, cfg.Vector.Dimensions)
		if err := store.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		return store, nil

	case "chromem", "":
		return NewChromemStore(cfg.Vector.ChromemPath, cfg.Vector.Collection)

	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Vector.Backend)
	}
}
