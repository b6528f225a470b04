package service

import (
	"context"
	"fmt"

	"github.com/ashwinyue/docqa/internal/config"
	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/repository"
	"github.com/ashwinyue/docqa/internal/service/chat"
	"github.com/ashwinyue/docqa/internal/service/document"
	"github.com/ashwinyue/docqa/internal/service/embedding"
	"github.com/ashwinyue/docqa/internal/service/extract"
	"github.com/ashwinyue/docqa/internal/service/ingest"
	"github.com/ashwinyue/docqa/internal/service/llm"
	"github.com/ashwinyue/docqa/internal/service/query"
	"github.com/ashwinyue/docqa/internal/service/rerank"
	"github.com/ashwinyue/docqa/internal/service/segment"
	"github.com/ashwinyue/docqa/internal/service/storage"
	"github.com/ashwinyue/docqa/internal/service/vectorstore"
	"github.com/redis/go-redis/v9"
)

// Services 服务集合
type Services struct {
	Document *document.Service
	Chat     *chat.Service
	Query    *query.Engine

	// Queue 需要在启动时 Start，关闭时 Stop
	Queue   ingest.Queue
	Vectors vectorstore.Store
	Config  *config.Config

	log *logger.Logger
	// 进程内队列重启后丢失待处理任务，需要从文档状态恢复
	resumeOnStart bool
}

// NewServices 按配置装配全部组件
// redisClient 仅在 ingest.queue=redis 时使用，可为 nil
func NewServices(ctx context.Context, cfg *config.Config, repo *repository.Repositories, redisClient redis.UniversalClient, log *logger.Logger) (*Services, error) {
	vectors, err := vectorstore.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	embedder, err := embedding.New(ctx, &cfg.AI.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	embeddings := embedding.NewService(embedder, cfg.AI.Embedding.BatchSize)

	chatModel, err := llm.NewChatModel(ctx, &cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	completer := llm.NewCompleter(chatModel, llm.NewCallLogger(log, cfg.App.Debug))

	scorer, err := rerank.New(&cfg.AI.Rerank, completer)
	if err != nil {
		return nil, fmt.Errorf("failed to create reranker: %w", err)
	}

	files, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	segmenter, err := segment.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	pipeline := ingest.NewPipeline(segmenter, embeddings, vectors, repo.Document, repo.Stats, cfg.Ingest.UpsertBatchSize, log)
	processor := ingest.NewProcessor(pipeline, repo.Document, files, extract.New())

	var queue ingest.Queue
	switch cfg.Ingest.Queue {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis queue requires a redis client")
		}
		queue = ingest.NewRedisQueue(redisClient, cfg.Ingest.QueueKey, processor, cfg.Ingest.Workers, log)
	case "local", "":
		queue = ingest.NewLocalQueue(processor, cfg.Ingest.Workers, 0, log)
	default:
		return nil, fmt.Errorf("unsupported ingest queue: %s", cfg.Ingest.Queue)
	}

	engine := query.NewEngine(embeddings, vectors, scorer, completer, repo.Document, repo.Stats, cfg.Query.DefaultTopK, log)

	return &Services{
		Document: document.NewService(document.Config{
			Documents:     repo.Document,
			Sessions:      repo.Chat,
			Stats:         repo.Stats,
			Vectors:       vectors,
			Files:         files,
			Queue:         queue,
			MaxFileSizeMB: cfg.Ingest.MaxFileSizeMB,
			Logger:        log,
		}),
		Chat:    chat.NewService(repo.Chat, engine, chat.NewTitler(completer, log), log),
		Query:   engine,
		Queue:   queue,
		Vectors: vectors,
		Config:  cfg,

		log:           log,
		resumeOnStart: cfg.Ingest.Queue != "redis",
	}, nil
}

// Start starts the ingestion queue. With the in-process queue, documents left
// processing by a previous run are enqueued again.
// ctx should outlive request handling; Stop drains the queue before returning.
func (s *Services) Start(ctx context.Context) {
	s.Queue.Start(ctx)
	if !s.resumeOnStart {
		return
	}
	if _, err := s.Document.ResumeProcessing(ctx); err != nil {
		s.log.Error("failed to resume interrupted ingestions", "error", err)
	}
}

// Stop 停止摄取队列
func (s *Services) Stop() {
	s.Queue.Stop()
}
