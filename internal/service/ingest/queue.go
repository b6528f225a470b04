package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ashwinyue/docqa/internal/logger"
)

// ErrQueueClosed 队列已停止
var ErrQueueClosed = errors.New("ingest queue closed")

// Job 一个待处理的摄取任务，文件已落盘
type Job struct {
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
}

// Handler 处理单个任务
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc 函数适配
type HandlerFunc func(ctx context.Context, job Job) error

// Handle 实现 Handler
func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Queue decouples ingestion from the upload request.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Start(ctx context.Context)
	Stop()
}

// LocalQueue 进程内队列：带缓冲 channel + N 个 worker
// Pending jobs live only in memory; see document.Service.ResumeProcessing.
type LocalQueue struct {
	jobs    chan Job
	handler Handler
	workers int
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalQueue 创建进程内队列
func NewLocalQueue(handler Handler, workers, buffer int, log *logger.Logger) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 100
	}
	return &LocalQueue{
		jobs:    make(chan Job, buffer),
		handler: handler,
		workers: workers,
		log:     log.With("component", "LocalIngestQueue"),
	}
}

// Enqueue 入队，队列满时阻塞直到 ctx 结束
func (q *LocalQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start 启动 worker
// ctx is handed to every job. Cancelling it does not stop the workers; only
// Stop does, after the channel is drained.
func (q *LocalQueue) Start(ctx context.Context) {
	q.log.Info("Starting ingest workers", "concurrency", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			for job := range q.jobs {
				runJob(ctx, q.handler, job, workerID, q.log)
			}
		}(i + 1)
	}
}

// Stop rejects new jobs, runs the queued ones, then waits for the workers to exit.
func (q *LocalQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}

// runJob 执行任务，panic 被恢复并记录
func runJob(ctx context.Context, h Handler, job Job, workerID int, log *logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("ingest job panic",
				"worker_id", workerID,
				"document_id", job.DocumentID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := h.Handle(ctx, job); err != nil {
		log.Warn("ingest job failed",
			"worker_id", workerID,
			"document_id", job.DocumentID,
			"tenant_id", job.TenantID,
			"error", err,
		)
	}
}
