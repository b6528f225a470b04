package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/redis/go-redis/v9"
)

const redisPopTimeout = 5 * time.Second

// RedisQueue JSON jobs on a Redis list.
// Workers BLMOVE a job into "{key}:processing" and LREM it once handled, so a
// job taken by a process that dies is still in Redis. Start moves such leftovers
// back onto the pending list, which assumes one consumer process per key.
type RedisQueue struct {
	client        redis.UniversalClient
	key           string
	processingKey string
	handler       Handler
	workers       int
	log           *logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRedisQueue 创建 Redis 队列
func NewRedisQueue(client redis.UniversalClient, key string, handler Handler, workers int, log *logger.Logger) *RedisQueue {
	if workers < 1 {
		workers = 1
	}
	if key == "" {
		key = "docqa:ingest:jobs"
	}
	return &RedisQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing",
		handler:       handler,
		workers:       workers,
		log:           log.With("component", "RedisIngestQueue"),
	}
}

// Enqueue LPUSH 一个任务
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Start 回收上次未确认的任务，然后启动 worker
func (q *RedisQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	if n, err := q.requeueInFlight(ctx); err != nil {
		q.log.Error("failed to requeue in-flight jobs", "key", q.processingKey, "error", err)
	} else if n > 0 {
		q.log.Info("Requeued in-flight jobs", "count", n)
	}
	q.log.Info("Starting ingest workers", "concurrency", q.workers, "key", q.key)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			q.runLoop(ctx, workerID)
		}(i + 1)
	}
}

// Stop 停止取任务，等待进行中的任务结束
func (q *RedisQueue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// requeueInFlight moves every job left in the processing list to the consuming
// end of the pending list.
func (q *RedisQueue) requeueInFlight(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processingKey, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (q *RedisQueue) runLoop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			q.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		}

		payload, err := q.client.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", redisPopTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.log.Warn("BLMOVE failed", "worker_id", workerID, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		// 停止时不打断进行中的任务
		jobCtx := context.WithoutCancel(ctx)
		var job Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			q.log.Error("dropping malformed ingest job", "worker_id", workerID, "payload", payload, "error", err)
		} else {
			runJob(jobCtx, q.handler, job, workerID, q.log)
		}
		if err := q.client.LRem(jobCtx, q.processingKey, 1, payload).Err(); err != nil {
			q.log.Warn("failed to ack ingest job", "worker_id", workerID, "document_id", job.DocumentID, "error", err)
		}
	}
}
