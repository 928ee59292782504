package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// Client enqueues jobs onto Redis-backed queues. It satisfies
// memory.JobEnqueuer so the memory service can enqueue embedding work
// without importing this package directly.
type Client struct {
	asynq     *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(redisOpt asynq.RedisConnOpt) *Client {
	return &Client{asynq: asynq.NewClient(redisOpt), inspector: asynq.NewInspector(redisOpt)}
}

func (c *Client) Close() error {
	_ = c.inspector.Close()
	return c.asynq.Close()
}

// Ping verifies connectivity to the queue's Redis backend, for the health
// endpoint. It never blocks on ctx since the inspector call is synchronous;
// callers needing a hard deadline should run it in a goroutine.
func (c *Client) Ping() error {
	_, err := c.inspector.Queues()
	return err
}

// EnqueueEmbedding implements memory.JobEnqueuer.
func (c *Client) EnqueueEmbedding(ctx context.Context, memoryID, content string, priority int) error {
	task := NewEmbeddingTask(EmbeddingPayload{MemoryID: memoryID, Content: content}, priority)
	_, err := c.asynq.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue embedding job: %w", err)
	}
	return nil
}

func (c *Client) EnqueueBatchImport(ctx context.Context, p BatchImportPayload) error {
	_, err := c.asynq.EnqueueContext(ctx, NewBatchImportTask(p))
	if err != nil {
		return fmt.Errorf("enqueue batch import job: %w", err)
	}
	return nil
}

func (c *Client) EnqueueConsolidation(ctx context.Context, p ConsolidationPayload) error {
	_, err := c.asynq.EnqueueContext(ctx, NewConsolidationTask(p))
	if err != nil {
		return fmt.Errorf("enqueue consolidation job: %w", err)
	}
	return nil
}

func (c *Client) EnqueueClustering(ctx context.Context, p ClusteringPayload) error {
	_, err := c.asynq.EnqueueContext(ctx, NewClusteringTask(p))
	if err != nil {
		return fmt.Errorf("enqueue clustering job: %w", err)
	}
	return nil
}

func (c *Client) EnqueueDecay(ctx context.Context, p DecayPayload) error {
	_, err := c.asynq.EnqueueContext(ctx, NewDecayTask(p))
	if err != nil {
		return fmt.Errorf("enqueue decay job: %w", err)
	}
	return nil
}
