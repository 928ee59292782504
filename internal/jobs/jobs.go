// Package jobs implements the durable async job system (C12): five task
// topics (embedding, batch import, consolidation, clustering, decay)
// carried over Redis via hibiken/asynq, reusing the Redis instance already
// required for the remote cache tier rather than introducing a second
// broker, in the spirit of the pack's messaging.TaskQueueBroker split
// between an enqueue-side client and a handler-side worker.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names, one per topic.
const (
	TypeEmbedding     = "memory:embedding"
	TypeBatchImport   = "memory:batch_import"
	TypeConsolidation = "memory:consolidation"
	TypeClustering    = "memory:clustering"
	TypeDecay         = "memory:decay"
)

// Queue names, matched 1:1 to task types so each topic gets its own
// concurrency weight and can be paused independently.
const (
	QueueEmbedding     = "embedding"
	QueueBatchImport   = "batch_import"
	QueueConsolidation = "consolidation"
	QueueClustering    = "clustering"
	QueueDecay         = "decay"
)

// QueueWeights sets each queue's share of worker concurrency, favoring the
// interactive embedding path over the maintenance jobs.
var QueueWeights = map[string]int{
	QueueEmbedding:     3,
	QueueBatchImport:   2,
	QueueConsolidation: 1,
	QueueClustering:    1,
	QueueDecay:         2,
}

// EmbeddingPayload asks a worker to compute and persist one memory's vector.
type EmbeddingPayload struct {
	MemoryID string `json:"memory_id"`
	Content  string `json:"content"`
}

// BatchImportPayload asks a worker to store a chunk of memories on behalf of
// a bulk import request, generalizing memory_batch into a background job so
// large imports do not block the calling request.
type BatchImportPayload struct {
	UserContext string        `json:"user_context"`
	Items       []ImportItem  `json:"items"`
	ImportID    string        `json:"import_id"`
	ChunkIndex  int           `json:"chunk_index"`
}

// ImportItem is one memory to store during a batch import.
type ImportItem struct {
	Content    any            `json:"content"`
	Type       string         `json:"type"`
	Tags       []string       `json:"tags,omitempty"`
	Source     string         `json:"source,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ConsolidationPayload asks a worker to run one consolidation strategy over
// a user's memories.
type ConsolidationPayload struct {
	UserContext    string  `json:"user_context"`
	Strategy       string  `json:"strategy"` // "cluster", "merge", or "summarize"
	Threshold      float64 `json:"threshold"`
	MinClusterSize int     `json:"min_cluster_size"`
}

// ClusteringPayload asks a worker to run a clustering maintenance pass.
type ClusteringPayload struct {
	UserContext string  `json:"user_context"`
	Mode        string  `json:"mode"` // "full", "incremental", "merge", "split"
	Epsilon     float64 `json:"epsilon"`
	MinPoints   int     `json:"min_points"`
}

// DecayPayload asks a worker to run one lifecycle decay batch. The batch
// only touches memories whose user_context equals UserContext; the periodic
// schedule enqueues one task per user context.
type DecayPayload struct {
	UserContext string `json:"user_context"`
	BatchSize   int    `json:"batch_size"`
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// NewEmbeddingTask builds the asynq task for an embedding payload. Priority
// maps to asynq's queue by routing into the embedding queue regardless of
// value; finer-grained ordering within the queue is not something asynq
// exposes, so priority instead controls MaxRetry generosity: memories the
// caller flagged as important get more retry attempts before landing in the
// dead letter archive.
func NewEmbeddingTask(p EmbeddingPayload, priority int) *asynq.Task {
	retries := 3
	if priority >= 8 {
		retries = 6
	}
	return asynq.NewTask(TypeEmbedding, mustMarshal(p),
		asynq.Queue(QueueEmbedding),
		asynq.MaxRetry(retries),
		asynq.Timeout(30*time.Second),
		asynq.TaskID("embed:"+p.MemoryID),
	)
}

func NewBatchImportTask(p BatchImportPayload) *asynq.Task {
	return asynq.NewTask(TypeBatchImport, mustMarshal(p),
		asynq.Queue(QueueBatchImport),
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
	)
}

func NewConsolidationTask(p ConsolidationPayload) *asynq.Task {
	return asynq.NewTask(TypeConsolidation, mustMarshal(p),
		asynq.Queue(QueueConsolidation),
		asynq.MaxRetry(1),
		asynq.Timeout(10*time.Minute),
	)
}

func NewClusteringTask(p ClusteringPayload) *asynq.Task {
	return asynq.NewTask(TypeClustering, mustMarshal(p),
		asynq.Queue(QueueClustering),
		asynq.MaxRetry(1),
		asynq.Timeout(10*time.Minute),
	)
}

func NewDecayTask(p DecayPayload) *asynq.Task {
	return asynq.NewTask(TypeDecay, mustMarshal(p),
		asynq.Queue(QueueDecay),
		asynq.MaxRetry(2),
		asynq.Timeout(2*time.Minute),
	)
}
