package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/memsvc/memory/internal/apperr"
	"github.com/memsvc/memory/internal/cluster"
	"github.com/memsvc/memory/internal/embedding"
	"github.com/memsvc/memory/internal/lifecycle"
	"github.com/memsvc/memory/internal/memory"
	"github.com/memsvc/memory/internal/models"
	"github.com/memsvc/memory/internal/store"
	"github.com/memsvc/memory/internal/validate"
)

// Handlers wires the durable job topics to the domain packages that do the
// actual work: the memory service for ingestion/consolidation, the store
// directly for the scans clustering and decay need, and the lifecycle
// manager for decay batches.
type Handlers struct {
	Service   *memory.Service
	Memories  *store.MemoryStore
	Embedder  *embedding.Provider
	Lifecycle *lifecycle.Manager
	cacheTTL  int64

	embedLimiter *rate.Limiter // 10/s per §4.12
	decayLimiter *rate.Limiter // 5/min per §4.12

	logger *slog.Logger
}

func NewHandlers(
	svc *memory.Service,
	memories *store.MemoryStore,
	embedder *embedding.Provider,
	lc *lifecycle.Manager,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		Service:      svc,
		Memories:     memories,
		Embedder:     embedder,
		Lifecycle:    lc,
		cacheTTL:     int64(cacheTTL.Seconds()),
		embedLimiter: rate.NewLimiter(rate.Limit(10), 10),
		decayLimiter: rate.NewLimiter(rate.Every(12*time.Second), 5), // 5/min
		logger:       logger,
	}
}

// Mux builds the asynq handler routing table for a worker server.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmbedding, h.handleEmbedding)
	mux.HandleFunc(TypeBatchImport, h.handleBatchImport)
	mux.HandleFunc(TypeConsolidation, h.handleConsolidation)
	mux.HandleFunc(TypeClustering, h.handleClustering)
	mux.HandleFunc(TypeDecay, h.handleDecay)
	return mux
}

// handleEmbedding computes and persists one memory's vector. It is
// idempotent: if the memory already carries an embedding of the configured
// dimension, the handler is a no-op, so a redelivered task after a crash
// mid-write does not double the work.
func (h *Handlers) handleEmbedding(ctx context.Context, t *asynq.Task) error {
	var p EmbeddingPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	mem, err := h.Memories.GetByID(ctx, p.MemoryID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if mem.EmbeddingDimension != nil && *mem.EmbeddingDimension > 0 && len(mem.Embedding) == *mem.EmbeddingDimension {
		return nil
	}

	if err := h.embedLimiter.Wait(ctx); err != nil {
		return err
	}
	vec, err := h.Embedder.Embed(ctx, p.Content, h.cacheTTL)
	if err != nil {
		if !apperr.Retryable(err) {
			return h.recordEmbeddingFailure(ctx, mem, err)
		}
		return fmt.Errorf("embed content: %w", err)
	}

	dim := len(vec)
	if err := h.Memories.Update(ctx, p.MemoryID, store.UpdateFields{
		Embedding:          vec,
		EmbeddingDimension: &dim,
	}); err != nil {
		return fmt.Errorf("persist embedding: %w", err)
	}
	return nil
}

// recordEmbeddingFailure handles a non-retryable embedding error (a bad
// model response or a dimension mismatch against the deployment's
// established dimension): it's recorded on the memory rather than retried
// forever, and the returned error wraps asynq.SkipRetry so asynq does not
// retry the task.
func (h *Handlers) recordEmbeddingFailure(ctx context.Context, mem *models.Memory, cause error) error {
	metadata := mem.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["embeddingError"] = validate.SanitizeErrorMessage(cause.Error())

	if err := h.Memories.Update(ctx, mem.ID, store.UpdateFields{Metadata: metadata}); err != nil {
		return fmt.Errorf("record embedding error: %w", err)
	}
	h.logger.Warn("embedding permanently failed", "memory_id", mem.ID, "error", cause)
	return fmt.Errorf("%w: %v", asynq.SkipRetry, cause)
}

// handleBatchImport stores one chunk of a bulk import, matching the
// non-aborting partial-failure behavior of memory_batch: a failed item is
// logged and skipped rather than failing the whole chunk.
func (h *Handlers) handleBatchImport(ctx context.Context, t *asynq.Task) error {
	var p BatchImportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	stored, failed := 0, 0
	for i, item := range p.Items {
		req := &models.StoreRequest{
			UserContext: p.UserContext,
			Content:     item.Content,
			Type:        models.MemoryType(item.Type),
			Tags:        item.Tags,
			Source:      item.Source,
			Confidence:  item.Confidence,
		}
		if _, err := h.Service.Store(ctx, req); err != nil {
			failed++
			h.logger.Warn("batch import item failed", "import_id", p.ImportID, "chunk", p.ChunkIndex, "item", i, "error", err)
			continue
		}
		stored++
	}
	h.logger.Info("batch import chunk complete", "import_id", p.ImportID, "chunk", p.ChunkIndex, "stored", stored, "failed", failed)
	return nil
}

// handleConsolidation dispatches to one of the three consolidation
// strategies named in §4.7: cluster (DBSCAN grouping only), merge (cluster,
// then strengthen a relates_to edge between every pair of clustermates),
// and summarize (cluster, then compress each clustered memory in place via
// the same path lifecycle uses on the archive transition).
func (h *Handlers) handleConsolidation(ctx context.Context, t *asynq.Task) error {
	var p ConsolidationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	resp, err := h.Service.Consolidate(ctx, &models.ConsolidateRequest{
		UserContext:    p.UserContext,
		Threshold:      p.Threshold,
		MinClusterSize: p.MinClusterSize,
	})
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}

	switch p.Strategy {
	case "merge":
		if err := h.mergeClusteredMemories(ctx, p.UserContext); err != nil {
			return fmt.Errorf("merge clustered memories: %w", err)
		}
	case "summarize":
		if err := h.summarizeClusteredMemories(ctx, p.UserContext); err != nil {
			return fmt.Errorf("summarize clustered memories: %w", err)
		}
	}

	h.logger.Info("consolidation complete", "user_context", p.UserContext, "strategy", p.Strategy,
		"clusters", resp.ClustersCreated, "archived", resp.MemoriesArchived, "noise", resp.NoiseCount)
	return nil
}

// mergeClusteredMemories strengthens relations between every pair of
// memories that DBSCAN placed in the same cluster, so clustering has a
// visible effect on the graph even when no content is rewritten.
func (h *Handlers) mergeClusteredMemories(ctx context.Context, userContext string) error {
	mems, err := h.Memories.ForClustering(ctx, userContext)
	if err != nil {
		return err
	}
	byCluster := map[string][]*models.Memory{}
	for _, m := range mems {
		if m.ClusterID != nil {
			byCluster[*m.ClusterID] = append(byCluster[*m.ClusterID], m)
		}
	}
	for _, members := range byCluster {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				req := &models.RelateRequest{
					From:         members[i].ID,
					To:           members[j].ID,
					RelationType: models.RelationRelatesTo,
					Strength:     0.6,
				}
				if err := h.Service.CreateRelation(ctx, req); err != nil {
					h.logger.Warn("merge relation create failed", "error", err)
				}
			}
		}
	}
	return nil
}

// summarizeClusteredMemories compresses each cluster's memories in place
// using the same compression package the lifecycle manager calls on
// archive, marking them compressed without changing state or decay score.
func (h *Handlers) summarizeClusteredMemories(ctx context.Context, userContext string) error {
	mems, err := h.Memories.ForClustering(ctx, userContext)
	if err != nil {
		return err
	}
	for _, m := range mems {
		if m.ClusterID == nil || m.IsCompressed {
			continue
		}
		if err := h.Lifecycle.CompressInPlace(ctx, m); err != nil {
			h.logger.Warn("summarize compress failed", "memory_id", m.ID, "error", err)
		}
	}
	return nil
}

// handleClustering runs a clustering maintenance pass: merge/split
// maintenance over existing clusters, or, for any other mode ("full" and
// "incremental" alike), a full DBSCAN pass that rewrites every candidate's
// assignment. There is no separate incremental path.
func (h *Handlers) handleClustering(ctx context.Context, t *asynq.Task) error {
	var p ClusteringPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	epsilon := p.Epsilon
	if epsilon <= 0 {
		epsilon = cluster.DefaultEpsilon
	}
	minPoints := p.MinPoints
	if minPoints <= 0 {
		minPoints = cluster.DefaultMinPoints
	}

	mems, err := h.Memories.ForClustering(ctx, p.UserContext)
	if err != nil {
		return fmt.Errorf("load clustering candidates: %w", err)
	}

	switch p.Mode {
	case "merge", "split":
		return h.maintainClusters(ctx, mems, p.Mode)
	default:
		points := make([]cluster.Point, 0, len(mems))
		for _, m := range mems {
			if len(m.Embedding) > 0 {
				points = append(points, cluster.Point{ID: m.ID, Embedding: m.Embedding})
			}
		}
		result := cluster.DBSCAN(points, epsilon, minPoints, cluster.DefaultMinClusterSize)
		for clusterID, ids := range result.Assignments {
			for _, id := range ids {
				cid := clusterID
				if err := h.Memories.Update(ctx, id, store.UpdateFields{ClusterID: &cid}); err != nil {
					h.logger.Warn("clustering assignment failed", "memory_id", id, "error", err)
				}
			}
		}
		h.logger.Info("clustering pass complete", "user_context", p.UserContext, "mode", p.Mode, "clusters", len(result.Assignments))
		return nil
	}
}

func (h *Handlers) maintainClusters(ctx context.Context, mems []*models.Memory, mode string) error {
	byCluster := map[string]*cluster.ClusterState{}
	for _, m := range mems {
		if m.ClusterID == nil || len(m.Embedding) == 0 {
			continue
		}
		cs, ok := byCluster[*m.ClusterID]
		if !ok {
			cs = &cluster.ClusterState{ID: *m.ClusterID}
			byCluster[*m.ClusterID] = cs
		}
		cs.MemberID = append(cs.MemberID, m.ID)
		cs.Vectors = append(cs.Vectors, m.Embedding)
	}
	states := make([]cluster.ClusterState, 0, len(byCluster))
	for _, cs := range byCluster {
		states = append(states, *cs)
	}

	var reassign map[string]string // memberID -> new clusterID
	if mode == "merge" {
		merged, absorbed := cluster.MergeSimilarClusters(states, cluster.DefaultMergeThreshold)
		reassign = map[string]string{}
		for _, cs := range merged {
			for _, id := range cs.MemberID {
				reassign[id] = cs.ID
			}
		}
		for absorbedID, survivorID := range absorbed {
			for _, cs := range states {
				if cs.ID != absorbedID {
					continue
				}
				for _, id := range cs.MemberID {
					reassign[id] = survivorID
				}
			}
		}
	} else {
		split := cluster.SplitLargeClusters(states, cluster.DefaultMaxClusterSize, cluster.DefaultMinCoherence)
		reassign = map[string]string{}
		for _, cs := range split {
			for _, id := range cs.MemberID {
				reassign[id] = cs.ID
			}
		}
	}

	for id, newClusterID := range reassign {
		cid := newClusterID
		if err := h.Memories.Update(ctx, id, store.UpdateFields{ClusterID: &cid}); err != nil {
			h.logger.Warn("cluster maintenance reassignment failed", "memory_id", id, "error", err)
		}
	}
	return nil
}

// handleDecay runs one lifecycle scan batch, rate limited to 5/min so a
// burst of enqueued decay tasks (e.g. one per active user context from the
// periodic schedule) cannot overwhelm the store.
func (h *Handlers) handleDecay(ctx context.Context, t *asynq.Task) error {
	var p DecayPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := h.decayLimiter.Wait(ctx); err != nil {
		return err
	}

	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	result, err := h.Lifecycle.ProcessBatch(ctx, p.UserContext, batchSize)
	if err != nil {
		return fmt.Errorf("process decay batch: %w", err)
	}
	h.logger.Info("decay batch complete", "user_context", p.UserContext,
		"processed", result.Processed, "transitioned", result.Transitioned, "errors", result.Errors)
	return nil
}
