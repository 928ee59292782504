// Package memory implements the memory engine facade (C8): the single
// entry point composing store, cache, embedding, dedup, and the async job
// queue into the engine operations behind the tool surface.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/memsvc/memory/internal/apperr"
	"github.com/memsvc/memory/internal/cache"
	"github.com/memsvc/memory/internal/cluster"
	"github.com/memsvc/memory/internal/compression"
	"github.com/memsvc/memory/internal/embedding"
	"github.com/memsvc/memory/internal/models"
	"github.com/memsvc/memory/internal/store"
	"github.com/memsvc/memory/internal/vectormath"
)

// JobEnqueuer is the seam into the async job system (C12), kept separate to
// avoid a dependency cycle between this package and internal/jobs.
type JobEnqueuer interface {
	EnqueueEmbedding(ctx context.Context, memoryID, content string, priority int) error
}

// Service is the facade for every memory operation, generalizing the
// teacher's Service shape (store+cache+embedder+dedup+lifecycle
// composition) onto the spec's entity and contract set.
type Service struct {
	memories  *store.MemoryStore
	relations *store.RelationStore
	cache     cache.Cache
	embedder  *embedding.Provider
	dedup     *Deduplicator
	jobs      JobEnqueuer

	asyncEnabled bool
	cacheTTL     time.Duration
	logger       *slog.Logger
}

func NewService(
	memories *store.MemoryStore,
	relations *store.RelationStore,
	c cache.Cache,
	embedder *embedding.Provider,
	dedup *Deduplicator,
	jobs JobEnqueuer,
	asyncEnabled bool,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		memories:     memories,
		relations:    relations,
		cache:        c,
		embedder:     embedder,
		dedup:        dedup,
		jobs:         jobs,
		asyncEnabled: asyncEnabled,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

const maxCompressInputBytes = 100 * 1024

// Store implements §4.8's store(input, async=true).
func (s *Service) Store(ctx context.Context, req *models.StoreRequest) (*models.Memory, error) {
	userContext := defaultContext(req.UserContext)

	text, err := serializeContent(req.Content)
	if err != nil {
		return nil, apperr.InvalidParamsf("serialize content: %v", err)
	}
	hash := embedding.ContentHash(text)

	if hit, err := s.dedup.CheckDuplicate(ctx, userContext, hash); err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	} else if hit != nil {
		if _, err := s.memories.BumpAccess(ctx, hit.ID); err != nil {
			return nil, fmt.Errorf("bump access on dedup hit: %w", err)
		}
		_ = cache.InvalidateMemory(ctx, s.cache, hit.ID)
		return s.memories.GetByID(ctx, hit.ID)
	}

	async := s.asyncEnabled
	if req.Async != nil {
		async = *req.Async
	}

	now := time.Now()
	mem := &models.Memory{
		ID:                  uuid.New().String(),
		UserContext:         userContext,
		Content:             req.Content,
		ContentHash:         hash,
		Tags:                req.Tags,
		Type:                req.Type,
		Source:              req.Source,
		Confidence:          orDefault(req.Confidence, 0.8),
		ImportanceScore:     orDefault(req.Importance, 0.5),
		SimilarityThreshold: orDefault(req.Threshold, 0.7),
		DecayRate:           req.DecayRate,
		ParentID:            req.ParentID,
		CreatedAt:           now,
		UpdatedAt:           now,
		AccessedAt:          now,
		LastDecayUpdate:     now,
		State:               models.StateActive,
		DecayScore:          1.0,
		Metadata:            map[string]any{},
	}

	if len(text) > maxCompressInputBytes {
		result := compression.Compress(text, mem.Type, compression.DefaultTargetRatio)
		mem.Content = map[string]any{"text": result.Text}
		mem.IsCompressed = true
		mem.Metadata["originalSize"] = result.OriginalSize
		mem.Metadata["compressedSize"] = result.CompressedSize
		mem.Metadata["compressionRatio"] = result.CompressionRatio
		mem.Metadata["compressionType"] = "adaptive"
		text = result.Text
	}

	if async && s.jobs != nil {
		mem.Embedding = nil
	} else {
		vec, err := s.embedder.Embed(ctx, text, int64(s.cacheTTL.Seconds()))
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}
		mem.Embedding = vec
		dim := len(vec)
		mem.EmbeddingDimension = &dim
	}

	if err := s.memories.Insert(ctx, mem); err != nil {
		return nil, err
	}

	if mem.Embedding == nil && async && s.jobs != nil {
		priority := 5
		if req.Importance > 0 {
			priority = int(math.Round(req.Importance * 10))
		}
		if err := s.jobs.EnqueueEmbedding(ctx, mem.ID, text, priority); err != nil {
			s.logger.Warn("enqueue embedding job failed", "memory_id", mem.ID, "error", err)
		}
	}

	for _, rel := range req.RelateTo {
		strength := 0.5
		if rel.Strength != nil {
			strength = *rel.Strength
		}
		if err := s.createRelation(ctx, mem.ID, rel.MemoryID, models.NormalizeRelationType(rel.RelationType), strength); err != nil {
			s.logger.Warn("relate_to upsert failed", "from", mem.ID, "to", rel.MemoryID, "error", err)
		}
	}

	_ = s.cache.Set(ctx, cache.NamespaceMemory, mem.ID, mem, s.cacheTTL)
	_ = s.cache.ClearNamespace(ctx, cache.NamespaceSearch)

	return mem, nil
}

// Search implements §4.8's search(input).
func (s *Service) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	userContext := defaultContext(req.UserContext)
	cacheKey := searchCacheKey(userContext, req)

	var cached models.SearchResponse
	if ok, err := s.cache.Get(ctx, cache.NamespaceSearch, cacheKey, &cached); err == nil && ok {
		return &cached, nil
	}

	vec, err := s.embedder.Embed(ctx, req.Query, int64(s.cacheTTL.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.memories.KnnSearch(ctx, vec, store.KnnSearchFilter{
		UserContext: userContext,
		Types:       req.Types,
		Tags:        req.Tags,
		Limit:       req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	threshold := req.Threshold
	filtered := results[:0]
	for _, m := range results {
		if threshold > 0 && m.Similarity < threshold {
			continue
		}
		filtered = append(filtered, m)
	}

	for _, m := range filtered {
		if _, err := s.memories.BumpAccess(ctx, m.ID); err != nil {
			s.logger.Warn("bump access after search failed", "memory_id", m.ID, "error", err)
		}
	}

	resp := &models.SearchResponse{Results: filtered}
	_ = s.cache.Set(ctx, cache.NamespaceSearch, cacheKey, resp, s.cacheTTL)
	return resp, nil
}

// List implements §4.8's list(input), re-hydrating compressed content for
// display without mutating the stored original.
func (s *Service) List(ctx context.Context, req *models.ListRequest) (*models.ListResponse, error) {
	userContext := defaultContext(req.UserContext)

	var typeFilter *models.MemoryType
	if len(req.Types) > 0 {
		typeFilter = &req.Types[0]
	}

	memories, total, err := s.memories.List(ctx, store.ListFilter{
		UserContext: userContext,
		Type:        typeFilter,
		Tags:        req.Tags,
		Limit:       req.Limit,
		Offset:      req.Offset,
	})
	if err != nil {
		return nil, err
	}

	for _, m := range memories {
		if m.IsCompressed {
			if text, ok := m.Content.(map[string]any); ok {
				m.Content = map[string]any{"text": text["text"]}
			}
		}
	}

	return &models.ListResponse{Memories: memories, Total: total}, nil
}

var updatableFields = map[string]bool{
	"tags": true, "confidence": true, "importance_score": true, "type": true, "source": true,
}

// Get fetches a single memory by id, for tools that read without mutating
// (decay status, preserve, graph analysis).
func (s *Service) Get(ctx context.Context, id string) (*models.Memory, error) {
	return s.memories.GetByID(ctx, id)
}

// Update implements §4.8's update(input): whitelisted fields only.
func (s *Service) Update(ctx context.Context, req *models.UpdateRequest) (*models.Memory, error) {
	fields := store.UpdateFields{
		Tags:            derefStrings(req.Tags),
		Confidence:      req.Confidence,
		ImportanceScore: req.ImportanceScore,
		Type:            req.Type,
		Source:          req.Source,
	}
	if err := s.memories.Update(ctx, req.ID, fields); err != nil {
		return nil, err
	}
	_ = cache.InvalidateMemory(ctx, s.cache, req.ID)
	return s.memories.GetByID(ctx, req.ID)
}

// Delete implements §4.8's delete(input): soft-delete by id or content_hash.
func (s *Service) Delete(ctx context.Context, req *models.DeleteRequest) (bool, error) {
	id := req.ID
	if id == "" && req.ContentHash != "" {
		m, err := s.memories.FindByHash(ctx, defaultContext(req.UserContext), req.ContentHash)
		if err != nil {
			return false, err
		}
		if m == nil {
			return false, nil
		}
		id = m.ID
	}
	if id == "" {
		return false, apperr.InvalidParamsf("delete requires id or content_hash")
	}
	if err := s.memories.SoftDelete(ctx, id); err != nil {
		if apperr.CategoryOf(err) == apperr.NotFound {
			return false, nil
		}
		return false, err
	}
	_ = cache.InvalidateMemory(ctx, s.cache, id)
	return true, nil
}

// BatchStore implements §4.8's batchStore(input): per-item store, never
// aborting the batch on a single item's failure.
func (s *Service) BatchStore(ctx context.Context, req *models.BatchStoreRequest) *models.BatchStoreResponse {
	resp := &models.BatchStoreResponse{}
	for i, item := range req.Memories {
		if item.UserContext == "" {
			item.UserContext = req.UserContext
		}
		mem, err := s.Store(ctx, &item)
		if err != nil {
			resp.Results = append(resp.Results, models.BatchStoreResult{Index: i, Error: err.Error()})
			resp.Failed++
			continue
		}
		resp.Results = append(resp.Results, models.BatchStoreResult{Index: i, Memory: mem})
		resp.Stored++
	}
	return resp
}

// BatchDelete implements §4.8's batchDelete(ids).
func (s *Service) BatchDelete(ctx context.Context, req *models.BatchDeleteRequest) *models.BatchDeleteResponse {
	resp := &models.BatchDeleteResponse{}
	for _, id := range req.IDs {
		if err := s.memories.SoftDelete(ctx, id); err != nil {
			resp.Failed = append(resp.Failed, id)
			continue
		}
		_ = cache.InvalidateMemory(ctx, s.cache, id)
		resp.Deleted++
	}
	return resp
}

// GraphSearch implements §4.8's graphSearch(input, depth).
func (s *Service) GraphSearch(ctx context.Context, req *models.GraphSearchRequest) (*models.GraphSearchResponse, error) {
	userContext := defaultContext(req.UserContext)
	depth := req.Depth
	if depth <= 0 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	seedResp, err := s.Search(ctx, &models.SearchRequest{
		UserContext: userContext,
		Query:       req.Query,
		Limit:       req.Limit,
		Threshold:   req.Threshold,
		Types:       req.Types,
		Tags:        req.Tags,
	})
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{}
	var out []*models.Memory
	frontier := seedResp.Results
	for _, m := range frontier {
		visited[m.ID] = true
	}

	for level := 0; level < depth; level++ {
		var next []*models.Memory
		for _, m := range frontier {
			related := s.relatedFor(ctx, m)
			m.Metadata = withRelationships(m.Metadata, related)
			out = append(out, m)

			for _, rel := range related {
				if visited[rel.RelatedID] {
					continue
				}
				visited[rel.RelatedID] = true
				neighbor, err := s.memories.GetByID(ctx, rel.RelatedID)
				if err != nil {
					continue
				}
				if neighbor.UserContext != userContext {
					continue
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	// Any remaining frontier nodes at the final depth still get their
	// relationships attached, even without further expansion.
	for _, m := range frontier {
		related := s.relatedFor(ctx, m)
		m.Metadata = withRelationships(m.Metadata, related)
		out = append(out, m)
	}

	return &models.GraphSearchResponse{Results: out}, nil
}

// relatedFor gathers every edge touching m: memory_relations in both
// directions, plus the parent_id hierarchy in both directions, per §4.8's
// breadth-expansion contract.
func (s *Service) relatedFor(ctx context.Context, m *models.Memory) []models.RelatedMemory {
	neighbors, err := s.relations.Neighbors(ctx, m.ID)
	var out []models.RelatedMemory
	if err == nil {
		for _, n := range neighbors {
			out = append(out, *n)
		}
	}

	if m.ParentID != nil {
		out = append(out, models.RelatedMemory{RelatedID: *m.ParentID, Type: "child_of", Strength: 1})
	}
	if children, err := s.memories.ChildrenOf(ctx, m.ID, m.UserContext); err == nil {
		for _, c := range children {
			out = append(out, models.RelatedMemory{RelatedID: c.ID, Type: "parent_of", Strength: 1})
		}
	}

	return out
}

func withRelationships(metadata map[string]any, related []models.RelatedMemory) map[string]any {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["relationships"] = related
	return metadata
}

// Consolidate implements §4.8's consolidate(input): DBSCAN via C7 with
// epsilon=1-threshold, minPoints=min_cluster_size.
func (s *Service) Consolidate(ctx context.Context, req *models.ConsolidateRequest) (*models.ConsolidateResponse, error) {
	userContext := defaultContext(req.UserContext)
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	minClusterSize := req.MinClusterSize
	if minClusterSize <= 0 {
		minClusterSize = cluster.DefaultMinClusterSize
	}

	candidates, err := s.memories.ForClustering(ctx, userContext)
	if err != nil {
		return nil, err
	}

	points := make([]cluster.Point, 0, len(candidates))
	for _, m := range candidates {
		if len(m.Embedding) > 0 {
			points = append(points, cluster.Point{ID: m.ID, Embedding: m.Embedding})
		}
	}

	result := cluster.DBSCAN(points, 1-threshold, minClusterSize, minClusterSize)

	archived := 0
	for clusterID, memberIDs := range result.Assignments {
		for _, id := range memberIDs {
			cid := clusterID
			if err := s.memories.Update(ctx, id, store.UpdateFields{ClusterID: &cid}); err != nil {
				s.logger.Warn("cluster assignment failed", "memory_id", id, "error", err)
				continue
			}
			_ = cache.InvalidateMemory(ctx, s.cache, id)
			archived++
		}
	}

	noise := len(points) - archived
	return &models.ConsolidateResponse{
		ClustersCreated:  len(result.Assignments),
		MemoriesArchived: archived,
		NoiseCount:       noise,
	}, nil
}

// CreateRelation implements §4.8's createRelation, verifying both endpoints
// exist and are not deleted before upserting.
func (s *Service) CreateRelation(ctx context.Context, req *models.RelateRequest) error {
	relType := models.NormalizeRelationType(req.RelationType)
	if err := s.createRelation(ctx, req.From, req.To, relType, req.Strength); err != nil {
		return err
	}
	if req.Bidirectional {
		if err := s.createRelation(ctx, req.To, req.From, models.ReverseRelationType(relType), req.Strength); err != nil {
			s.logger.Warn("bidirectional reverse relation failed", "from", req.To, "to", req.From, "error", err)
		}
	}
	return nil
}

func (s *Service) createRelation(ctx context.Context, fromID, toID string, relType models.RelationType, strength float64) error {
	if _, err := s.memories.GetByID(ctx, fromID); err != nil {
		return fmt.Errorf("from memory: %w", err)
	}
	if _, err := s.memories.GetByID(ctx, toID); err != nil {
		return fmt.Errorf("to memory: %w", err)
	}

	now := time.Now()
	rel := &models.MemoryRelation{
		ID:           uuid.New().String(),
		FromMemoryID: fromID,
		ToMemoryID:   toID,
		RelationType: relType,
		Strength:     strength,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.relations.Upsert(ctx, rel); err != nil {
		return err
	}
	_ = cache.InvalidateMemory(ctx, s.cache, fromID)
	_ = cache.InvalidateMemory(ctx, s.cache, toID)
	return nil
}

// DeleteRelation implements §4.8's deleteRelation(from,to).
func (s *Service) DeleteRelation(ctx context.Context, req *models.UnrelateRequest) error {
	if err := s.relations.Delete(ctx, req.From, req.To); err != nil {
		return err
	}
	_ = cache.InvalidateMemory(ctx, s.cache, req.From)
	_ = cache.InvalidateMemory(ctx, s.cache, req.To)
	return nil
}

// GetRelations returns every relation touching id in either direction.
func (s *Service) GetRelations(ctx context.Context, req *models.GetRelationsRequest) (*models.GetRelationsResponse, error) {
	outgoing, err := s.relations.Outgoing(ctx, req.MemoryID, nil)
	if err != nil {
		return nil, err
	}
	incoming, err := s.relations.Incoming(ctx, req.MemoryID, nil)
	if err != nil {
		return nil, err
	}
	return &models.GetRelationsResponse{Outgoing: outgoing, Incoming: incoming}, nil
}

// Stats aggregates counts scoped by user context.
func (s *Service) Stats(ctx context.Context, userContext string) (*models.StatsResponse, error) {
	userContext = defaultContext(userContext)
	st, err := s.memories.Stats(ctx, userContext)
	if err != nil {
		return nil, err
	}
	return &models.StatsResponse{
		UserContext:   userContext,
		Total:         st.TotalMemories,
		ByType:        st.ByType,
		ByState:       st.ByState,
		Compressed:    st.CompressedCount,
		AvgDecayScore: st.AvgDecayScore,
	}, nil
}

// Tags returns tag usage counts for a user context.
func (s *Service) Tags(ctx context.Context, userContext string) (map[string]int, error) {
	return s.memories.TagCounts(ctx, defaultContext(userContext))
}

// Types returns the distinct memory types in use for a user context.
func (s *Service) Types(ctx context.Context, userContext string) ([]string, error) {
	return s.memories.DistinctTypes(ctx, defaultContext(userContext))
}

// Relationships lists every relation edge touching a user context's memories.
func (s *Service) Relationships(ctx context.Context, userContext string) ([]*models.MemoryRelation, error) {
	return s.relations.ForUserContext(ctx, defaultContext(userContext))
}

// Clusters computes on-demand cluster summaries (size, members, coherence)
// for every cluster_id currently assigned in a user context. Clusters have
// no dedicated storage row — they are derived from memories.cluster_id.
func (s *Service) Clusters(ctx context.Context, userContext string) ([]*models.Cluster, error) {
	mems, err := s.memories.ForClustering(ctx, defaultContext(userContext))
	if err != nil {
		return nil, err
	}
	byCluster := map[string][]*models.Memory{}
	for _, m := range mems {
		if m.ClusterID == nil {
			continue
		}
		byCluster[*m.ClusterID] = append(byCluster[*m.ClusterID], m)
	}
	out := make([]*models.Cluster, 0, len(byCluster))
	for id, members := range byCluster {
		vecs := make([][]float32, len(members))
		ids := make([]string, len(members))
		for i, m := range members {
			vecs[i] = m.Embedding
			ids[i] = m.ID
		}
		out = append(out, &models.Cluster{
			ID:        id,
			MemberIDs: ids,
			Size:      len(members),
			Centroid:  vectormath.Centroid(vecs),
			Coherence: vectormath.Coherence(vecs),
		})
	}
	return out, nil
}

func defaultContext(c string) string {
	if c == "" {
		return models.DefaultUserContext
	}
	return c
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func derefStrings(p *[]string) []string {
	if p == nil {
		return nil
	}
	return *p
}

func serializeContent(content any) (string, error) {
	if s, ok := content.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func searchCacheKey(userContext string, req *models.SearchRequest) string {
	raw, _ := json.Marshal(req)
	return userContext + ":" + cache.HashIdentifier(string(raw))
}
