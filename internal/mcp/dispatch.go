package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/memsvc/memory/internal/apperr"
	"github.com/memsvc/memory/internal/graph"
	"github.com/memsvc/memory/internal/lifecycle"
	"github.com/memsvc/memory/internal/models"
	"github.com/memsvc/memory/internal/validate"
)

// okResponse is returned by tools (relate, unrelate) whose operation has no
// richer result than "it worked".
type okResponse struct {
	Success bool `json:"success"`
}

func memoryTypes(ss []string) []models.MemoryType {
	out := make([]models.MemoryType, len(ss))
	for i, s := range ss {
		out[i] = models.MemoryType(s)
	}
	return out
}

func relationTypes(ss []string) []models.RelationType {
	out := make([]models.RelationType, len(ss))
	for i, s := range ss {
		out[i] = models.RelationType(s)
	}
	return out
}

// dispatchTool validates args and invokes the matching engine operation.
// Unknown tool names are the caller's responsibility to map to
// MethodNotFound; every path below returns an *apperr.Error (or a wrapped
// transient error) on failure so the JSON-RPC layer can map categories once.
func (s *Server) dispatchTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "memory_store":
		return s.toolStore(ctx, args)
	case "memory_search":
		return s.toolSearch(ctx, args)
	case "memory_list":
		return s.toolList(ctx, args)
	case "memory_update":
		return s.toolUpdate(ctx, args)
	case "memory_delete":
		return s.toolDelete(ctx, args)
	case "memory_batch":
		return s.toolBatchStore(ctx, args)
	case "memory_batch_delete":
		return s.toolBatchDelete(ctx, args)
	case "memory_graph_search":
		return s.toolGraphSearch(ctx, args)
	case "memory_consolidate":
		return s.toolConsolidate(ctx, args)
	case "memory_stats":
		return s.toolStats(ctx, args)
	case "memory_relate":
		return s.toolRelate(ctx, args)
	case "memory_unrelate":
		return s.toolUnrelate(ctx, args)
	case "memory_get_relations":
		return s.toolGetRelations(ctx, args)
	case "memory_traverse":
		return s.toolTraverse(ctx, args)
	case "memory_decay_status":
		return s.toolDecayStatus(ctx, args)
	case "memory_preserve":
		return s.toolPreserve(ctx, args)
	case "memory_graph_analysis":
		return s.toolGraphAnalysis(ctx, args)
	default:
		return nil, errUnknownTool(name)
	}
}

// parseStoreRequest builds and validates a StoreRequest from raw tool
// arguments, shared by memory_store and memory_batch (each item there has
// the same shape). defaultUserContext backs batch items that omit it.
func (s *Server) parseStoreRequest(args map[string]any, defaultUserContext string) (*models.StoreRequest, error) {
	if args == nil {
		return nil, apperr.InvalidParamsf("content: required")
	}
	content, ok := args["content"]
	if !ok {
		return nil, apperr.InvalidParamsf("content: required")
	}
	if _, err := validate.Content(content, s.limits); err != nil {
		return nil, err
	}

	typ := models.MemoryType(argString(args, "type"))
	if !typ.IsUserStorable() {
		return nil, apperr.InvalidParamsf("type: must be one of the user-storable memory types")
	}

	source := argString(args, "source")
	if err := validate.Required("source", source); err != nil {
		return nil, err
	}

	confidence, err := validate.Float01("confidence", argFloat(args, "confidence"), 0.8)
	if err != nil {
		return nil, err
	}
	importance, err := validate.Float01("importance_score", argFloat(args, "importance_score"), 0.5)
	if err != nil {
		return nil, err
	}
	threshold, err := validate.Float01("similarity_threshold", argFloat(args, "similarity_threshold"), 0.7)
	if err != nil {
		return nil, err
	}
	tags, err := validate.Tags(argStringSlice(args, "tags"), s.limits)
	if err != nil {
		return nil, err
	}

	userContext := argString(args, "user_context")
	if userContext == "" {
		userContext = defaultUserContext
	}
	userContext, err = validate.UserContext(userContext, s.limits)
	if err != nil {
		return nil, err
	}

	return &models.StoreRequest{
		UserContext: userContext,
		Content:     content,
		Type:        typ,
		Source:      source,
		Confidence:  confidence,
		Tags:        tags,
		Importance:  importance,
		Threshold:   threshold,
		Async:       argBoolPtr(args, "async"),
	}, nil
}

func (s *Server) toolStore(ctx context.Context, args map[string]any) (any, error) {
	req, err := s.parseStoreRequest(args, "")
	if err != nil {
		return nil, err
	}
	return s.svc.Store(ctx, req)
}

func (s *Server) toolSearch(ctx context.Context, args map[string]any) (any, error) {
	query, err := validate.Query(argString(args, "query"), 1000)
	if err != nil {
		return nil, err
	}
	limit, err := validate.IntRange("limit", argInt(args, "limit"), 10, 1, 100)
	if err != nil {
		return nil, err
	}
	threshold, err := validate.FloatRange("threshold", argFloat(args, "threshold"), 0.7, 0, 1)
	if err != nil {
		return nil, err
	}
	tags, err := validate.Tags(argStringSlice(args, "tags"), s.limits)
	if err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	return s.svc.Search(ctx, &models.SearchRequest{
		UserContext: userContext,
		Query:       query,
		Limit:       limit,
		Threshold:   threshold,
		Types:       memoryTypes(argStringSlice(args, "types")),
		Tags:        tags,
	})
}

func (s *Server) toolList(ctx context.Context, args map[string]any) (any, error) {
	limit, err := validate.IntRange("limit", argInt(args, "limit"), 10, 1, 100)
	if err != nil {
		return nil, err
	}
	offset, err := validate.Offset(argInt(args, "offset"))
	if err != nil {
		return nil, err
	}
	tags, err := validate.Tags(argStringSlice(args, "tags"), s.limits)
	if err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	return s.svc.List(ctx, &models.ListRequest{
		UserContext: userContext,
		Limit:       limit,
		Offset:      offset,
		Types:       memoryTypes(argStringSlice(args, "types")),
		Tags:        tags,
	})
}

func (s *Server) toolUpdate(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "id")
	if err := validate.UUID("id", id); err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}

	req := &models.UpdateRequest{ID: id, UserContext: userContext}
	if hasKey(args, "tags") {
		tags, err := validate.Tags(argStringSlice(args, "tags"), s.limits)
		if err != nil {
			return nil, err
		}
		req.Tags = &tags
	}
	if hasKey(args, "confidence") {
		v := argFloat(args, "confidence")
		if err := validate.Range01("confidence", v); err != nil {
			return nil, err
		}
		req.Confidence = &v
	}
	if hasKey(args, "importance_score") {
		v := argFloat(args, "importance_score")
		if err := validate.Range01("importance_score", v); err != nil {
			return nil, err
		}
		req.ImportanceScore = &v
	}
	if hasKey(args, "type") {
		t := models.MemoryType(argString(args, "type"))
		if !t.IsValid() {
			return nil, apperr.InvalidParamsf("type: unrecognized memory type %q", t)
		}
		req.Type = &t
	}
	if hasKey(args, "source") {
		req.Source = argStringPtr(args, "source")
	}
	return s.svc.Update(ctx, req)
}

func (s *Server) toolDelete(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "id")
	hash := argString(args, "content_hash")
	if id == "" && hash == "" {
		return nil, apperr.InvalidParamsf("delete requires id or content_hash")
	}
	if id != "" {
		if err := validate.UUID("id", id); err != nil {
			return nil, err
		}
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	success, err := s.svc.Delete(ctx, &models.DeleteRequest{ID: id, ContentHash: hash, UserContext: userContext})
	if err != nil {
		return nil, err
	}
	return models.DeleteResponse{Success: success}, nil
}

func (s *Server) toolBatchStore(ctx context.Context, args map[string]any) (any, error) {
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	raw, ok := args["memories"].([]any)
	if !ok || len(raw) < 1 {
		return nil, apperr.InvalidParamsf("memories: at least 1 item required")
	}
	if len(raw) > 100 {
		return nil, apperr.InvalidParamsf("memories: at most 100 items allowed, got %d", len(raw))
	}

	resp := &models.BatchStoreResponse{}
	for i, item := range raw {
		itemArgs, _ := item.(map[string]any)
		req, verr := s.parseStoreRequest(itemArgs, userContext)
		if verr != nil {
			resp.Results = append(resp.Results, models.BatchStoreResult{Index: i, Error: verr.Error()})
			resp.Failed++
			continue
		}
		mem, err := s.svc.Store(ctx, req)
		if err != nil {
			resp.Results = append(resp.Results, models.BatchStoreResult{Index: i, Error: err.Error()})
			resp.Failed++
			continue
		}
		resp.Results = append(resp.Results, models.BatchStoreResult{Index: i, Memory: mem})
		resp.Stored++
	}
	return resp, nil
}

func (s *Server) toolBatchDelete(ctx context.Context, args map[string]any) (any, error) {
	ids := argStringSlice(args, "ids")
	if len(ids) == 0 {
		return nil, apperr.InvalidParamsf("ids: at least 1 required")
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	return s.svc.BatchDelete(ctx, &models.BatchDeleteRequest{IDs: ids, UserContext: userContext}), nil
}

func (s *Server) toolGraphSearch(ctx context.Context, args map[string]any) (any, error) {
	if hasKey(args, "start_memory_id") {
		return s.toolTraverse(ctx, args)
	}
	query, err := validate.Query(argString(args, "query"), 1000)
	if err != nil {
		return nil, err
	}
	limit, err := validate.IntRange("limit", argInt(args, "limit"), 10, 1, 100)
	if err != nil {
		return nil, err
	}
	threshold, err := validate.FloatRange("threshold", argFloat(args, "threshold"), 0.7, 0, 1)
	if err != nil {
		return nil, err
	}
	depth, err := validate.IntRange("depth", argInt(args, "depth"), 1, 1, 3)
	if err != nil {
		return nil, err
	}
	tags, err := validate.Tags(argStringSlice(args, "tags"), s.limits)
	if err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	return s.svc.GraphSearch(ctx, &models.GraphSearchRequest{
		UserContext: userContext,
		Query:       query,
		Limit:       limit,
		Threshold:   threshold,
		Depth:       depth,
		Types:       memoryTypes(argStringSlice(args, "types")),
		Tags:        tags,
	})
}

func (s *Server) toolConsolidate(ctx context.Context, args map[string]any) (any, error) {
	threshold, err := validate.FloatRange("threshold", argFloat(args, "threshold"), 0.8, 0.5, 0.95)
	if err != nil {
		return nil, err
	}
	minClusterSize, err := validate.IntRange("min_cluster_size", argInt(args, "min_cluster_size"), 3, 2, 10000)
	if err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	return s.svc.Consolidate(ctx, &models.ConsolidateRequest{
		UserContext:    userContext,
		Threshold:      threshold,
		MinClusterSize: minClusterSize,
	})
}

func (s *Server) toolStats(ctx context.Context, args map[string]any) (any, error) {
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	return s.svc.Stats(ctx, userContext)
}

func (s *Server) toolRelate(ctx context.Context, args map[string]any) (any, error) {
	from, to := argString(args, "from"), argString(args, "to")
	if err := validate.UUID("from", from); err != nil {
		return nil, err
	}
	if err := validate.UUID("to", to); err != nil {
		return nil, err
	}
	relType := argString(args, "relation_type")
	if err := validate.Required("relation_type", relType); err != nil {
		return nil, err
	}
	strength, err := validate.Float01("strength", argFloat(args, "strength"), 0.5)
	if err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	err = s.svc.CreateRelation(ctx, &models.RelateRequest{
		From:          from,
		To:            to,
		RelationType:  models.RelationType(relType),
		Strength:      strength,
		Bidirectional: argBool(args, "bidirectional"),
		UserContext:   userContext,
	})
	if err != nil {
		return nil, err
	}
	return okResponse{Success: true}, nil
}

func (s *Server) toolUnrelate(ctx context.Context, args map[string]any) (any, error) {
	from, to := argString(args, "from"), argString(args, "to")
	if err := validate.UUID("from", from); err != nil {
		return nil, err
	}
	if err := validate.UUID("to", to); err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	if err := s.svc.DeleteRelation(ctx, &models.UnrelateRequest{From: from, To: to, UserContext: userContext}); err != nil {
		return nil, err
	}
	return okResponse{Success: true}, nil
}

func (s *Server) toolGetRelations(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "memory_id")
	if err := validate.UUID("memory_id", id); err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	return s.svc.GetRelations(ctx, &models.GetRelationsRequest{MemoryID: id, UserContext: userContext})
}

func (s *Server) toolTraverse(ctx context.Context, args map[string]any) (any, error) {
	startID := argString(args, "start_memory_id")
	if err := validate.UUID("start_memory_id", startID); err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	if err := validate.Required("user_context", userContext); err != nil {
		return nil, err
	}
	maxDepth, err := validate.IntRange("max_depth", argInt(args, "max_depth"), graph.DefaultMaxDepth, 1, graph.HardMaxDepth)
	if err != nil {
		return nil, err
	}
	maxNodes, err := validate.IntRange("max_nodes", argInt(args, "max_nodes"), graph.DefaultMaxNodes, 1, graph.HardMaxNodes)
	if err != nil {
		return nil, err
	}
	timeoutMs, err := validate.IntRange("timeout_ms", argInt(args, "timeout_ms"), int(graph.DefaultTimeout/time.Millisecond), 1, 60000)
	if err != nil {
		return nil, err
	}
	tags, err := validate.Tags(argStringSlice(args, "tags"), s.limits)
	if err != nil {
		return nil, err
	}

	algorithm := argString(args, "algorithm")
	if algorithm != "" && algorithm != "bfs" && algorithm != "dfs" {
		return nil, apperr.InvalidParamsf("algorithm: must be bfs or dfs, got %q", algorithm)
	}

	result, err := s.traverser.Traverse(ctx, graph.Options{
		StartID:            startID,
		UserContext:         userContext,
		Algorithm:          algorithm,
		MaxDepth:           maxDepth,
		MaxNodes:           maxNodes,
		RelationTypes:      relationTypes(argStringSlice(args, "relation_types")),
		MemoryTypes:        memoryTypes(argStringSlice(args, "memory_types")),
		Tags:               tags,
		IncludeParentLinks: argBool(args, "include_parent_links"),
		Timeout:            time.Duration(timeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	nodes := make([]models.TraverseNode, len(result.Nodes))
	for i, n := range result.Nodes {
		nodes[i] = models.TraverseNode{
			Memory:             n.Memory,
			Depth:              n.Depth,
			Path:               n.Path,
			RelationFromParent: n.RelationFromParent,
		}
	}
	return models.TraverseResponse{Nodes: nodes, Truncated: result.Truncated}, nil
}

// ownedMemory fetches id and checks it belongs to userContext, used by the
// lifecycle tools (decay_status, preserve, graph_analysis) which operate on
// a single memory outside the Service facade.
func (s *Server) ownedMemory(ctx context.Context, id, userContext string) (*models.Memory, error) {
	mem, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mem.UserContext != userContext {
		return nil, apperr.NotFoundf("memory %q not found", id)
	}
	return mem, nil
}

func (s *Server) toolDecayStatus(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "memory_id")
	if err := validate.UUID("memory_id", id); err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	mem, err := s.ownedMemory(ctx, id, userContext)
	if err != nil {
		return nil, err
	}
	return models.DecayStatusResponse{
		MemoryID:   mem.ID,
		DecayScore: mem.DecayScore,
		State:      mem.State,
		Preserved:  lifecycle.IsPreserved(mem, s.lifecycle.PreservationTags()),
	}, nil
}

func (s *Server) toolPreserve(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "memory_id")
	if err := validate.UUID("memory_id", id); err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedMemory(ctx, id, userContext); err != nil {
		return nil, err
	}

	var until *time.Time
	if untilStr := argString(args, "until"); untilStr != "" {
		t, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			return nil, apperr.InvalidParamsf("until: not a valid ISO-8601 timestamp")
		}
		until = &t
	}

	mem, err := s.lifecycle.PreserveMemory(ctx, id, until)
	if err != nil {
		return nil, err
	}
	return models.PreserveResponse{MemoryID: mem.ID, DecayScore: mem.DecayScore, State: mem.State}, nil
}

func (s *Server) toolGraphAnalysis(ctx context.Context, args map[string]any) (any, error) {
	id := argString(args, "memory_id")
	if err := validate.UUID("memory_id", id); err != nil {
		return nil, err
	}
	userContext, err := validate.UserContext(argString(args, "user_context"), s.limits)
	if err != nil {
		return nil, err
	}
	if err := validate.Required("user_context", userContext); err != nil {
		return nil, err
	}
	if _, err := s.ownedMemory(ctx, id, userContext); err != nil {
		return nil, err
	}

	analysis, err := s.traverser.Analyze(ctx, id, userContext)
	if err != nil {
		return nil, err
	}
	return models.GraphAnalysisResponse{
		MemoryID:         analysis.MemoryID,
		InDegree:         analysis.InDegree,
		OutDegree:        analysis.OutDegree,
		TotalConnections: analysis.TotalConnections,
		RelationTypes:    analysis.RelationTypes,
	}, nil
}

// unknownToolError is distinct from the apperr taxonomy: it is a
// protocol-level condition (JSON-RPC MethodNotFound), not a category the
// engine itself would ever produce.
type unknownToolError struct{ name string }

func (e *unknownToolError) Error() string { return fmt.Sprintf("unknown tool: %s", e.name) }

func errUnknownTool(name string) error {
	return &unknownToolError{name: name}
}
