package models

import "time"

// RelateTo is an optional directed-relation hint attached to a store
// request; missing endpoints fail per-item without aborting the store.
type RelateTo struct {
	MemoryID     string       `json:"memory_id"`
	RelationType RelationType `json:"relation_type"`
	Strength     *float64     `json:"strength,omitempty"`
}

// StoreRequest is the payload for memory_store.
type StoreRequest struct {
	UserContext string         `json:"user_context"`
	Content     any            `json:"content"`
	Type        MemoryType     `json:"type"`
	Source      string         `json:"source"`
	Confidence  float64        `json:"confidence"`
	Tags        []string       `json:"tags"`
	Importance  float64        `json:"importance_score"`
	Threshold   float64        `json:"similarity_threshold"`
	DecayRate   float64        `json:"decay_rate"`
	ParentID    *string        `json:"parent_id,omitempty"`
	RelateTo    []RelateTo     `json:"relate_to,omitempty"`
	Async       *bool          `json:"async,omitempty"`
}

// SearchRequest is the payload for memory_search.
type SearchRequest struct {
	UserContext string       `json:"user_context"`
	Query       string       `json:"query"`
	Limit       int          `json:"limit"`
	Threshold   float64      `json:"threshold"`
	Types       []MemoryType `json:"types,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// SearchResponse wraps scored results.
type SearchResponse struct {
	Results []*Memory `json:"results"`
}

// ListRequest is the payload for memory_list.
type ListRequest struct {
	UserContext string       `json:"user_context"`
	Limit       int          `json:"limit"`
	Offset      int          `json:"offset"`
	Types       []MemoryType `json:"types,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// ListResponse is returned from memory_list.
type ListResponse struct {
	Memories []*Memory `json:"memories"`
	Total    int       `json:"total"`
}

// UpdateRequest is the payload for memory_update. Only whitelisted fields
// are applied; nil pointers leave the corresponding column untouched.
type UpdateRequest struct {
	ID                 string      `json:"id"`
	UserContext         string      `json:"user_context"`
	Tags                *[]string   `json:"tags,omitempty"`
	Confidence          *float64    `json:"confidence,omitempty"`
	ImportanceScore     *float64    `json:"importance_score,omitempty"`
	Type                *MemoryType `json:"type,omitempty"`
	Source              *string     `json:"source,omitempty"`
	PreserveTimestamps  bool        `json:"preserve_timestamps,omitempty"`
}

// DeleteRequest is the payload for memory_delete.
type DeleteRequest struct {
	ID          string `json:"id,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	UserContext string `json:"user_context"`
}

// DeleteResponse reports whether the delete actually changed anything.
type DeleteResponse struct {
	Success bool `json:"success"`
}

// BatchStoreRequest is the payload for memory_batch.
type BatchStoreRequest struct {
	UserContext string          `json:"user_context"`
	Memories    []StoreRequest  `json:"memories"`
}

// BatchStoreResult is one item's outcome within a batch store.
type BatchStoreResult struct {
	Index   int    `json:"index"`
	Memory  *Memory `json:"memory,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchStoreResponse partitions success/failure without aborting the batch.
type BatchStoreResponse struct {
	Results []BatchStoreResult `json:"results"`
	Stored  int                `json:"stored"`
	Failed  int                `json:"failed"`
}

// BatchDeleteRequest is the payload for memory_batch_delete.
type BatchDeleteRequest struct {
	IDs         []string `json:"ids"`
	UserContext string   `json:"user_context"`
}

// BatchDeleteResponse reports per-id success.
type BatchDeleteResponse struct {
	Deleted int      `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// GraphSearchRequest is the payload for memory_graph_search. A
// memory_graph_search call that carries start_memory_id is handled as
// memory_traverse instead.
type GraphSearchRequest struct {
	UserContext string       `json:"user_context"`
	Query       string       `json:"query"`
	Limit       int          `json:"limit"`
	Threshold   float64      `json:"threshold"`
	Depth       int          `json:"depth"`
	Types       []MemoryType `json:"types,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// GraphSearchResponse carries seed + expanded memories, each annotated with
// metadata.relationships.
type GraphSearchResponse struct {
	Results []*Memory `json:"results"`
}

// ConsolidateRequest is the payload for memory_consolidate.
type ConsolidateRequest struct {
	UserContext    string  `json:"user_context"`
	Threshold      float64 `json:"threshold"`
	MinClusterSize int     `json:"min_cluster_size"`
}

// ConsolidateResponse reports clustering outcome. See DESIGN.md for the
// "archived" semantics decision: memoriesArchived counts cluster-assigned
// memories, not state-transitioned ones.
type ConsolidateResponse struct {
	ClustersCreated   int `json:"clusters_created"`
	MemoriesArchived  int `json:"memories_archived"`
	NoiseCount        int `json:"noise_count"`
}

// StatsResponse is returned from memory_stats and GET /stats.
type StatsResponse struct {
	UserContext   string         `json:"user_context"`
	Total         int            `json:"total"`
	ByType        map[string]int `json:"by_type"`
	ByState       map[string]int `json:"by_state"`
	Compressed    int            `json:"compressed"`
	AvgDecayScore float64        `json:"avg_decay_score"`
}

// RelateRequest is the payload for memory_relate.
type RelateRequest struct {
	From         string       `json:"from"`
	To           string       `json:"to"`
	RelationType RelationType `json:"relation_type"`
	Strength     float64      `json:"strength"`
	Bidirectional bool        `json:"bidirectional,omitempty"`
	UserContext  string       `json:"user_context"`
}

// UnrelateRequest is the payload for memory_unrelate.
type UnrelateRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	UserContext string `json:"user_context"`
}

// GetRelationsRequest is the payload for memory_get_relations.
type GetRelationsRequest struct {
	MemoryID    string `json:"memory_id"`
	UserContext string `json:"user_context"`
}

// GetRelationsResponse lists relations touching a memory in either direction.
type GetRelationsResponse struct {
	Outgoing []*MemoryRelation `json:"outgoing"`
	Incoming []*MemoryRelation `json:"incoming"`
}

// TraverseRequest is the payload for memory_traverse.
type TraverseRequest struct {
	StartMemoryID      string       `json:"start_memory_id"`
	UserContext        string       `json:"user_context"`
	Algorithm          string       `json:"algorithm"`
	MaxDepth           int          `json:"max_depth"`
	MaxNodes           int          `json:"max_nodes"`
	RelationTypes      []RelationType `json:"relation_types,omitempty"`
	MemoryTypes        []MemoryType `json:"memory_types,omitempty"`
	Tags               []string     `json:"tags,omitempty"`
	IncludeParentLinks bool         `json:"include_parent_links,omitempty"`
	TimeoutMs          int          `json:"timeout_ms"`
}

// TraverseNode is one entry of a traversal result.
type TraverseNode struct {
	Memory               *Memory      `json:"memory"`
	Depth                int          `json:"depth"`
	Path                 []string     `json:"path"`
	RelationFromParent   RelationType `json:"relation_from_parent,omitempty"`
}

// TraverseResponse is the result of memory_traverse / memory_graph_search alias.
type TraverseResponse struct {
	Nodes     []TraverseNode `json:"nodes"`
	Truncated bool           `json:"truncated"`
}

// DecayStatusRequest is the payload for memory_decay_status.
type DecayStatusRequest struct {
	MemoryID    string `json:"memory_id"`
	UserContext string `json:"user_context"`
}

// DecayStatusResponse reports current decay state without mutating it.
type DecayStatusResponse struct {
	MemoryID   string      `json:"memory_id"`
	DecayScore float64     `json:"decay_score"`
	State      MemoryState `json:"state"`
	Preserved  bool        `json:"preserved"`
}

// PreserveRequest is the payload for memory_preserve.
type PreserveRequest struct {
	MemoryID    string     `json:"memory_id"`
	UserContext string     `json:"user_context"`
	Until       *time.Time `json:"until,omitempty"`
}

// PreserveResponse confirms the new preserved state.
type PreserveResponse struct {
	MemoryID   string      `json:"memory_id"`
	DecayScore float64     `json:"decay_score"`
	State      MemoryState `json:"state"`
}

// GraphAnalysisRequest is the payload for memory_graph_analysis.
type GraphAnalysisRequest struct {
	MemoryID    string `json:"memory_id"`
	UserContext string `json:"user_context"`
}

// GraphAnalysisResponse reports degree and relation-type histogram.
type GraphAnalysisResponse struct {
	MemoryID         string         `json:"memory_id"`
	InDegree         int            `json:"in_degree"`
	OutDegree        int            `json:"out_degree"`
	TotalConnections int            `json:"total_connections"`
	RelationTypes    map[string]int `json:"relation_types"`
}

// TypesResponse is returned from GET /types.
type TypesResponse struct {
	Types []string `json:"types"`
}

// TagsResponse is returned from GET /tags.
type TagsResponse struct {
	Tags map[string]int `json:"tags"`
}

// RelationshipsResponse is returned from GET /relationships.
type RelationshipsResponse struct {
	Relations []*MemoryRelation `json:"relations"`
}

// ClustersResponse is returned from GET /clusters.
type ClustersResponse struct {
	Clusters []*Cluster `json:"clusters"`
}

// HealthResponse is returned from GET /healthz.
type HealthResponse struct {
	Status         string       `json:"status"`
	Store          ServiceCheck `json:"store"`
	Cache          ServiceCheck `json:"cache"`
	RemoteAvailable bool        `json:"remote_available"`
	Queue          ServiceCheck `json:"queue"`
}

// ServiceCheck reports the health of a dependency.
type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
