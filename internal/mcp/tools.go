package mcp

// ToolDefinitions returns the MCP tool catalog for the memory service (C13).
func ToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "memory_store",
			Description: "Store a new memory, deduplicating on content hash and enqueuing embedding asynchronously by default.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_context":         {Type: "string", Description: "Scope the memory belongs to"},
					"content":              {Type: "string", Description: "Memory content (any JSON value is accepted)"},
					"type":                 {Type: "string", Description: "Memory type", Enum: []string{"fact", "conversation", "decision", "insight", "error", "context", "preference", "task"}},
					"source":               {Type: "string", Description: "Where this memory came from"},
					"confidence":           {Type: "number", Description: "Confidence in [0,1], default 0.8", Default: 0.8},
					"tags":                 {Type: "array", Description: "Up to 20 tags of up to 50 chars", Items: &Items{Type: "string"}},
					"importance_score":     {Type: "number", Description: "Importance in [0,1], default 0.5", Default: 0.5},
					"similarity_threshold": {Type: "number", Description: "Dedup similarity threshold, default 0.7", Default: 0.7},
					"async":                {Type: "boolean", Description: "Override async embedding for this call"},
				},
				Required: []string{"content", "type", "source"},
			},
		},
		{
			Name:        "memory_search",
			Description: "Semantic search over memories by cosine similarity.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_context": {Type: "string"},
					"query":        {Type: "string", Description: "Free-text query, up to 1000 chars"},
					"limit":        {Type: "number", Description: "1-100, default 10", Default: 10},
					"threshold":    {Type: "number", Description: "Minimum similarity, default 0.7", Default: 0.7},
					"types":        {Type: "array", Items: &Items{Type: "string"}},
					"tags":         {Type: "array", Items: &Items{Type: "string"}},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "memory_list",
			Description: "List memories in a user context, newest first, with optional type/tag filters.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_context": {Type: "string"},
					"limit":        {Type: "number", Description: "1-100, default 10", Default: 10},
					"offset":       {Type: "number", Description: ">= 0, default 0"},
					"types":        {Type: "array", Items: &Items{Type: "string"}},
					"tags":         {Type: "array", Items: &Items{Type: "string"}},
				},
			},
		},
		{
			Name:        "memory_update",
			Description: "Update a memory's whitelisted fields (tags, confidence, importance_score, type, source).",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":               {Type: "string", Description: "Memory uuid"},
					"user_context":     {Type: "string"},
					"tags":             {Type: "array", Items: &Items{Type: "string"}},
					"confidence":       {Type: "number"},
					"importance_score": {Type: "number"},
					"type":             {Type: "string"},
					"source":           {Type: "string"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "memory_delete",
			Description: "Soft-delete a memory by id or content_hash. A second call on the same target is a no-op.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"id":           {Type: "string"},
					"content_hash": {Type: "string"},
					"user_context": {Type: "string"},
				},
			},
		},
		{
			Name:        "memory_batch",
			Description: "Store up to 100 memories in one call; each item fails independently.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_context": {Type: "string"},
					"memories":     {Type: "array", Description: "1-100 memory_store payloads", Items: &Items{Type: "object"}},
				},
				Required: []string{"memories"},
			},
		},
		{
			Name:        "memory_batch_delete",
			Description: "Soft-delete multiple memories by id; each id fails independently.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"ids":          {Type: "array", Items: &Items{Type: "string"}},
					"user_context": {Type: "string"},
				},
				Required: []string{"ids"},
			},
		},
		{
			Name:        "memory_graph_search",
			Description: "Semantic search expanded outward along relation edges; accepted as an alias of memory_traverse for backward compatibility.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_context": {Type: "string"},
					"query":        {Type: "string"},
					"limit":        {Type: "number", Default: 10},
					"threshold":    {Type: "number", Default: 0.7},
					"depth":        {Type: "number", Description: "1-3, default 1", Default: 1},
					"types":        {Type: "array", Items: &Items{Type: "string"}},
					"tags":         {Type: "array", Items: &Items{Type: "string"}},
				},
			},
		},
		{
			Name:        "memory_consolidate",
			Description: "Cluster similar memories by embedding distance (DBSCAN) and mark them as a cluster.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_context":     {Type: "string"},
					"threshold":        {Type: "number", Description: "0.5-0.95, default 0.8", Default: 0.8},
					"min_cluster_size": {Type: "number", Description: ">= 2, default 3", Default: 3},
				},
			},
		},
		{
			Name:        "memory_stats",
			Description: "Aggregate counts by type/state, compression count, and average decay score for a user context.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"user_context": {Type: "string"}},
			},
		},
		{
			Name:        "memory_relate",
			Description: "Create or strengthen a directed, typed, weighted relation between two memories.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"from":          {Type: "string"},
					"to":            {Type: "string"},
					"relation_type": {Type: "string"},
					"strength":      {Type: "number", Description: "0-1, default 0.5", Default: 0.5},
					"bidirectional": {Type: "boolean"},
					"user_context":  {Type: "string"},
				},
				Required: []string{"from", "to", "relation_type"},
			},
		},
		{
			Name:        "memory_unrelate",
			Description: "Delete the directed relation between two memories.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"from":         {Type: "string"},
					"to":           {Type: "string"},
					"user_context": {Type: "string"},
				},
				Required: []string{"from", "to"},
			},
		},
		{
			Name:        "memory_get_relations",
			Description: "List every relation edge touching a memory, in either direction.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"memory_id":    {Type: "string"},
					"user_context": {Type: "string"},
				},
				Required: []string{"memory_id"},
			},
		},
		{
			Name:        "memory_traverse",
			Description: "Bounded BFS/DFS over the relation graph starting from a memory, with depth/node/timeout caps.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"start_memory_id":      {Type: "string"},
					"user_context":         {Type: "string"},
					"algorithm":            {Type: "string", Enum: []string{"bfs", "dfs"}, Default: "bfs"},
					"max_depth":            {Type: "number", Description: "<= 5, default 3", Default: 3},
					"max_nodes":            {Type: "number", Description: "<= 1000, default 100", Default: 100},
					"relation_types":       {Type: "array", Items: &Items{Type: "string"}},
					"memory_types":         {Type: "array", Items: &Items{Type: "string"}},
					"tags":                 {Type: "array", Items: &Items{Type: "string"}},
					"include_parent_links": {Type: "boolean"},
					"timeout_ms":           {Type: "number", Default: 5000},
				},
				Required: []string{"start_memory_id", "user_context"},
			},
		},
		{
			Name:        "memory_decay_status",
			Description: "Report a memory's current decay score, lifecycle state, and preservation status without mutating it.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"memory_id":    {Type: "string"},
					"user_context": {Type: "string"},
				},
				Required: []string{"memory_id"},
			},
		},
		{
			Name:        "memory_preserve",
			Description: "Pin a memory at decay_score=1.0/state=active, optionally until an ISO-8601 timestamp.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"memory_id":    {Type: "string"},
					"user_context": {Type: "string"},
					"until":        {Type: "string", Description: "ISO-8601 timestamp"},
				},
				Required: []string{"memory_id"},
			},
		},
		{
			Name:        "memory_graph_analysis",
			Description: "Report a memory's in/out degree and relation-type histogram.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"memory_id":    {Type: "string"},
					"user_context": {Type: "string"},
				},
				Required: []string{"memory_id", "user_context"},
			},
		},
	}
}
