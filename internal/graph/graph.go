// Package graph implements bounded graph traversal and analysis over the
// relational store (C9) — no graph database, per the Non-goals.
package graph

import (
	"container/list"
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/memsvc/memory/internal/models"
	"github.com/memsvc/memory/internal/store"
)

const (
	DefaultMaxDepth = 3
	HardMaxDepth    = 5
	DefaultMaxNodes = 100
	HardMaxNodes    = 1000
	DefaultTimeout  = 5 * time.Second
)

// Options configures a traversal; zero values are filled with defaults.
type Options struct {
	StartID            string
	UserContext         string
	Algorithm          string // "bfs" or "dfs"
	MaxDepth           int
	MaxNodes           int
	RelationTypes      []models.RelationType
	MemoryTypes        []models.MemoryType
	Tags               []string
	IncludeParentLinks bool
	Timeout            time.Duration
}

func (o *Options) applyDefaults() {
	if o.Algorithm == "" {
		o.Algorithm = "bfs"
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxDepth > HardMaxDepth {
		o.MaxDepth = HardMaxDepth
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.MaxNodes > HardMaxNodes {
		o.MaxNodes = HardMaxNodes
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
}

// Node is one result of a traversal.
type Node struct {
	Memory             *models.Memory
	Depth              int
	Path               []string
	RelationFromParent models.RelationType
}

// Result is a completed traversal.
type Result struct {
	Nodes     []Node
	Truncated bool
}

type workItem struct {
	id       string
	depth    int
	path     []string
	relation models.RelationType
}

// Traverser runs bounded BFS/DFS over memories and relations, rate-limited
// per user context.
type Traverser struct {
	memories  *store.MemoryStore
	relations *store.RelationStore

	limiters   map[string]*rate.Limiter
	newLimiter func() *rate.Limiter
}

func NewTraverser(memories *store.MemoryStore, relations *store.RelationStore) *Traverser {
	return &Traverser{
		memories:  memories,
		relations: relations,
		limiters:  map[string]*rate.Limiter{},
		newLimiter: func() *rate.Limiter {
			return rate.NewLimiter(rate.Limit(20), 20)
		},
	}
}

func (t *Traverser) limiterFor(userContext string) *rate.Limiter {
	if l, ok := t.limiters[userContext]; ok {
		return l
	}
	l := t.newLimiter()
	t.limiters[userContext] = l
	return l
}

// Traverse runs the bounded traversal described in §4.9. Missing start
// memories or cross-context access yield an empty result, not an error.
func (t *Traverser) Traverse(ctx context.Context, opts Options) (Result, error) {
	opts.applyDefaults()

	deadline := time.Now().Add(opts.Timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	limiter := t.limiterFor(opts.UserContext)

	queue := list.New()
	queue.PushBack(workItem{id: opts.StartID, depth: 0, path: nil})
	visited := map[string]bool{}

	var result Result

	for queue.Len() > 0 {
		if time.Now().After(deadline) {
			result.Truncated = true
			break
		}
		if len(result.Nodes) >= opts.MaxNodes {
			result.Truncated = true
			break
		}

		var item workItem
		if opts.Algorithm == "dfs" {
			back := queue.Back()
			item = back.Value.(workItem)
			queue.Remove(back)
		} else {
			front := queue.Front()
			item = front.Value.(workItem)
			queue.Remove(front)
		}

		if visited[item.id] || item.depth > opts.MaxDepth {
			continue
		}
		visited[item.id] = true

		if err := limiter.Wait(ctx); err != nil {
			result.Truncated = true
			break
		}

		mem, err := t.memories.GetByID(ctx, item.id)
		if err != nil {
			continue
		}
		if mem.UserContext != opts.UserContext {
			continue
		}
		if !matchesFilters(mem, opts) {
			continue
		}

		path := append(append([]string{}, item.path...), item.id)
		result.Nodes = append(result.Nodes, Node{
			Memory:             mem,
			Depth:              item.depth,
			Path:               path,
			RelationFromParent: item.relation,
		})

		if item.depth >= opts.MaxDepth {
			continue
		}

		for _, n := range t.expand(ctx, mem, opts) {
			if !visited[n.id] {
				n.path = path
				n.depth = item.depth + 1
				queue.PushBack(n)
			}
		}
	}

	return result, nil
}

func matchesFilters(mem *models.Memory, opts Options) bool {
	if len(opts.MemoryTypes) > 0 {
		found := false
		for _, t := range opts.MemoryTypes {
			if mem.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(opts.Tags) > 0 {
		found := false
		for _, want := range opts.Tags {
			for _, have := range mem.Tags {
				if want == have {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (t *Traverser) expand(ctx context.Context, mem *models.Memory, opts Options) []workItem {
	var out []workItem

	outgoing, _ := t.relations.Outgoing(ctx, mem.ID, nil)
	for _, r := range outgoing {
		if relationAllowed(r.RelationType, opts.RelationTypes) {
			out = append(out, workItem{id: r.ToMemoryID, relation: r.RelationType})
		}
	}

	incoming, _ := t.relations.Incoming(ctx, mem.ID, nil)
	for _, r := range incoming {
		if relationAllowed(r.RelationType, opts.RelationTypes) {
			out = append(out, workItem{id: r.FromMemoryID, relation: r.RelationType})
		}
	}

	if opts.IncludeParentLinks {
		if mem.ParentID != nil {
			out = append(out, workItem{id: *mem.ParentID, relation: "child_of"})
		}
		children, _ := t.memories.ChildrenOf(ctx, mem.ID, opts.UserContext)
		for _, c := range children {
			out = append(out, workItem{id: c.ID, relation: "parent_of"})
		}
	}

	return out
}

func relationAllowed(t models.RelationType, allowed []models.RelationType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// Analysis is graphAnalysis's result.
type Analysis struct {
	MemoryID         string
	InDegree         int
	OutDegree        int
	TotalConnections int
	RelationTypes    map[string]int
}

// Analyze computes degree and relation-type histogram for id, counting only
// edges whose other endpoint is also active in userContext.
func (t *Traverser) Analyze(ctx context.Context, id, userContext string) (Analysis, error) {
	outgoing, err := t.relations.OutgoingInContext(ctx, id, userContext, nil)
	if err != nil {
		return Analysis{}, err
	}
	incoming, err := t.relations.IncomingInContext(ctx, id, userContext, nil)
	if err != nil {
		return Analysis{}, err
	}

	histogram := map[string]int{}
	for _, r := range outgoing {
		histogram[string(r.RelationType)]++
	}
	for _, r := range incoming {
		histogram[string(r.RelationType)]++
	}

	return Analysis{
		MemoryID:         id,
		InDegree:         len(incoming),
		OutDegree:        len(outgoing),
		TotalConnections: len(outgoing) + len(incoming),
		RelationTypes:    histogram,
	}, nil
}

// TopConnectors returns the limit most-connected memories in a user context
// as a map of memory ID to edge count. The map carries no order, so the
// ranking by edge count is not part of the result.
func (t *Traverser) TopConnectors(ctx context.Context, userContext string, limit int) (map[string]int, error) {
	if limit <= 0 {
		limit = 10
	}
	return t.relations.DegreeCounts(ctx, userContext, limit)
}
