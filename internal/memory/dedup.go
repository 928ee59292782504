package memory

import (
	"context"

	"github.com/memsvc/memory/internal/models"
	"github.com/memsvc/memory/internal/store"
)

// Deduplicator checks whether a memory is an exact duplicate of an existing
// one. Unlike the near-duplicate cosine banding this package is grounded
// on, duplication here is strictly (user_context, content_hash) equality —
// see DESIGN.md for why the banding was dropped.
type Deduplicator struct {
	memoryStore *store.MemoryStore
}

func NewDeduplicator(memoryStore *store.MemoryStore) *Deduplicator {
	return &Deduplicator{memoryStore: memoryStore}
}

// CheckDuplicate returns the existing memory sharing (userContext, hash), or
// nil if none exists.
func (d *Deduplicator) CheckDuplicate(ctx context.Context, userContext, hash string) (*models.Memory, error) {
	return d.memoryStore.FindByHash(ctx, userContext, hash)
}
