package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/memsvc/memory/internal/apperr"
	"github.com/memsvc/memory/internal/cache"
)

// Backend is the seam a concrete model client implements — §9's
// "capability: {embed(text)->vec, dim()->int}".
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider is the embedding provider (C3): single-load model lifecycle
// (dimension established from the first probe embedding), cache-backed
// memoization under the "embeddings" namespace, and order-preserving batch
// embedding.
type Provider struct {
	backend Backend
	cache   cache.Cache

	mu  sync.Mutex
	dim int
}

// NewProvider wraps backend with cache-backed memoization. dim, when > 0,
// is trusted as the deployment's fixed dimension without a probe call;
// pass 0 to establish it lazily from the first real embed call.
func NewProvider(backend Backend, c cache.Cache, dim int) *Provider {
	return &Provider{backend: backend, cache: c, dim: dim}
}

// Dim returns the established dimension: the one passed to NewProvider if
// it was > 0, otherwise the length of the first generated embedding, or 0
// while neither is known.
func (p *Provider) Dim() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dim
}

// Embed returns the embedding for text, using the cache when available and
// enforcing the fixed-dimension invariant across calls.
func (p *Provider) Embed(ctx context.Context, text string, cacheTTLSeconds int64) ([]float32, error) {
	hash := ContentHash(text)

	if p.cache != nil {
		var cached []float32
		ok, err := p.cache.Get(ctx, cache.NamespaceEmbeddings, hash, &cached)
		if err == nil && ok {
			return cached, nil
		}
	}

	vec, err := p.backend.Embed(ctx, text)
	if err != nil {
		return nil, apperr.Transientf(err, "embed text")
	}

	if err := p.checkDimension(len(vec)); err != nil {
		return nil, err
	}

	if p.cache != nil {
		_ = p.cache.Set(ctx, cache.NamespaceEmbeddings, hash, vec, secondsToDuration(cacheTTLSeconds))
	}
	return vec, nil
}

// EmbedBatch returns vectors in input order, pulling cached entries and
// generating only the misses.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string, cacheTTLSeconds int64) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text, cacheTTLSeconds)
		if err != nil {
			return nil, fmt.Errorf("batch embed item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *Provider) checkDimension(d int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dim == 0 {
		p.dim = d
		return nil
	}
	if p.dim != d {
		return apperr.Conflictf("dimension mismatch: expected %d, got %d", p.dim, d)
	}
	return nil
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}
