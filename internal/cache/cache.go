// Package cache implements the two-tier cache (C2): a remote distributed
// tier (Redis) preferred when configured, backed by a local in-process
// tier (ristretto) that serves as fallback and mirror. Keys are namespaced
// "mcp:<namespace>:<identifier>"; writes go to both tiers, reads try remote
// first then local.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

const keyPrefix = "mcp:"

// Namespace groups cache keys for bulk invalidation.
type Namespace string

const (
	NamespaceEmbeddings Namespace = "embeddings"
	NamespaceSearch     Namespace = "search"
	NamespaceMemory     Namespace = "memory"
)

// Cache is the two-tier cache seam (§9: "model as a single interface with a
// composite implementation"). Implementations must degrade silently when
// the remote tier is unavailable.
type Cache interface {
	Get(ctx context.Context, ns Namespace, identifier string, dest any) (bool, error)
	Set(ctx context.Context, ns Namespace, identifier string, value any, ttl time.Duration) error
	Delete(ctx context.Context, ns Namespace, identifier string) error
	ClearNamespace(ctx context.Context, ns Namespace) error
	RemoteAvailable() bool
}

// Key builds the namespaced cache key for a given identifier.
func Key(ns Namespace, identifier string) string {
	return keyPrefix + string(ns) + ":" + identifier
}

// HashIdentifier truncates the SHA-256 hex digest of s to 32 chars, used for
// embeddings and search identifiers per §4.2.
func HashIdentifier(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:32]
}

// InvalidateMemory removes the memory entry for id and clears the entire
// search namespace, since search results may embed the changed memory.
func InvalidateMemory(ctx context.Context, c Cache, id string) error {
	if err := c.Delete(ctx, NamespaceMemory, id); err != nil {
		return err
	}
	return c.ClearNamespace(ctx, NamespaceSearch)
}

func marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// namespacePrefix returns the scan pattern used to clear a namespace.
func namespacePrefix(ns Namespace) string {
	return keyPrefix + string(ns) + ":"
}

// stripPrefix returns key without prefix and whether key had that prefix.
// Nothing in the package calls it at present.
func stripPrefix(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return key[len(prefix):], true
}
