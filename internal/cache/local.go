package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Local is the in-process cache tier, backed by ristretto for
// high-throughput admission/eviction. ristretto has no key-enumeration API,
// so a namespace index is maintained alongside it to support ClearNamespace.
type Local struct {
	store *ristretto.Cache

	mu    sync.Mutex
	index map[Namespace]map[string]struct{}
}

func NewLocal() (*Local, error) {
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e7,
		MaxCost:     1 << 28, // 256MB
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Local{
		store: store,
		index: make(map[Namespace]map[string]struct{}),
	}, nil
}

func (l *Local) Get(_ context.Context, ns Namespace, identifier string, dest any) (bool, error) {
	v, ok := l.store.Get(Key(ns, identifier))
	if !ok {
		return false, nil
	}
	raw, ok := v.([]byte)
	if !ok {
		return false, nil
	}
	if err := unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Local) Set(_ context.Context, ns Namespace, identifier string, value any, ttl time.Duration) error {
	raw, err := marshal(value)
	if err != nil {
		return err
	}
	key := Key(ns, identifier)
	l.store.SetWithTTL(key, raw, int64(len(raw)), ttl)

	l.mu.Lock()
	if l.index[ns] == nil {
		l.index[ns] = make(map[string]struct{})
	}
	l.index[ns][key] = struct{}{}
	l.mu.Unlock()
	return nil
}

func (l *Local) Delete(_ context.Context, ns Namespace, identifier string) error {
	key := Key(ns, identifier)
	l.store.Del(key)
	l.mu.Lock()
	delete(l.index[ns], key)
	l.mu.Unlock()
	return nil
}

func (l *Local) ClearNamespace(_ context.Context, ns Namespace) error {
	l.mu.Lock()
	keys := l.index[ns]
	l.index[ns] = make(map[string]struct{})
	l.mu.Unlock()

	for key := range keys {
		l.store.Del(key)
	}
	return nil
}

func (l *Local) RemoteAvailable() bool { return false }
