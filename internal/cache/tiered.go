package cache

import (
	"context"
	"log/slog"
	"time"
)

// Tiered composes a Remote cache (preferred) with a Local cache (fallback
// and mirror). Writes always go to both tiers; reads try remote first, then
// local. Remote errors degrade silently to local-only operation, logged at
// warn level only on the healthy-to-degraded transition so operators can see
// the degradation without it being noisy.
type Tiered struct {
	remote *Remote
	local  *Local
	logger *slog.Logger

	remoteHealthy bool
}

func NewTiered(remote *Remote, local *Local, logger *slog.Logger) *Tiered {
	return &Tiered{remote: remote, local: local, logger: logger, remoteHealthy: remote != nil}
}

func (t *Tiered) Get(ctx context.Context, ns Namespace, identifier string, dest any) (bool, error) {
	if t.remote != nil {
		ok, err := t.remote.Get(ctx, ns, identifier, dest)
		if err != nil {
			t.degradeRemote(err)
		} else if ok {
			return true, nil
		}
	}
	return t.local.Get(ctx, ns, identifier, dest)
}

func (t *Tiered) Set(ctx context.Context, ns Namespace, identifier string, value any, ttl time.Duration) error {
	var firstErr error
	if t.remote != nil {
		if err := t.remote.Set(ctx, ns, identifier, value, ttl); err != nil {
			t.degradeRemote(err)
			firstErr = err
		}
	}
	if err := t.local.Set(ctx, ns, identifier, value, ttl); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (t *Tiered) Delete(ctx context.Context, ns Namespace, identifier string) error {
	if t.remote != nil {
		if err := t.remote.Delete(ctx, ns, identifier); err != nil {
			t.degradeRemote(err)
		}
	}
	return t.local.Delete(ctx, ns, identifier)
}

func (t *Tiered) ClearNamespace(ctx context.Context, ns Namespace) error {
	if t.remote != nil {
		if err := t.remote.ClearNamespace(ctx, ns); err != nil {
			t.degradeRemote(err)
		}
	}
	return t.local.ClearNamespace(ctx, ns)
}

func (t *Tiered) RemoteAvailable() bool {
	return t.remote != nil && t.remoteHealthy
}

func (t *Tiered) degradeRemote(err error) {
	if t.remoteHealthy && t.logger != nil {
		t.logger.Warn("remote cache unavailable, degrading to local tier", "error", err)
	}
	t.remoteHealthy = false
}

// Probe re-checks remote availability; call periodically so a transient
// Redis outage doesn't permanently disable the remote tier for the process
// lifetime.
func (t *Tiered) Probe(ctx context.Context) {
	if t.remote == nil {
		return
	}
	if err := t.remote.Ping(ctx); err != nil {
		t.degradeRemote(err)
		return
	}
	t.remoteHealthy = true
}
