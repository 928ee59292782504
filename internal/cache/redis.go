package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Remote is the distributed cache tier, backed by Redis.
type Remote struct {
	client *redis.Client
}

func NewRemote(url string) (*Remote, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Remote{client: redis.NewClient(opts)}, nil
}

func (r *Remote) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Remote) Close() error {
	return r.client.Close()
}

func (r *Remote) Get(ctx context.Context, ns Namespace, identifier string, dest any) (bool, error) {
	raw, err := r.client.Get(ctx, Key(ns, identifier)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Remote) Set(ctx context.Context, ns Namespace, identifier string, value any, ttl time.Duration) error {
	raw, err := marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, Key(ns, identifier), raw, ttl).Err()
}

func (r *Remote) Delete(ctx context.Context, ns Namespace, identifier string) error {
	return r.client.Del(ctx, Key(ns, identifier)).Err()
}

func (r *Remote) ClearNamespace(ctx context.Context, ns Namespace) error {
	pattern := namespacePrefix(ns) + "*"
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (r *Remote) RemoteAvailable() bool { return true }
