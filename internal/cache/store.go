package cache

import (
	"context"
	"time"
)

// Store is the cache abstraction shared by middleware and services.
// The session registry relies on the set commands for its per-subject index;
// every implementation must treat missing keys as empty, not as errors.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	SetAdd(ctx context.Context, key, member string, ttl time.Duration) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetRemove(ctx context.Context, key string, members ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
}
