package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 5 * time.Second
const redisKeyPrefix = "classpad:"

// RedisConfig captures the connection parameters for the Redis-backed store.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

// RedisStore implements Store on top of a Redis server. All keys are
// namespaced under a fixed prefix so the instance can be shared.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedisStore creates a Redis-backed store. The connection is verified
// eagerly so that misconfiguration is surfaced during application startup.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	store := &RedisStore{client: redis.NewClient(opts), cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := store.client.Ping(ctx).Err(); err != nil {
		_ = store.client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return store, nil
}

// Close closes the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Ping(ctx).Err()
}

// IncrementWithTTL increments the supplied key and ensures the TTL is set to
// the requested window. It returns the current count and the remaining
// time-to-live.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	prefixedKey := prefixed(key)

	count, err := s.client.Incr(ctx, prefixedKey).Result()
	if err != nil {
		return 0, 0, err
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, prefixedKey, window).Err(); err != nil {
			return 0, 0, err
		}
	}

	ttl, err := s.client.PTTL(ctx, prefixedKey).Result()
	if err != nil || ttl < 0 {
		return count, window, nil
	}
	return count, ttl, nil
}

// Set stores a value with expiry semantics.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Set(ctx, prefixed(key), value, ttl).Err()
}

// Get returns the value stored at key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	value, err := s.client.Get(ctx, prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete drops the given keys; missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	prefixedKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixedKeys = append(prefixedKeys, prefixed(key))
	}
	return s.client.Del(ctx, prefixedKeys...).Err()
}

// SetAdd adds a member to the set at key and refreshes the set's expiry.
func (s *RedisStore) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, prefixed(key), member)
	if ttl > 0 {
		pipe.Expire(ctx, prefixed(key), ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SetMembers returns every member of the set at key.
func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.SMembers(ctx, prefixed(key)).Result()
}

// Expire slides the expiry of an existing key. Missing keys are a no-op.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.PExpire(ctx, prefixed(key), ttl).Err()
}

// SetRemove removes members from the set at key.
func (s *RedisStore) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	args := make([]interface{}, 0, len(members))
	for _, member := range members {
		args = append(args, member)
	}
	return s.client.SRem(ctx, prefixed(key), args...).Err()
}

func prefixed(key string) string {
	if strings.HasPrefix(key, redisKeyPrefix) {
		return key
	}
	return redisKeyPrefix + key
}
