package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupeKeyPrefix = "idem"
	pendingMarker   = "-"
)

// RedisDeduper stores idempotency keys in Redis so every instance sees
// requests already handled by another one.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("api.NewRedisDeduper: redis client is nil")
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", scope, dedupeKeyPrefix, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, scope, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(scope, key), pendingMarker, r.ttl).Result()
}

// Complete replaces the pending marker with the request result.
func (r *RedisDeduper) Complete(ctx context.Context, scope, key, result string) error {
	return r.client.Set(ctx, r.key(scope, key), result, r.ttl).Err()
}

// Result returns the stored result. It is empty while the first request is
// still being processed.
func (r *RedisDeduper) Result(ctx context.Context, scope, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(scope, key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if val == pendingMarker {
		return "", nil
	}
	return val, nil
}

// Remove deletes a previously recorded key. It is used when downstream
// processing fails so the caller may retry the request.
func (r *RedisDeduper) Remove(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, r.key(scope, key)).Err()
}
