package gateway

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

// Cache wraps a Gateway with Redis-backed caching for List. Writes go
// straight to the wrapped gateway and evict the cached list.
type Cache struct {
	base      Gateway
	redis     *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCache creates a caching Gateway wrapper using the provided Redis client
// and TTL. A nil client or zero TTL disables caching.
func NewCache(base Gateway, client *redis.Client, ttl time.Duration, namespace string) *Cache {
	if base == nil {
		panic("gateway.NewCache: base gateway is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl, namespace: namespace}
}

func (c *Cache) List(ctx context.Context) ([]domain.Task, error) {
	if tasks, ok := c.load(ctx); ok {
		return tasks, nil
	}

	gen, genOK := c.generation(ctx)
	tasks, err := c.base.List(ctx)
	if err != nil {
		return nil, err
	}

	if genOK {
		c.store(ctx, tasks, gen)
	}
	return tasks, nil
}

func (c *Cache) Create(ctx context.Context, task domain.NewTask) (domain.Task, error) {
	created, err := c.base.Create(ctx, task)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx)
	return created, nil
}

func (c *Cache) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	updated, err := c.base.Update(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx)
	return updated, nil
}

func (c *Cache) load(ctx context.Context) ([]domain.Task, bool) {
	if c.redis == nil || c.ttl == 0 {
		return nil, false
	}
	key := c.key()
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing gateway without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

// generation reads the write counter bumped by every eviction.
func (c *Cache) generation(ctx context.Context) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, c.genKey()).Int64()
	if err == redis.Nil {
		return 0, true
	}
	return gen, err == nil
}

// store caches tasks unless a write evicted the list after gen was read;
// such a list may predate that write.
func (c *Cache) store(ctx context.Context, tasks []domain.Task, gen int64) {
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	key, genKey := c.key(), c.genKey()
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err == redis.Nil {
			current, err = 0, nil
		}
		if err != nil || current != gen {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey())
		pipe.Del(ctx, c.key())
		return nil
	})
}

func (c *Cache) key() string {
	return tasksCacheKey(c.namespace)
}

func (c *Cache) genKey() string {
	return tasksCacheKey(c.namespace) + ":gen"
}

func tasksCacheKey(namespace string) string {
	return "tasks:" + namespace
}
