package bundle

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a two-level bundle cache: an in-process LRU (L1) in front of an
// optional shared Redis (L2). Keys are tenants; values are finished bundle
// bytes. Invalidate is called from the policy engine's change listener, so
// a cached bundle can only be stale for the propagation window of a single
// process's L1 when Redis is disabled.
type Cache struct {
	l1    *lru.Cache[string, []byte]
	redis *redis.Client // nil disables L2
	ttl   time.Duration
}

// NewCache creates a bundle cache. redisClient may be nil for an L1-only
// cache. size is the L1 entry capacity.
func NewCache(size int, redisClient *redis.Client, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = 128
	}
	l1, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{l1: l1, redis: redisClient, ttl: ttl}, nil
}

func cacheKey(tenant string) string {
	return "bundle:" + tenant
}

// Get returns a cached bundle for the tenant, if any. Redis failures are
// treated as misses; the exporter can always rebuild.
func (c *Cache) Get(ctx context.Context, tenant string) ([]byte, bool) {
	if data, ok := c.l1.Get(tenant); ok {
		return data, true
	}
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, cacheKey(tenant)).Bytes()
	if err != nil {
		return nil, false
	}
	c.l1.Add(tenant, data)
	return data, true
}

// Set stores a built bundle in both levels.
func (c *Cache) Set(ctx context.Context, tenant string, data []byte) {
	c.l1.Add(tenant, data)
	if c.redis != nil {
		c.redis.Set(ctx, cacheKey(tenant), data, c.ttl)
	}
}

// Invalidate drops the tenant's cached bundle from both levels.
func (c *Cache) Invalidate(tenant string) {
	c.l1.Remove(tenant)
	if c.redis != nil {
		// Invalidation runs inline with the policy mutation; keep it from
		// stalling the write path on a slow Redis.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.redis.Del(ctx, cacheKey(tenant))
	}
}
