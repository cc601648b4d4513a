package services

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisCache is an optional operational cache: it fronts completed-receipt
// lookups for the resource gate and keeps running per-agent usage totals.
// Every method is nil-safe so the engine runs unchanged without Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Println("Redis connection established")
	return &RedisCache{client: client}, nil
}

// CacheReceipt stores receipt -> session id for the gate middleware.
// Cache set errors are ignored; the session store stays authoritative.
func (c *RedisCache) CacheReceipt(ctx context.Context, receipt, sessionID string, ttl time.Duration) {
	if c == nil || receipt == "" {
		return
	}
	_ = c.client.Set(ctx, "receipt:"+receipt, sessionID, ttl).Err()
}

// LookupReceipt resolves a cached receipt to its session id.
// Returns "" on miss or when Redis is disabled.
func (c *RedisCache) LookupReceipt(ctx context.Context, receipt string) string {
	if c == nil || receipt == "" {
		return ""
	}
	sessionID, err := c.client.Get(ctx, "receipt:"+receipt).Result()
	if err != nil {
		return ""
	}
	return sessionID
}

// AddUsage bumps the running usage total for an agent. Visibility only;
// the billing system remains the authority on aggregation.
func (c *RedisCache) AddUsage(ctx context.Context, agentID string, cost decimal.Decimal) {
	if c == nil || agentID == "" {
		return
	}
	f, _ := cost.Float64()
	_ = c.client.IncrByFloat(ctx, "usage:"+agentID, f).Err()
}

// Ping reports whether the cache is reachable
func (c *RedisCache) Ping(ctx context.Context) bool {
	if c == nil {
		return false
	}
	return c.client.Ping(ctx).Err() == nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
