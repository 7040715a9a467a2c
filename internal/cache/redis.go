package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key Pulsar writes to Redis.
const DefaultKeyPrefix = "pulsar:"

// RedisCache implements Cache backed by Redis. It is the shared fast store
// for shadow entries; several Pulsar instances may point at the same Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	owned  bool
}

// RedisCacheConfig holds configuration for the Redis cache.
type RedisCacheConfig struct {
	Addr      string // Redis address (e.g. "localhost:6379")
	Password  string // Redis password
	DB        int    // Redis database number
	KeyPrefix string // Key prefix for namespacing (default: "pulsar:")
	PoolSize  int    // Connection pool size (0 = go-redis default)
}

// NewRedisCache creates a new Redis-backed cache that owns its client.
func NewRedisCache(cfg RedisCacheConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
		// Guarded bounds every call with a context deadline.
		ContextTimeoutEnabled: true,
	})
	c := NewRedisCacheFromClient(client, cfg.KeyPrefix)
	c.owned = true
	return c
}

// NewRedisCacheFromClient creates a Redis cache using an existing client.
// Close does not close a borrowed client.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
	}
}

// Client returns the underlying Redis client for direct access.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}
