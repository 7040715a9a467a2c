package engine

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/store"
	"github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   14, // internal/cache tests own DB 15
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestEngine_RedisShadow(t *testing.T) {
	client := newTestRedisClient(t)
	fast := cache.NewGuarded(cache.NewRedisCacheFromClient(client, "pulsar-test:"), cache.GuardConfig{Timeout: time.Second})
	mem := store.NewMemoryStore()
	e, err := New(Options{Store: mem, Fast: fast, Metrics: metrics.New()})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := e.PutWithTTL(ctx, "session", "abc", 30*time.Second); err != nil {
		t.Fatalf("PutWithTTL: %v", err)
	}
	ttl, err := client.PTTL(ctx, "pulsar-test:ttl:session").Result()
	if err != nil {
		t.Fatalf("PTTL: %v", err)
	}
	if ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("shadow ttl %v must be positive and no longer than the entry ttl", ttl)
	}

	v, found, err := e.Get(ctx, "session")
	if err != nil || !found || v != "abc" {
		t.Fatalf("Get = %q, %v, %v", v, found, err)
	}
	if e.metrics.ShadowHits.Load() != 1 {
		t.Fatal("expected a shadow hit")
	}

	if err := e.Put(ctx, "session", "forever"); err != nil {
		t.Fatal(err)
	}
	if n, _ := client.Exists(ctx, "pulsar-test:ttl:session").Result(); n != 0 {
		t.Fatal("permanent write must remove the shadow entry")
	}

	if err := e.Delete(ctx, "session"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := e.Get(ctx, "session"); found {
		t.Fatal("deleted key still readable")
	}
}
