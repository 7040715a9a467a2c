package main

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/circuitbreaker"
	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/engine"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/store"
)

// components holds everything an engine needs, for both the daemon and the
// one-shot commands.
type components struct {
	store       *store.Store
	redis       *cache.RedisCache
	fast        *cache.Guarded
	local       *cache.LocalCache
	invalidator *cache.Invalidator
	engine      *engine.Engine
}

// buildComponents connects the stores. withLocal enables the read-through
// layer, which only pays off in a long-running process.
func buildComponents(ctx context.Context, cfg *config.Config, withLocal bool) (*components, error) {
	c := &components{}

	var entries store.EntryStore
	if cfg.Postgres.DSN == "" {
		logging.Op().Warn("no postgres DSN configured, using the in-memory durable store")
		entries = store.NewMemoryStore()
	} else {
		pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		entries = pg
	}
	c.store = store.NewStore(entries)

	var inner cache.Cache
	switch cfg.FastStore.Backend {
	case config.BackendRedis:
		rc := cfg.FastStore.Redis
		c.redis = cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:      rc.Addr,
			Password:  rc.Password,
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
			PoolSize:  rc.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := c.redis.Ping(pingCtx); err != nil {
			// The fast store is optional; the breaker takes over from here.
			logging.Op().Warn("redis unavailable at startup", "addr", rc.Addr, "error", err)
		}
		cancel()
		inner = c.redis
	case config.BackendMemory:
		inner = cache.NewInMemoryCache(time.Minute)
	}

	if inner != nil {
		c.fast = cache.NewGuarded(inner, cache.GuardConfig{
			Timeout: cfg.FastStore.Timeout,
			Breaker: cfg.FastStore.Breaker.CircuitBreaker(),
		})
		if b := c.fast.Breaker(); b != nil {
			metrics.SetCircuitBreakerState("fast_store", int(circuitbreaker.StateClosed))
			b.OnStateChange(func(from, to circuitbreaker.State) {
				metrics.SetCircuitBreakerState("fast_store", int(to))
				metrics.RecordCircuitBreakerTransition("fast_store", to.String())
				logging.Op().Warn("fast store breaker changed state", "from", from.String(), "to", to.String())
			})
		}
	}

	if withLocal {
		local, err := cache.NewLocalCache(cache.LocalCacheConfig{
			MaxSizeMB:  cfg.LocalCache.MaxSizeMB,
			MaxEntries: cfg.LocalCache.MaxEntries,
			TTL:        cfg.LocalCache.TTL,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("create local cache: %w", err)
		}
		c.local = local
	}

	if c.redis != nil && cfg.FastStore.Invalidation {
		c.invalidator = cache.NewInvalidator(c.local, c.redis.Client(), cfg.FastStore.Timeout)
	}

	opts := engine.Options{
		Store: c.store,
		Local: c.local,
	}
	if c.fast != nil {
		opts.Fast = c.fast
	}
	if c.invalidator != nil {
		opts.Invalidator = c.invalidator
	}
	eng, err := engine.New(opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.engine = eng
	return c, nil
}

// Close releases every component. It is safe on a partially built value.
func (c *components) Close() {
	if c.invalidator != nil {
		c.invalidator.Close()
	}
	if c.fast != nil {
		c.fast.Close()
	}
	if c.local != nil {
		c.local.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}
