package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCacheConfig sizes the read-through layer.
type LocalCacheConfig struct {
	MaxSizeMB  int64         // upper bound on cached bytes
	MaxEntries int64         // expected number of distinct keys
	TTL        time.Duration // lifetime of a cached value; <= 0 disables the layer
}

// LocalStats reports read-through layer counters.
type LocalStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	KeysAdded uint64 `json:"keys_added"`
	Evictions uint64 `json:"evictions"`
}

// LocalCache is a size-bounded, process-local read-through cache for
// permanent entries, built on ristretto. Values are evicted explicitly on
// delete or overwrite; TTL only bounds how long a value written by another
// instance can survive here.
type LocalCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewLocalCache creates the read-through layer. It returns nil, nil when
// cfg.TTL <= 0; every method is safe on a nil *LocalCache.
func NewLocalCache(cfg LocalCacheConfig) (*LocalCache, error) {
	if cfg.TTL <= 0 {
		return nil, nil
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 64
	}
	numCounters := cfg.MaxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     cfg.MaxSizeMB * 1024 * 1024,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{cache: c, ttl: cfg.TTL}, nil
}

// Get returns the cached value for key.
func (l *LocalCache) Get(key string) (string, bool) {
	if l == nil {
		return "", false
	}
	v, ok := l.cache.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		l.cache.Del(key)
		return "", false
	}
	return s, true
}

// Set caches value for key. The write may be dropped by ristretto's
// admission policy, which only costs a durable read later.
func (l *LocalCache) Set(key, value string) {
	if l == nil {
		return
	}
	l.cache.SetWithTTL(key, value, int64(len(key)+len(value)), l.ttl)
	l.cache.Wait()
}

// Delete evicts key.
func (l *LocalCache) Delete(key string) {
	if l == nil {
		return
	}
	l.cache.Del(key)
}

// Clear evicts everything.
func (l *LocalCache) Clear() {
	if l == nil {
		return
	}
	l.cache.Clear()
}

func (l *LocalCache) Stats() LocalStats {
	if l == nil || l.cache.Metrics == nil {
		return LocalStats{}
	}
	m := l.cache.Metrics
	return LocalStats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		KeysAdded: m.KeysAdded(),
		Evictions: m.KeysEvicted(),
	}
}

func (l *LocalCache) Close() {
	if l == nil {
		return
	}
	l.cache.Close()
}
