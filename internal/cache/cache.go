// Package cache defines the fast-path key/value store used to shadow
// TTL-bearing cache entries, plus the process-local read-through layer for
// permanent entries. Nothing in this package is authoritative: the durable
// store in internal/store is the source of truth, and every implementation
// here may lose data at any time.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// ErrUnavailable is returned by Guarded while its breaker is open.
var ErrUnavailable = errors.New("cache: fast store unavailable")

// Cache abstracts a key-value cache with TTL support.
// All operations are safe for concurrent use. Implementations must return
// ErrNotFound, and only ErrNotFound, for a clean miss so callers can tell
// a miss from a failure.
type Cache interface {
	// Get retrieves the value associated with key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL means the entry
	// does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache. It is not an error to delete
	// a key that does not exist.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key exists and has not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifies connectivity to the underlying cache backend.
	Ping(ctx context.Context) error

	// Close releases all resources held by the cache implementation.
	Close() error
}
