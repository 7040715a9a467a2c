package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oriys/pulsar/internal/domain"
)

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("store: entry not found")

// EntryStore is the durable, authoritative record of cache entries.
// Keys are unique; Upsert replaces value and expiry of an existing key and
// keeps its original creation time.
type EntryStore interface {
	Close() error
	Ping(ctx context.Context) error

	FindByKey(ctx context.Context, key string) (*domain.CacheEntry, error)
	Upsert(ctx context.Context, entry *domain.CacheEntry) error
	DeleteByKey(ctx context.Context, key string) error
	ExistsByKey(ctx context.Context, key string) (bool, error)

	// DeleteByKeyExpiredBefore removes the entry only when it carries an
	// expiry strictly before ts. It reports whether a row was removed.
	DeleteByKeyExpiredBefore(ctx context.Context, key string, ts time.Time) (bool, error)

	// DeleteExpiredBefore removes every entry whose expiry is strictly
	// before ts and returns the number of removed entries.
	DeleteExpiredBefore(ctx context.Context, ts time.Time) (int64, error)
}

// Store wraps the configured EntryStore.
type Store struct {
	EntryStore
	driver string
}

func NewStore(entries EntryStore) *Store {
	s := &Store{EntryStore: entries}
	switch entries.(type) {
	case *PostgresStore:
		s.driver = "postgres"
	case *MemoryStore:
		s.driver = "memory"
	default:
		s.driver = "custom"
	}
	return s
}

// Driver names the backing implementation.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) Ping(ctx context.Context) error {
	if s.EntryStore == nil {
		return fmt.Errorf("entry store not configured")
	}
	return s.EntryStore.Ping(ctx)
}

func (s *Store) Close() error {
	if s.EntryStore != nil {
		return s.EntryStore.Close()
	}
	return nil
}
