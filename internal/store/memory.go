package store

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/pulsar/internal/domain"
)

// MemoryStore is a process-local EntryStore. It keeps the same unique-key
// and creation-time semantics as PostgresStore and backs local development
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*domain.CacheEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*domain.CacheEntry)}
}

func (s *MemoryStore) Close() error                 { return nil }
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) FindByKey(_ context.Context, key string) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) Upsert(_ context.Context, entry *domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[entry.Key]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries[entry.Key] = cloneEntry(entry)
	return nil
}

func (s *MemoryStore) DeleteByKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) ExistsByKey(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok, nil
}

func (s *MemoryStore) DeleteByKeyExpiredBefore(_ context.Context, key string, ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !e.Expired(ts) {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *MemoryStore) DeleteExpiredBefore(_ context.Context, ts time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, e := range s.entries {
		if e.Expired(ts) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneEntry(e *domain.CacheEntry) *domain.CacheEntry {
	cp := *e
	if e.ExpiresAt != nil {
		exp := *e.ExpiresAt
		cp.ExpiresAt = &exp
	}
	return &cp
}
