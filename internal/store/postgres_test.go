package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oriys/pulsar/internal/domain"
)

// newTestPostgresStore connects to PULSAR_TEST_POSTGRES_DSN and skips the
// test when it is not set or not reachable.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("PULSAR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PULSAR_TEST_POSTGRES_DSN not set, skipping")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Skipf("Postgres not available, skipping: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(context.Background(), `DELETE FROM cache_entries WHERE cache_key LIKE 'pgtest:%'`)
		s.Close()
	})
	return s
}

func TestPostgresStore_UpsertAndFind(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	e := &domain.CacheEntry{Key: "pgtest:a", Value: "v1", CreatedAt: time.Now()}
	if err := s.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	created := e.CreatedAt

	exp := time.Now().Add(time.Minute)
	e2 := &domain.CacheEntry{Key: "pgtest:a", Value: "v2", CreatedAt: time.Now().Add(time.Hour), ExpiresAt: &exp}
	if err := s.Upsert(ctx, e2); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.FindByKey(ctx, "pgtest:a")
	if err != nil {
		t.Fatalf("FindByKey failed: %v", err)
	}
	if got.Value != "v2" {
		t.Fatalf("expected 'v2', got '%s'", got.Value)
	}
	if got.ExpiresAt == nil {
		t.Fatal("expected expiry to be stored")
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed on overwrite: %v != %v", got.CreatedAt, created)
	}
}

func TestPostgresStore_DeleteAndExists(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	s.Upsert(ctx, &domain.CacheEntry{Key: "pgtest:b", Value: "v"})

	exists, err := s.ExistsByKey(ctx, "pgtest:b")
	if err != nil || !exists {
		t.Fatalf("expected key to exist (err=%v)", err)
	}
	if err := s.DeleteByKey(ctx, "pgtest:b"); err != nil {
		t.Fatalf("DeleteByKey failed: %v", err)
	}
	if err := s.DeleteByKey(ctx, "pgtest:b"); err != nil {
		t.Fatalf("second DeleteByKey failed: %v", err)
	}
	if _, err := s.FindByKey(ctx, "pgtest:b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestPostgresStore_ExpiryDeletes(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	s.Upsert(ctx, &domain.CacheEntry{Key: "pgtest:old", Value: "v", ExpiresAt: &past})
	s.Upsert(ctx, &domain.CacheEntry{Key: "pgtest:new", Value: "v", ExpiresAt: &future})
	s.Upsert(ctx, &domain.CacheEntry{Key: "pgtest:perm", Value: "v"})

	removed, err := s.DeleteByKeyExpiredBefore(ctx, "pgtest:new", now)
	if err != nil || removed {
		t.Fatalf("live entry must not be removed (removed=%v err=%v)", removed, err)
	}

	if _, err := s.DeleteExpiredBefore(ctx, now); err != nil {
		t.Fatalf("DeleteExpiredBefore failed: %v", err)
	}
	if ok, _ := s.ExistsByKey(ctx, "pgtest:old"); ok {
		t.Fatal("expired entry should have been swept")
	}
	for _, k := range []string{"pgtest:new", "pgtest:perm"} {
		if ok, _ := s.ExistsByKey(ctx, k); !ok {
			t.Fatalf("%s should survive the sweep", k)
		}
	}
}
