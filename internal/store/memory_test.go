package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oriys/pulsar/internal/domain"
)

func ptrTime(t time.Time) *time.Time { return &t }

func TestMemoryStore_UpsertKeepsCreatedAt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := time.Now().Add(-time.Hour)
	if err := s.Upsert(ctx, &domain.CacheEntry{Key: "k", Value: "v1", CreatedAt: first}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	second := &domain.CacheEntry{Key: "k", Value: "v2", CreatedAt: time.Now(), ExpiresAt: ptrTime(time.Now().Add(time.Minute))}
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !second.CreatedAt.Equal(first) {
		t.Fatalf("expected created_at to be reported back as %v, got %v", first, second.CreatedAt)
	}

	got, err := s.FindByKey(ctx, "k")
	if err != nil {
		t.Fatalf("FindByKey failed: %v", err)
	}
	if got.Value != "v2" {
		t.Fatalf("expected 'v2', got '%s'", got.Value)
	}
	if !got.CreatedAt.Equal(first) {
		t.Fatalf("created_at changed on overwrite: %v", got.CreatedAt)
	}
	if got.ExpiresAt == nil {
		t.Fatal("expected expiry from second write")
	}
	if s.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", s.Len())
	}
}

func TestMemoryStore_FindMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.FindByKey(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	exp := time.Now().Add(time.Minute)
	s.Upsert(ctx, &domain.CacheEntry{Key: "k", Value: "v", ExpiresAt: &exp})

	got, _ := s.FindByKey(ctx, "k")
	got.Value = "mutated"
	*got.ExpiresAt = time.Time{}

	again, _ := s.FindByKey(ctx, "k")
	if again.Value != "v" || !again.ExpiresAt.Equal(exp) {
		t.Fatal("store should hand out copies, not internal records")
	}
}

func TestMemoryStore_DeleteByKeyIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Upsert(ctx, &domain.CacheEntry{Key: "k", Value: "v"})
	for i := 0; i < 2; i++ {
		if err := s.DeleteByKey(ctx, "k"); err != nil {
			t.Fatalf("DeleteByKey #%d failed: %v", i+1, err)
		}
	}
	exists, err := s.ExistsByKey(ctx, "k")
	if err != nil {
		t.Fatalf("ExistsByKey failed: %v", err)
	}
	if exists {
		t.Fatal("expected key to be gone")
	}
}

func TestMemoryStore_DeleteByKeyExpiredBefore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	s.Upsert(ctx, &domain.CacheEntry{Key: "stale", Value: "v", ExpiresAt: ptrTime(now.Add(-time.Second))})
	s.Upsert(ctx, &domain.CacheEntry{Key: "fresh", Value: "v", ExpiresAt: ptrTime(now.Add(time.Minute))})
	s.Upsert(ctx, &domain.CacheEntry{Key: "perm", Value: "v"})

	for _, tt := range []struct {
		key  string
		want bool
	}{
		{"stale", true},
		{"fresh", false},
		{"perm", false},
		{"missing", false},
	} {
		got, err := s.DeleteByKeyExpiredBefore(ctx, tt.key, now)
		if err != nil {
			t.Fatalf("DeleteByKeyExpiredBefore(%s) failed: %v", tt.key, err)
		}
		if got != tt.want {
			t.Fatalf("DeleteByKeyExpiredBefore(%s) = %v, want %v", tt.key, got, tt.want)
		}
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 remaining entries, got %d", s.Len())
	}
}

func TestMemoryStore_DeleteExpiredBefore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	const expired, live = 5, 4
	for i := 0; i < expired; i++ {
		s.Upsert(ctx, &domain.CacheEntry{Key: fmt.Sprintf("old-%d", i), ExpiresAt: ptrTime(now.Add(-time.Duration(i+1) * time.Second))})
	}
	for i := 0; i < live; i++ {
		var exp *time.Time
		if i%2 == 0 {
			exp = ptrTime(now.Add(time.Hour))
		}
		s.Upsert(ctx, &domain.CacheEntry{Key: fmt.Sprintf("live-%d", i), ExpiresAt: exp})
	}
	// exactly at the cutoff is not strictly before it
	s.Upsert(ctx, &domain.CacheEntry{Key: "edge", ExpiresAt: ptrTime(now)})

	n, err := s.DeleteExpiredBefore(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredBefore failed: %v", err)
	}
	if n != expired {
		t.Fatalf("expected %d deleted, got %d", expired, n)
	}
	if s.Len() != live+1 {
		t.Fatalf("expected %d remaining, got %d", live+1, s.Len())
	}

	n, _ = s.DeleteExpiredBefore(ctx, now)
	if n != 0 {
		t.Fatalf("second sweep should delete nothing, got %d", n)
	}
}
