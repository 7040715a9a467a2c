package domain

import (
	"testing"
	"time"
)

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"permanent", nil, false},
		{"past", &past, true},
		{"future", &future, false},
		{"exactly now", &now, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &CacheEntry{Key: "k", ExpiresAt: tt.expiresAt}
			if got := e.Expired(now); got != tt.want {
				t.Fatalf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewCacheEntry(t *testing.T) {
	now := time.Now()

	perm := NewCacheEntry("a", "1", nil, now)
	if !perm.Permanent() {
		t.Fatal("expected permanent entry for nil ttl")
	}
	if _, ok := perm.Remaining(now); ok {
		t.Fatal("permanent entry should not report remaining lifetime")
	}

	ttl := time.Minute
	e := NewCacheEntry("b", "2", &ttl, now)
	if e.Permanent() {
		t.Fatal("expected ttl entry")
	}
	if !e.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected expiry %v, got %v", now.Add(time.Minute), *e.ExpiresAt)
	}
	if !e.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %v, got %v", now, e.CreatedAt)
	}
	if rem, ok := e.Remaining(now); !ok || rem != time.Minute {
		t.Fatalf("expected remaining 1m, got %v (%v)", rem, ok)
	}

	zero := time.Duration(0)
	z := NewCacheEntry("c", "3", &zero, now)
	if z.Expired(now) {
		t.Fatal("zero ttl entry is not expired at the write instant")
	}
	if !z.Expired(now.Add(time.Nanosecond)) {
		t.Fatal("zero ttl entry should be expired right after the write instant")
	}
}
