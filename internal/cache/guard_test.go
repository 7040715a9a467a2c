package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/pulsar/internal/circuitbreaker"
)

// scriptedCache fails or stalls on demand and counts calls.
type scriptedCache struct {
	*InMemoryCache
	err   error
	delay time.Duration
	calls atomic.Int64
}

func newScriptedCache() *scriptedCache {
	return &scriptedCache{InMemoryCache: NewInMemoryCache(time.Minute)}
}

func (s *scriptedCache) Get(ctx context.Context, key string) ([]byte, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.InMemoryCache.Get(ctx, key)
}

func (s *scriptedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	return s.InMemoryCache.Set(ctx, key, value, ttl)
}

func TestGuarded_PassesThrough(t *testing.T) {
	inner := newScriptedCache()
	defer inner.Close()
	g := NewGuarded(inner, GuardConfig{Timeout: time.Second})
	ctx := context.Background()

	if err := g.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := g.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "v" {
		t.Fatalf("expected 'v', got '%s'", val)
	}
	if _, err := g.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestGuarded_BoundsSlowBackend(t *testing.T) {
	inner := newScriptedCache()
	defer inner.Close()
	// the stub ignores its context, so only Guarded can cut it short
	inner.delay = 500 * time.Millisecond

	g := NewGuarded(inner, GuardConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := g.Get(context.Background(), "k")
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got: %v", err)
	}
	if elapsed > 200*time.Millisecond {
		t.Fatalf("guarded call took %v, expected it to be bounded by the timeout", elapsed)
	}
}

func TestGuarded_BreakerOpensAndSkipsCalls(t *testing.T) {
	inner := newScriptedCache()
	defer inner.Close()
	inner.err = errors.New("connection refused")

	g := NewGuarded(inner, GuardConfig{
		Timeout: time.Second,
		Breaker: circuitbreaker.Config{
			ErrorPct:       50,
			MinRequests:    3,
			WindowDuration: time.Minute,
			OpenDuration:   time.Minute,
		},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.Get(ctx, "k"); err == nil {
			t.Fatal("expected backend error")
		}
	}
	if g.Breaker().State() != circuitbreaker.StateOpen {
		t.Fatalf("expected breaker to be open, got %v", g.Breaker().State())
	}

	before := inner.calls.Load()
	if _, err := g.Get(ctx, "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable while open, got: %v", err)
	}
	if inner.calls.Load() != before {
		t.Fatal("open breaker must not reach the backend")
	}
}

func TestGuarded_MissesDoNotTripBreaker(t *testing.T) {
	inner := newScriptedCache()
	defer inner.Close()

	g := NewGuarded(inner, GuardConfig{
		Breaker: circuitbreaker.Config{
			ErrorPct:       50,
			MinRequests:    1,
			WindowDuration: time.Minute,
			OpenDuration:   time.Minute,
		},
	})

	for i := 0; i < 10; i++ {
		g.Get(context.Background(), "missing")
	}
	if g.Breaker().State() != circuitbreaker.StateClosed {
		t.Fatalf("clean misses should keep the breaker closed, got %v", g.Breaker().State())
	}
}

func TestGuarded_DefaultsAndNoBreaker(t *testing.T) {
	inner := newScriptedCache()
	defer inner.Close()

	g := NewGuarded(inner, GuardConfig{})
	if g.timeout != DefaultGuardTimeout {
		t.Fatalf("expected default timeout %v, got %v", DefaultGuardTimeout, g.timeout)
	}
	if g.Breaker() != nil {
		t.Fatal("zero breaker config should disable the breaker")
	}
	if g.Unwrap() != Cache(inner) {
		t.Fatal("Unwrap should return the wrapped cache")
	}
}
