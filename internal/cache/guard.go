package cache

import (
	"context"
	"errors"
	"time"

	"github.com/oriys/pulsar/internal/circuitbreaker"
)

// DefaultGuardTimeout bounds a single fast-store call.
const DefaultGuardTimeout = 50 * time.Millisecond

// GuardConfig configures the failure boundary around a fast store.
type GuardConfig struct {
	Timeout time.Duration
	Breaker circuitbreaker.Config // zero value disables the breaker
}

// Guarded wraps a Cache so that no call takes longer than the configured
// timeout, and calls are skipped with ErrUnavailable while the breaker is
// open. A clean miss (ErrNotFound) counts as a success.
type Guarded struct {
	inner   Cache
	timeout time.Duration
	breaker *circuitbreaker.Breaker
}

// NewGuarded wraps inner with a timeout and an optional breaker.
func NewGuarded(inner Cache, cfg GuardConfig) *Guarded {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGuardTimeout
	}
	g := &Guarded{inner: inner, timeout: cfg.Timeout}
	if cfg.Breaker.Enabled() {
		g.breaker = circuitbreaker.New(cfg.Breaker)
	}
	return g
}

// Breaker exposes the breaker for observability. It is nil when disabled.
func (g *Guarded) Breaker() *circuitbreaker.Breaker {
	return g.breaker
}

// Unwrap returns the wrapped cache.
func (g *Guarded) Unwrap() Cache {
	return g.inner
}

func (g *Guarded) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := g.do(ctx, func(ctx context.Context) error {
		v, err := g.inner.Get(ctx, key)
		val = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (g *Guarded) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.Set(ctx, key, value, ttl)
	})
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.inner.Delete(ctx, key)
	})
}

func (g *Guarded) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := g.do(ctx, func(ctx context.Context) error {
		v, err := g.inner.Exists(ctx, key)
		ok = v
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Ping bypasses the breaker so health checks see the real backend state.
func (g *Guarded) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.inner.Ping(ctx)
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}

// do runs fn on its own goroutine so that a backend ignoring its context
// still cannot hold the caller past the deadline. A timed-out fn keeps
// running in the background and its result is discarded.
func (g *Guarded) do(ctx context.Context, fn func(context.Context) error) error {
	if g.breaker != nil && !g.breaker.Allow() {
		return ErrUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = callCtx.Err()
	}
	g.record(ctx, err)
	return err
}

func (g *Guarded) record(parent context.Context, err error) {
	if g.breaker == nil {
		return
	}
	if err == nil || errors.Is(err, ErrNotFound) {
		g.breaker.RecordSuccess()
		return
	}
	// the caller gave up; that says nothing about the backend
	if parent.Err() != nil {
		return
	}
	g.breaker.RecordFailure()
}
