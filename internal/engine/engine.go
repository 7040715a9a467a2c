// Package engine keeps cache entries consistent across the durable store
// and the fast shadow store, and enforces expiry lazily on read and eagerly
// through Sweep.
//
// The durable store is authoritative. Every fast-store call is best-effort:
// failures are logged and counted, then the operation continues on the
// durable path as if the fast store were empty.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/domain"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/observability"
	"github.com/oriys/pulsar/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ShadowPrefix namespaces shadow entries in the fast store.
const ShadowPrefix = "ttl:"

var (
	// ErrEmptyKey is returned for an empty cache key.
	ErrEmptyKey = errors.New("cache key must not be empty")
	// ErrInvalidTTL is returned for a negative TTL.
	ErrInvalidTTL = errors.New("ttl must not be negative")
)

// Publisher announces that a key changed on this instance.
type Publisher interface {
	Publish(ctx context.Context, key string) error
}

// Options wires an Engine. Only Store is required.
type Options struct {
	Store       store.EntryStore
	Fast        cache.Cache       // shadow store, nil disables the fast path
	Local       *cache.LocalCache // read-through layer for permanent values
	Invalidator Publisher
	Metrics     *metrics.Metrics
	Clock       func() time.Time
}

// Engine implements put, get, delete, exists and sweep. It is safe for
// concurrent use and holds no lock across the two stores.
type Engine struct {
	store   store.EntryStore
	fast    cache.Cache
	local   *cache.LocalCache
	pub     Publisher
	metrics *metrics.Metrics
	now     func() time.Time

	lookups singleflight.Group
	// writes is bumped after every durable write. A durable read only
	// populates the read-through layer when no write completed while it
	// was in flight.
	writes atomic.Uint64
}

// New creates an engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: durable store is required")
	}
	e := &Engine{
		store:   opts.Store,
		fast:    opts.Fast,
		local:   opts.Local,
		pub:     opts.Invalidator,
		metrics: opts.Metrics,
		now:     opts.Clock,
	}
	if e.metrics == nil {
		e.metrics = metrics.Global()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

func shadowKey(key string) string {
	return ShadowPrefix + key
}

// Put stores a permanent entry.
func (e *Engine) Put(ctx context.Context, key, value string) error {
	return e.put(ctx, key, value, nil)
}

// PutWithTTL stores an entry that expires ttl from now. A zero ttl stores an
// entry that is already expired for any later read.
func (e *Engine) PutWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	return e.put(ctx, key, value, &ttl)
}

func (e *Engine) put(ctx context.Context, key, value string, ttl *time.Duration) (err error) {
	if key == "" {
		return ErrEmptyKey
	}
	start := time.Now()
	attrs := []attribute.KeyValue{observability.AttrCacheKey.String(key), observability.AttrCacheOp.String("put")}
	if ttl != nil {
		attrs = append(attrs, observability.AttrTTLMs.Int64(ttl.Milliseconds()))
	}
	ctx, span := observability.StartSpan(ctx, "cache.put", attrs...)
	defer func() {
		e.finish(span, "put", start, err)
	}()

	entry := domain.NewCacheEntry(key, value, ttl, e.now())
	err = e.store.Upsert(ctx, entry)
	e.writes.Add(1)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", key, err)
	}

	// Only durable reads fill the read-through layer.
	e.local.Delete(key)
	if entry.Permanent() {
		e.deleteShadow(ctx, key)
	} else {
		remaining, _ := entry.Remaining(e.now())
		if remaining > 0 {
			e.setShadow(ctx, key, value, *entry.ExpiresAt, remaining)
		} else {
			e.deleteShadow(ctx, key)
		}
	}
	e.publish(ctx, key)
	return nil
}

// Get returns the live value for key. found is false when the key is absent
// or logically expired; err is only ever a durable store failure.
func (e *Engine) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.get",
		observability.AttrCacheKey.String(key),
		observability.AttrCacheOp.String("get"),
	)
	defer func() {
		span.SetAttributes(observability.AttrCacheHit.Bool(found))
		e.finish(span, "get", start, err)
	}()

	if v, ok := e.getShadow(ctx, key); ok {
		e.lookup(span, metrics.SourceShadow)
		return v, true, nil
	}
	if v, ok := e.local.Get(key); ok {
		e.lookup(span, metrics.SourceLocal)
		return v, true, nil
	}

	// Readers only share a durable read that started after the last
	// completed write.
	epoch := e.writes.Load()
	flight := key + "\x00" + strconv.FormatUint(epoch, 10)
	res, err, _ := e.lookups.Do(flight, func() (interface{}, error) {
		return e.loadDurable(ctx, key, epoch)
	})
	if err != nil {
		return "", false, err
	}
	r := res.(lookupResult)
	if !r.found {
		e.lookup(span, metrics.SourceMiss)
		return "", false, nil
	}
	e.lookup(span, metrics.SourceDurable)
	return r.value, true, nil
}

type lookupResult struct {
	value string
	found bool
}

func (e *Engine) loadDurable(ctx context.Context, key string, epoch uint64) (lookupResult, error) {
	entry, err := e.store.FindByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return lookupResult{}, nil
	}
	if err != nil {
		return lookupResult{}, fmt.Errorf("find %q: %w", key, err)
	}

	now := e.now()
	if entry.Expired(now) {
		if err := e.expire(ctx, key, now); err != nil {
			return lookupResult{}, err
		}
		return lookupResult{}, nil
	}

	if entry.Permanent() && e.writes.Load() == epoch {
		e.local.Set(key, entry.Value)
	}
	return lookupResult{value: entry.Value, found: true}, nil
}

// expire removes an entry found expired at now. The durable delete is
// conditional so an entry rewritten after the read survives.
func (e *Engine) expire(ctx context.Context, key string, now time.Time) error {
	removed, err := e.store.DeleteByKeyExpiredBefore(ctx, key, now)
	if err != nil {
		return fmt.Errorf("expire %q: %w", key, err)
	}
	if !removed {
		return nil
	}
	e.metrics.RecordLazyExpiration()
	logging.Op().Debug("lazily expired cache entry", "key", key)
	e.local.Delete(key)
	e.deleteShadow(ctx, key)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (e *Engine) Delete(ctx context.Context, key string) (err error) {
	if key == "" {
		return ErrEmptyKey
	}
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.delete",
		observability.AttrCacheKey.String(key),
		observability.AttrCacheOp.String("delete"),
	)
	defer func() {
		e.finish(span, "delete", start, err)
	}()

	err = e.store.DeleteByKey(ctx, key)
	e.writes.Add(1)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	e.local.Delete(key)
	e.deleteShadow(ctx, key)
	e.publish(ctx, key)
	return nil
}

// Exists reports whether a live entry exists for key. It reads the durable
// store only and never deletes anything.
func (e *Engine) Exists(ctx context.Context, key string) (exists bool, err error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.exists",
		observability.AttrCacheKey.String(key),
		observability.AttrCacheOp.String("exists"),
	)
	defer func() {
		span.SetAttributes(observability.AttrCacheHit.Bool(exists))
		e.finish(span, "exists", start, err)
	}()

	entry, err := e.store.FindByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find %q: %w", key, err)
	}
	return !entry.Expired(e.now()), nil
}

// Sweep removes every entry that is logically expired now and returns how
// many were removed. Shadow entries are left to expire on their own.
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.sweep")
	defer span.End()

	n, err := e.store.DeleteExpiredBefore(ctx, e.now())
	e.metrics.RecordSweep(n, time.Since(start), err)
	if err != nil {
		observability.SetSpanError(span, err)
		return 0, fmt.Errorf("sweep: %w", err)
	}
	span.SetAttributes(observability.AttrSwept.Int64(n))
	observability.SetSpanOK(span)
	return n, nil
}

func (e *Engine) finish(span trace.Span, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		observability.SetSpanError(span, err)
	} else {
		observability.SetSpanOK(span)
	}
	e.metrics.RecordOperation(op, result, time.Since(start))
	span.End()
}

func (e *Engine) lookup(span trace.Span, source string) {
	span.SetAttributes(observability.AttrCacheSource.String(source))
	e.metrics.RecordLookup(source)
}
