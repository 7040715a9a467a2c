package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/logging"
)

// A shadow record is the durable expiry as big-endian unix nanoseconds
// followed by the value. Reads check the expiry against the engine clock, so
// a shadow entry kept alive by a lagging fast-store clock is never served.
const shadowHeaderLen = 8

func encodeShadow(value string, expiresAt time.Time) []byte {
	buf := make([]byte, shadowHeaderLen+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expiresAt.UnixNano()))
	copy(buf[shadowHeaderLen:], value)
	return buf
}

func decodeShadow(raw []byte) (string, time.Time, bool) {
	if len(raw) < shadowHeaderLen {
		return "", time.Time{}, false
	}
	exp := time.Unix(0, int64(binary.BigEndian.Uint64(raw)))
	return string(raw[shadowHeaderLen:]), exp, true
}

func (e *Engine) getShadow(ctx context.Context, key string) (string, bool) {
	if e.fast == nil {
		return "", false
	}
	raw, err := e.fast.Get(ctx, shadowKey(key))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			e.fastStoreFailed("get", key, err)
		}
		return "", false
	}
	value, expiresAt, ok := decodeShadow(raw)
	if !ok {
		logging.Op().Debug("ignoring malformed shadow entry", "key", key)
		return "", false
	}
	if expiresAt.Before(e.now()) {
		return "", false
	}
	return value, true
}

func (e *Engine) setShadow(ctx context.Context, key, value string, expiresAt time.Time, ttl time.Duration) {
	if e.fast == nil {
		return
	}
	if err := e.fast.Set(ctx, shadowKey(key), encodeShadow(value, expiresAt), ttl); err != nil {
		e.fastStoreFailed("set", key, err)
	}
}

func (e *Engine) deleteShadow(ctx context.Context, key string) {
	if e.fast == nil {
		return
	}
	if err := e.fast.Delete(ctx, shadowKey(key)); err != nil {
		e.fastStoreFailed("delete", key, err)
	}
}

func (e *Engine) publish(ctx context.Context, key string) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(ctx, key); err != nil {
		logging.Op().Warn("publish cache invalidation failed", "key", key, "error", err)
	}
}

func (e *Engine) fastStoreFailed(op, key string, err error) {
	e.metrics.RecordFastStoreError(op)
	if errors.Is(err, cache.ErrUnavailable) {
		logging.Op().Debug("fast store skipped", "op", op, "key", key)
		return
	}
	logging.Op().Warn("fast store call failed", "op", op, "key", key, "error", err)
}
