package domain

import "time"

// CacheEntry is the durable record for a single cache key.
type CacheEntry struct {
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil = permanent
}

// NewCacheEntry builds an entry for key/value. A nil ttl produces a
// permanent entry; otherwise the expiry is now+ttl.
func NewCacheEntry(key, value string, ttl *time.Duration, now time.Time) *CacheEntry {
	e := &CacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
	}
	if ttl != nil {
		exp := now.Add(*ttl)
		e.ExpiresAt = &exp
	}
	return e
}

// Permanent reports whether the entry has no expiry.
func (e *CacheEntry) Permanent() bool {
	return e.ExpiresAt == nil
}

// Expired reports whether the entry is logically expired at now.
// An entry expiring exactly at now is still live.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// Remaining returns the lifetime left at now. Permanent entries report
// zero and false.
func (e *CacheEntry) Remaining(now time.Time) (time.Duration, bool) {
	if e.ExpiresAt == nil {
		return 0, false
	}
	return e.ExpiresAt.Sub(now), true
}
