package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Lookup sources reported by RecordLookup.
const (
	SourceShadow  = "shadow"
	SourceLocal   = "local"
	SourceDurable = "durable"
	SourceMiss    = "miss"
)

// Metrics collects in-process counters for the /stats endpoint. Every
// Record* call also feeds the Prometheus collectors when initialized.
type Metrics struct {
	Puts    atomic.Int64
	Gets    atomic.Int64
	Deletes atomic.Int64
	Exists  atomic.Int64
	Errors  atomic.Int64

	ShadowHits  atomic.Int64
	LocalHits   atomic.Int64
	DurableHits atomic.Int64
	Misses      atomic.Int64

	FastStoreErrors atomic.Int64
	LazyExpirations atomic.Int64

	Sweeps       atomic.Int64
	SweepErrors  atomic.Int64
	SweptEntries atomic.Int64
	lastSweep    atomic.Int64 // unix nanos

	startTime time.Time
}

var global = New()

// New returns an empty collector. Tests use it to avoid the global.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Global returns the global metrics instance
func Global() *Metrics {
	return global
}

// RecordOperation counts an engine operation. result is "ok" or "error".
func (m *Metrics) RecordOperation(op, result string, d time.Duration) {
	switch op {
	case "put":
		m.Puts.Add(1)
	case "get":
		m.Gets.Add(1)
	case "delete":
		m.Deletes.Add(1)
	case "exists":
		m.Exists.Add(1)
	}
	if result != "ok" {
		m.Errors.Add(1)
	}
	recordPrometheusOperation(op, result, float64(d.Microseconds())/1000)
}

// RecordLookup counts which layer answered a Get.
func (m *Metrics) RecordLookup(source string) {
	switch source {
	case SourceShadow:
		m.ShadowHits.Add(1)
	case SourceLocal:
		m.LocalHits.Add(1)
	case SourceDurable:
		m.DurableHits.Add(1)
	case SourceMiss:
		m.Misses.Add(1)
	}
	recordPrometheusLookup(source)
}

// RecordFastStoreError counts a degraded fast-store call.
func (m *Metrics) RecordFastStoreError(op string) {
	m.FastStoreErrors.Add(1)
	recordPrometheusFastStoreError(op)
}

// RecordLazyExpiration counts an entry removed on read.
func (m *Metrics) RecordLazyExpiration() {
	m.LazyExpirations.Add(1)
	recordPrometheusLazyExpiration()
}

// RecordSweep counts a finished sweep.
func (m *Metrics) RecordSweep(deleted int64, d time.Duration, err error) {
	if err != nil {
		m.SweepErrors.Add(1)
		recordPrometheusSweep(0, 0, false)
		return
	}
	m.Sweeps.Add(1)
	m.SweptEntries.Add(deleted)
	m.lastSweep.Store(time.Now().UnixNano())
	recordPrometheusSweep(deleted, float64(d.Microseconds())/1000, true)
}

// LastSweep returns the time of the last successful sweep.
func (m *Metrics) LastSweep() (time.Time, bool) {
	n := m.lastSweep.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// HitRatio is hits / gets, 0 before the first get.
func (m *Metrics) HitRatio() float64 {
	gets := m.Gets.Load()
	if gets == 0 {
		return 0
	}
	hits := m.ShadowHits.Load() + m.LocalHits.Load() + m.DurableHits.Load()
	return float64(hits) / float64(gets)
}

// Snapshot returns a point-in-time view of all counters.
func (m *Metrics) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"operations": map[string]int64{
			"put":    m.Puts.Load(),
			"get":    m.Gets.Load(),
			"delete": m.Deletes.Load(),
			"exists": m.Exists.Load(),
			"errors": m.Errors.Load(),
		},
		"lookups": map[string]int64{
			SourceShadow:  m.ShadowHits.Load(),
			SourceLocal:   m.LocalHits.Load(),
			SourceDurable: m.DurableHits.Load(),
			SourceMiss:    m.Misses.Load(),
		},
		"hit_ratio":         m.HitRatio(),
		"fast_store_errors": m.FastStoreErrors.Load(),
		"lazy_expirations":  m.LazyExpirations.Load(),
		"sweeps": map[string]int64{
			"runs":    m.Sweeps.Load(),
			"errors":  m.SweepErrors.Load(),
			"deleted": m.SweptEntries.Load(),
		},
	}
	if t, ok := m.LastSweep(); ok {
		snap["last_sweep"] = t.UTC().Format(time.RFC3339)
	}
	return snap
}

// JSONHandler serves Snapshot as JSON.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}
