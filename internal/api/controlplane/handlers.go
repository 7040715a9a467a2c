package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/circuitbreaker"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
)

// Sweeper runs one expiration sweep on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (int64, error)
	Next() time.Time
}

// Handler handles administrative endpoints.
type Handler struct {
	Sweeper Sweeper
	Local   *cache.LocalCache
	Breaker *circuitbreaker.Breaker
	Metrics *metrics.Metrics
	Driver  string
}

// RegisterRoutes registers all control plane routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/cache/sweep", h.Sweep)
	mux.HandleFunc("GET /stats", h.Stats)
}

// Sweep handles POST /api/cache/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	logging.Annotate(r.Context(), "sweep", "")

	n, err := h.Sweeper.RunOnce(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"deleted": n})
}

// Stats handles GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	m := h.Metrics
	if m == nil {
		m = metrics.Global()
	}
	stats := m.Snapshot()
	stats["durable_store"] = h.Driver

	if h.Local != nil {
		stats["local_cache"] = h.Local.Stats()
	}
	if h.Breaker != nil {
		stats["fast_store_breaker"] = h.Breaker.State().String()
	}
	if next := h.Sweeper.Next(); !next.IsZero() {
		stats["next_sweep"] = next.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
