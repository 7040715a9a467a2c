package dataplane

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/oriys/pulsar/internal/engine"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
)

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles the cache API and health probes.
type Handler struct {
	Engine  *engine.Engine
	Durable Pinger
	Fast    Pinger // nil when no fast store is configured
}

// RegisterRoutes registers all data plane routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cache/{key}", h.GetEntry)
	mux.HandleFunc("POST /api/cache/{key}", h.PutEntry)
	mux.HandleFunc("DELETE /api/cache/{key}", h.DeleteEntry)
	mux.HandleFunc("GET /api/cache/{key}/exists", h.EntryExists)

	// Health probes
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)

	mux.Handle("GET /metrics", metrics.PrometheusHandler())
}

// PutRequest is the body of POST /api/cache/{key}. TTL is in seconds;
// omitted means permanent.
type PutRequest struct {
	Value string `json:"value"`
	TTL   *int64 `json:"ttl,omitempty"`
}

// GetEntry handles GET /api/cache/{key}
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	logging.Annotate(r.Context(), "get", key)

	value, found, err := h.Engine.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	logging.AnnotateHit(r.Context(), found)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "cache entry not found", "key": key})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

// maxTTLSeconds is the largest TTL that converts to a time.Duration.
const maxTTLSeconds = int64(math.MaxInt64 / time.Second)

// PutEntry handles POST /api/cache/{key}
func (h *Handler) PutEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	logging.Annotate(r.Context(), "put", key)

	var req PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}

	if req.TTL != nil && *req.TTL > maxTTLSeconds {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ttl out of range"})
		return
	}

	var err error
	if req.TTL == nil {
		err = h.Engine.Put(r.Context(), key, req.Value)
	} else {
		err = h.Engine.PutWithTTL(r.Context(), key, req.Value, time.Duration(*req.TTL)*time.Second)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cache entry created", "key": key})
}

// DeleteEntry handles DELETE /api/cache/{key}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	logging.Annotate(r.Context(), "delete", key)

	if err := h.Engine.Delete(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cache entry deleted", "key": key})
}

// EntryExists handles GET /api/cache/{key}/exists
func (h *Handler) EntryExists(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	logging.Annotate(r.Context(), "exists", key)

	exists, err := h.Engine.Exists(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// Health handles GET /health - detailed status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	durableOK := h.Durable.Ping(ctx) == nil
	components := map[string]interface{}{
		"durable_store": durableOK,
	}

	status := "ok"
	if h.Fast != nil {
		fastOK := h.Fast.Ping(ctx) == nil
		components["fast_store"] = fastOK
		if !fastOK {
			status = "degraded"
		}
	}
	code := http.StatusOK
	if !durableOK {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}

// HealthLive handles GET /health/live - Kubernetes liveness probe
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready - Kubernetes readiness probe.
// Only the durable store gates readiness; the fast store is optional.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Durable.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"error":  "durable store unavailable: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if code := errorStatus(err); code != 0 {
		writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}
	logging.Op().Error("cache request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrEmptyKey), errors.Is(err, engine.ErrInvalidTTL):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return 0
}
