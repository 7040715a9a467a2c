package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/pulsar/internal/api/controlplane"
	"github.com/oriys/pulsar/internal/api/dataplane"
	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/circuitbreaker"
	"github.com/oriys/pulsar/internal/engine"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/observability"
	"github.com/oriys/pulsar/internal/store"
)

// ServerConfig contains dependencies for the HTTP server.
type ServerConfig struct {
	Engine    *engine.Engine
	Store     *store.Store
	Fast      cache.Cache // optional, health reporting only
	Local     *cache.LocalCache
	Breaker   *circuitbreaker.Breaker
	Sweeper   controlplane.Sweeper
	Metrics   *metrics.Metrics
	AccessLog *logging.Logger // nil disables access logging
}

// NewHandler builds the routed, instrumented handler.
func NewHandler(cfg ServerConfig) http.Handler {
	mux := http.NewServeMux()

	dpHandler := &dataplane.Handler{
		Engine:  cfg.Engine,
		Durable: cfg.Store,
	}
	if cfg.Fast != nil {
		dpHandler.Fast = cfg.Fast
	}
	dpHandler.RegisterRoutes(mux)

	cpHandler := &controlplane.Handler{
		Sweeper: cfg.Sweeper,
		Local:   cfg.Local,
		Breaker: cfg.Breaker,
		Metrics: cfg.Metrics,
		Driver:  cfg.Store.Driver(),
	}
	cpHandler.RegisterRoutes(mux)

	var handler http.Handler = mux
	if cfg.AccessLog != nil {
		handler = accessLogMiddleware(cfg.AccessLog, handler)
	}
	return observability.HTTPMiddleware(handler)
}

// StartHTTPServer creates and starts the HTTP server.
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	logging.Op().Info("HTTP server started", "addr", addr)
	return server
}

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

func accessLogMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		traceID, _ := observability.TraceIDs(r.Context())
		entry := &logging.RequestLog{
			Timestamp: start,
			RequestID: reqID,
			TraceID:   traceID,
			Method:    r.Method,
			Path:      r.URL.Path,
		}
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(logging.WithRequestLog(r.Context(), entry)))

		entry.Status = rw.status
		entry.DurationMs = time.Since(start).Milliseconds()
		if rw.status >= 500 {
			entry.Error = http.StatusText(rw.status)
		}
		logger.Log(entry)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
