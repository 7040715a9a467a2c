package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if Enabled() {
		t.Fatal("expected tracing disabled")
	}

	ctx, span := StartSpan(context.Background(), "cache.get", AttrCacheKey.String("k"))
	SetSpanError(span, errors.New("boom"))
	span.End()
	if traceID, _ := TraceIDs(ctx); traceID != "" {
		t.Fatal("noop span should not carry a trace id")
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	err := Init(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
	Init(context.Background(), Config{})
}

func TestHTTPMiddleware_RecordsTrace(t *testing.T) {
	ctx := context.Background()
	if err := Init(ctx, Config{Enabled: true, Exporter: "none", SampleRate: 1}); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		Shutdown(ctx)
		Init(ctx, Config{})
	})

	var traceID, spanID string
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID, spanID = TraceIDs(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/cache/k", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if traceID == "" || spanID == "" {
		t.Fatal("expected handler context to carry a recording span")
	}
}
