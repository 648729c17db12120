package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.EntityOperationsTotal.WithLabelValues("role", "create", "ok").Inc()
	m.VersionConflictsTotal.Inc()
	m.BundleCacheHits.Inc()

	if got := testutil.ToFloat64(m.VersionConflictsTotal); got != 1 {
		t.Errorf("Expected 1 conflict, got %f", got)
	}
	if got := testutil.ToFloat64(m.EntityOperationsTotal.WithLabelValues("role", "create", "ok")); got != 1 {
		t.Errorf("Expected 1 entity op, got %f", got)
	}
}

func TestMetrics_HTTPMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := m.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/acme/roles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(
		http.MethodGet, "/api/v1/tenants/acme/roles", "404"))
	if got != 1 {
		t.Errorf("Expected 1 recorded request, got %f", got)
	}
}

func TestHandler_ServesExposition(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.BundleCacheMisses.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("Expected exposition output")
	}
}
