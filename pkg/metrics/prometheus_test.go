package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetLoadPool(t *testing.T) {
	SetLoadPool(true, 7, 90)

	if got := testutil.ToFloat64(loadActive); got != 1 {
		t.Errorf("expected active gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(loadWorkers); got != 7 {
		t.Errorf("expected 7 workers, got %v", got)
	}
	if got := testutil.ToFloat64(loadUtilization); got != 90 {
		t.Errorf("expected utilization 90, got %v", got)
	}

	SetLoadPool(false, 0, 90)

	if got := testutil.ToFloat64(loadActive); got != 0 {
		t.Errorf("expected active gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(loadUtilization); got != 0 {
		t.Errorf("expected utilization reset to 0, got %v", got)
	}
}

func TestHealthMetrics(t *testing.T) {
	before := testutil.ToFloat64(healthToggles)

	SetHealthStatus(false)
	IncHealthToggles()

	if got := testutil.ToFloat64(healthStatus); got != 0 {
		t.Errorf("expected health gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(healthToggles) - before; got != 1 {
		t.Errorf("expected one toggle recorded, got %v", got)
	}

	SetHealthStatus(true)
	if got := testutil.ToFloat64(healthStatus); got != 1 {
		t.Errorf("expected health gauge 1, got %v", got)
	}
}

func TestRequestMetricsMiddleware(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RequestMetricsMiddleware)
	router.HandleFunc("/api/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)

	counter := requestsTotal.WithLabelValues("/api/things/{id}", http.MethodGet, "418")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest(http.MethodGet, "/api/things/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status 418, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected one request recorded under the route template, got %v", got)
	}
}

func TestRouteNameUnmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	if got := RouteName(req); got != "unmatched" {
		t.Errorf("expected unmatched, got %s", got)
	}
}
