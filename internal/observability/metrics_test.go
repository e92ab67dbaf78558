package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	NewEngineMetrics(metrics.Registerer()).ObserveRejected("lpo.approve", "forbidden")

	body := scrape(t, metrics)
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, `lpo_operations_rejected_total{kind="forbidden",op="lpo.approve"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/lpo/orders/{id}")

	req := httptest.NewRequest(http.MethodGet, "/api/lpo/orders/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.True(t, strings.Contains(body, `hub_http_requests_total{code="418",method="GET",route="/api/lpo/orders/{id}"} 1`), body)
	assert.Contains(t, body, `hub_http_request_duration_seconds_bucket{route="/api/lpo/orders/{id}"`)
	assert.Contains(t, body, "hub_http_requests_in_flight 0")
}

func TestMetricsMiddlewareUnmatchedRoute(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/nowhere", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodPost, "unmatched", "404")))
}

func TestEngineMetrics(t *testing.T) {
	metrics := NewMetrics()
	engine := NewEngineMetrics(metrics.Registerer())

	engine.ObserveTransition("", "DRAFT")
	engine.ObserveTransition("DRAFT", "PENDING_DEPT_APPROVAL")
	engine.ObserveTransition("DRAFT", "PENDING_DEPT_APPROVAL")
	engine.ObserveReceipt(2, 5)
	engine.ObserveReceipt(1, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(engine.transitions.WithLabelValues("NEW", "DRAFT")))
	assert.Equal(t, 2.0, testutil.ToFloat64(engine.transitions.WithLabelValues("DRAFT", "PENDING_DEPT_APPROVAL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(engine.receipts))
	assert.Equal(t, 3.0, testutil.ToFloat64(engine.lines))
	assert.Equal(t, 5.0, testutil.ToFloat64(engine.assets))
}

func TestNilMetricsHandler(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, m.Middleware(next))
}
