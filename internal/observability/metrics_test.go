package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	NewLedgerMetrics(metrics.Registerer()).DeliveryCreated(2)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "odyssey_field_deliveries_created_total 1")
	assert.Contains(t, body, "odyssey_field_delivery_allocations_total 2")
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := metricsRR.Body.String()
	assert.True(t, strings.Contains(body, `odyssey_field_http_requests_total{code="418",route="/test"} 1`), body)
	assert.Contains(t, body, `odyssey_field_http_request_duration_seconds_bucket{route="/test"`)
	assert.Contains(t, body, "odyssey_field_http_requests_in_flight 0")
}

func TestLedgerMetricsPostingOutcomes(t *testing.T) {
	metrics := NewMetrics()
	m := NewLedgerMetrics(metrics.Registerer())
	m.PostingLine(PostingPosted)
	m.PostingLine(PostingPosted)
	m.PostingLine(PostingSkipped)
	m.DuplicatePosting()

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	assert.Contains(t, body, `odyssey_field_inventory_posting_lines_total{result="posted"} 2`)
	assert.Contains(t, body, `odyssey_field_inventory_posting_lines_total{result="skipped"} 1`)
	assert.Contains(t, body, "odyssey_field_inventory_posting_duplicates_total 1")

	var nilMetrics *LedgerMetrics
	nilMetrics.PostingLine(PostingFailed)
	nilMetrics.DeliveryCreated(1)
}
