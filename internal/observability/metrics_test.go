package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/invoices")

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `stockdesk_http_requests_total{code="418",route="/api/invoices"} 1`)
	require.Contains(t, body, `stockdesk_http_request_duration_seconds_bucket{route="/api/invoices"`)
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.InvoiceCreated("invoice")
	metrics.InvoiceCreated("invoice")
	metrics.AlertRaised("out_of_stock")
	metrics.PaymentRecorded("create")
	metrics.InvoiceStatusChanged("paid")

	body := scrape(t, metrics)
	require.Contains(t, body, `stockdesk_invoices_created_total{type="invoice"} 2`)
	require.Contains(t, body, `stockdesk_stock_alerts_raised_total{type="out_of_stock"} 1`)
	require.Contains(t, body, `stockdesk_payments_total{op="create"} 1`)
	require.True(t, strings.Contains(body, `stockdesk_invoice_status_changes_total{status="paid"} 1`))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.InvoiceCreated("quote")
	m.AlertRaised("low_stock")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	require.NotNil(t, m.Middleware(next))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestTracingMiddlewarePassesThrough(t *testing.T) {
	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/payments", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
}
