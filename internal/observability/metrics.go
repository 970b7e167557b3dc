package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus collectors for the HTTP surface and the
// invoicing domain.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	invoicesTotal   *prometheus.CounterVec
	paymentsTotal   *prometheus.CounterVec
	alertsRaised    *prometheus.CounterVec
	statusChanges   *prometheus.CounterVec
}

// NewMetrics initialises the registry and collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockdesk_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockdesk_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockdesk_invoices_created_total",
		Help: "Invoices and quotes created.",
	}, []string{"type"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockdesk_payments_total",
		Help: "Payment mutations by operation.",
	}, []string{"op"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockdesk_stock_alerts_raised_total",
		Help: "Stock alerts created by type.",
	}, []string{"type"})
	status := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockdesk_invoice_status_changes_total",
		Help: "Invoice status transitions written by the payment ledger.",
	}, []string{"status"})
	registry.MustRegister(requests, duration, invoices, payments, alerts, status)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		invoicesTotal:   invoices,
		paymentsTotal:   payments,
		alertsRaised:    alerts,
		statusChanges:   status,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for extra collectors (job metrics).
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// InvoiceCreated counts a created invoice or quote.
func (m *Metrics) InvoiceCreated(kind string) {
	if m == nil {
		return
	}
	m.invoicesTotal.WithLabelValues(kind).Inc()
}

// PaymentRecorded counts a payment create/update/delete.
func (m *Metrics) PaymentRecorded(op string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(op).Inc()
}

// AlertRaised counts a newly created stock alert.
func (m *Metrics) AlertRaised(kind string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(kind).Inc()
}

// InvoiceStatusChanged counts a persisted status transition.
func (m *Metrics) InvoiceStatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
