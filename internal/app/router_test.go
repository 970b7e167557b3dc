package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockdesk/stockdesk/internal/alerts"
	"github.com/stockdesk/stockdesk/internal/auth"
	"github.com/stockdesk/stockdesk/internal/catalog"
	"github.com/stockdesk/stockdesk/internal/customers"
	"github.com/stockdesk/stockdesk/internal/invoicing"
	"github.com/stockdesk/stockdesk/internal/observability"
	"github.com/stockdesk/stockdesk/internal/payments"
	"github.com/stockdesk/stockdesk/internal/platform/httpx"
	"github.com/stockdesk/stockdesk/jobs"
)

type noUsers struct{}

func (noUsers) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return nil, httpx.ErrNotFound
}

func (noUsers) Create(ctx context.Context, user auth.User) (*auth.User, error) {
	user.ID = 1
	return &user, nil
}

func testRouter(t *testing.T) (http.Handler, *auth.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authService := auth.NewService(noUsers{}, "router-test-secret-0123456789", time.Hour)
	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           &Config{AppEnv: "test", RateLimitPerMin: 1000},
		Metrics:          observability.NewMetrics(),
		RequireAuth:      authService.Middleware,
		AuthHandler:      auth.NewHandler(logger, authService),
		CatalogHandler:   catalog.NewHandler(logger, nil),
		CustomersHandler: customers.NewHandler(logger, nil),
		InvoicesHandler:  invoicing.NewHandler(logger, nil, nil),
		PaymentsHandler:  payments.NewHandler(logger, nil),
		AlertsHandler:    alerts.NewHandler(logger, nil),
		JobHandler:       jobs.NewHandler(nil, logger),
	}), authService
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router, _ := testRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "stockdesk_http_requests_total")
}

func TestAPIRoutesRequireBearerToken(t *testing.T) {
	router, authService := testRouter(t)

	for _, path := range []string{"/api/allproducts", "/api/products", "/api/customers", "/api/invoices/1/pdf", "/api/payments", "/api/alerts/unresolvedAlerts"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	token, err := authService.IssueToken(1, "admin")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthRoutesArePublic(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"username":"admin","password":"s3cret!","CodeSecret":"1234"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestUnknownRouteRendersProblem(t *testing.T) {
	router, _ := testRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	var body httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, http.StatusNotFound, body.Status)
}
