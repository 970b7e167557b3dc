package invoicing

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stockdesk/stockdesk/internal/shared"
)

func newTestRouter(t *testing.T, repo *memoryRepo, renderer Renderer) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := newTestService(repo, backorder(), Deps{Renderer: renderer})
	h := NewHandler(slog.Default(), svc, shared.NewIdempotencyStore(client, time.Hour))
	r := chi.NewRouter()
	r.Route("/invoices", h.MountRoutes)
	return r
}

const createBody = `{"customerId":1,"type":"invoice","items":[{"productId":10,"quantity":2,"unit_price":"12.50"}]}`

func TestHandlerCreateIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(10, "Filtre", 10, 2)
	router := newTestRouter(t, repo, nil)

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/invoices/", strings.NewReader(createBody))
		req.Header.Set("Idempotency-Key", key)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := send("order-42")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"reference":"FAC-2025-0001"`)

	rr = send("order-42")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Len(t, repo.invoices, 1)
	require.Equal(t, 8, repo.products[10].QuantityInStock)

	rr = send("order-43")
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestHandlerReleasesKeyOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[1] = false
	router := newTestRouter(t, repo, nil)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/invoices/", strings.NewReader(createBody))
		req.Header.Set("Idempotency-Key", "retry-me")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	}
}

func TestHandlerPDF(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(10, "Filtre", 10, 2)
	renderer := &stubRenderer{}
	router := newTestRouter(t, repo, renderer)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/invoices/", strings.NewReader(createBody)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices/1/pdf", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	require.Equal(t, "attachment; filename=facture-FAC-2025-0001.pdf", rr.Header().Get("Content-Disposition"))

	renderer.err = errors.New("connection refused")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices/1/pdf", nil))
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestHandlerReadsAndDeletes(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(10, "Filtre", 10, 2)
	router := newTestRouter(t, repo, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/invoices/", strings.NewReader(createBody)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices/?type=invoice&dateFrom=2025-01-01", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"type":"invoice"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices/?minTotal=abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices/customer/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"InvoiceItems"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/invoices/1", strings.NewReader(`{"notes":"urgent"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"notes":"urgent"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/invoices/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices/1", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
