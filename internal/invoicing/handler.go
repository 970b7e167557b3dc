package invoicing

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockdesk/stockdesk/internal/platform/httpx"
)

// IdempotencyGuard claims client-supplied request keys.
type IdempotencyGuard interface {
	Reserve(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

const idempotencyModule = "invoices"

// Handler serves invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    IdempotencyGuard
}

// NewHandler constructs a Handler. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyGuard) *Handler {
	return &Handler{logger: logger, service: service, idem: idem}
}

// MountRoutes registers /invoices routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/customer/{customerId}", h.listByCustomer)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/pdf", h.pdf)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		Type:   Type(q.Get("type")),
		Status: Status(q.Get("status")),
	}
	customerID, err := httpx.QueryInt64(r, "customerId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if customerID != nil {
		filters.CustomerID = *customerID
	}
	if filters.MinTotal, err = httpx.QueryDecimal(r, "minTotal"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filters.MaxTotal, err = httpx.QueryDecimal(r, "maxTotal"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filters.DateFrom, err = httpx.QueryDate(r, "dateFrom", false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filters.DateTo, err = httpx.QueryDate(r, "dateTo", true); err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoices, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) listByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.URLID(r, "customerId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoices, err := h.service.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.fail(w, "list customer invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idem != nil {
		if err := h.idem.Reserve(r.Context(), idempotencyModule, key); err != nil {
			h.fail(w, "reserve idempotency key", err)
			return
		}
	}
	inv, err := h.service.Create(r.Context(), req)
	if err != nil {
		if key != "" && h.idem != nil {
			if relErr := h.idem.Release(r.Context(), idempotencyModule, key); relErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		h.fail(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "Invoice created successfully", "invoice": inv})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.fail(w, "update invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Facture supprimée"})
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.RenderPDF(r.Context(), id)
	if err != nil {
		h.fail(w, "render invoice pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+doc.Filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
