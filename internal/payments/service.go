package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stockdesk/stockdesk/internal/invoicing"
	"github.com/stockdesk/stockdesk/internal/observability"
	"github.com/stockdesk/stockdesk/internal/platform/httpx"
	"github.com/stockdesk/stockdesk/internal/shared"
)

// Service is the payment ledger. Every mutation recomputes the invoice
// status in the same transaction while holding the invoice row lock.
type Service struct {
	repo     Repository
	audit    shared.AuditRecorder
	metrics  *observability.Metrics
	logger   *slog.Logger
	validate *validator.Validate
	clock    func() time.Time
}

// NewService constructs the ledger. audit and metrics may be nil.
func NewService(repo Repository, audit shared.AuditRecorder, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		validate: validator.New(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Create records a payment against an unpaid invoice.
func (s *Service) Create(ctx context.Context, req CreatePaymentRequest) (res CreateResult, err error) {
	ctx, span := observability.StartSpan(ctx, "payments.Create", attribute.Int64("invoice.id", req.InvoiceID))
	defer func() { observability.EndSpan(span, err) }()

	if !req.Amount.IsPositive() {
		return CreateResult{}, ErrInvalidAmount
	}
	if !httpx.FitsMoney(req.Amount) {
		return CreateResult{}, ErrAmountPrecision
	}
	if err := httpx.Validate(s.validate, req); err != nil {
		return CreateResult{}, err
	}
	if req.Method == "" {
		req.Method = MethodCash
	}
	paidAt := s.clock()
	if req.PaymentDate != nil {
		paidAt = req.PaymentDate.UTC()
	}

	var outcome Recompute
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.Invoices().GetForUpdate(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Type != invoicing.TypeInvoice {
			return ErrQuotePayment
		}
		if inv.Status == invoicing.StatusPaid {
			return ErrAlreadyPaid
		}
		res.Payment, err = tx.Insert(ctx, Payment{
			InvoiceID:   req.InvoiceID,
			Amount:      req.Amount,
			PaymentDate: paidAt,
			Method:      req.Method,
			Notes:       req.Notes,
		})
		if err != nil {
			return err
		}
		outcome, err = recompute(ctx, tx, inv)
		return err
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("create payment: %w", err)
	}
	s.after(ctx, "create", res.Payment.ID, req.InvoiceID, outcome)
	res.Message = "Paiement enregistré"
	res.TotalPaid = outcome.TotalPaid
	return res, nil
}

// Update patches a payment and recomputes its invoice status.
func (s *Service) Update(ctx context.Context, id int64, req UpdatePaymentRequest) (p Payment, err error) {
	ctx, span := observability.StartSpan(ctx, "payments.Update", attribute.Int64("payment.id", id))
	defer func() { observability.EndSpan(span, err) }()

	if req.Amount != nil && !req.Amount.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}
	if req.Amount != nil && !httpx.FitsMoney(*req.Amount) {
		return Payment{}, ErrAmountPrecision
	}
	if err := httpx.Validate(s.validate, req); err != nil {
		return Payment{}, err
	}

	var outcome Recompute
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		inv, err := tx.Invoices().GetForUpdate(ctx, current.InvoiceID)
		if err != nil {
			return err
		}
		next := current
		if req.Amount != nil {
			next.Amount = *req.Amount
		}
		if req.Method != nil {
			next.Method = *req.Method
		}
		if req.PaymentDate != nil {
			next.PaymentDate = req.PaymentDate.UTC()
		}
		if req.Notes != nil {
			next.Notes = *req.Notes
		}
		if p, err = tx.Update(ctx, next); err != nil {
			return err
		}
		outcome, err = recompute(ctx, tx, inv)
		return err
	})
	if err != nil {
		return Payment{}, fmt.Errorf("update payment: %w", err)
	}
	s.after(ctx, "update", id, p.InvoiceID, outcome)
	return p, nil
}

// Delete removes a payment and recomputes its invoice status.
func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := observability.StartSpan(ctx, "payments.Delete", attribute.Int64("payment.id", id))
	defer func() { observability.EndSpan(span, err) }()

	var (
		invoiceID int64
		outcome   Recompute
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		invoiceID = current.InvoiceID
		inv, err := tx.Invoices().GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		outcome, err = recompute(ctx, tx, inv)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	s.after(ctx, "delete", id, invoiceID, outcome)
	return nil
}

// RecomputeInvoiceStatus re-derives the status of one invoice from its
// payments. It reports whether the status was written.
func (s *Service) RecomputeInvoiceStatus(ctx context.Context, invoiceID int64) (Recompute, error) {
	var outcome Recompute
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.Invoices().GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		outcome, err = recompute(ctx, tx, inv)
		return err
	})
	if err != nil {
		return Recompute{}, fmt.Errorf("recompute invoice status: %w", err)
	}
	if outcome.Changed {
		s.metrics.InvoiceStatusChanged(string(outcome.Status))
	}
	return outcome, nil
}

// List returns payments matching filters, latest payment date first.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Payment, error) {
	return s.repo.List(ctx, filters)
}

// ListByInvoice returns the payments of one invoice.
func (s *Service) ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListByInvoice(ctx, invoiceID)
}

// Get loads a payment with its invoice and customer.
func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	return s.repo.Get(ctx, id)
}

// recompute expects inv to be locked by the caller. Quotes and cancelled
// invoices keep their status.
func recompute(ctx context.Context, tx TxRepository, inv invoicing.Invoice) (Recompute, error) {
	paid, err := tx.SumForInvoice(ctx, inv.ID)
	if err != nil {
		return Recompute{}, err
	}
	out := Recompute{TotalPaid: paid, Status: inv.Status}
	if inv.Type != invoicing.TypeInvoice || inv.Status == invoicing.StatusCancelled {
		return out, nil
	}
	next := StatusFor(inv.Total, paid)
	if next == inv.Status {
		return out, nil
	}
	if err := tx.Invoices().SetStatus(ctx, inv.ID, next); err != nil {
		return Recompute{}, err
	}
	out.Status = next
	out.Changed = true
	return out, nil
}

func (s *Service) after(ctx context.Context, op string, paymentID, invoiceID int64, outcome Recompute) {
	s.metrics.PaymentRecorded(op)
	if outcome.Changed {
		s.metrics.InvoiceStatusChanged(string(outcome.Status))
		s.logger.Info("invoice status changed",
			slog.Int64("invoice_id", invoiceID), slog.String("status", string(outcome.Status)))
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   "payment." + op,
		Entity:   "payment",
		EntityID: strconv.FormatInt(paymentID, 10),
		Meta:     map[string]any{"invoice_id": invoiceID, "total_paid": outcome.TotalPaid.String()},
	}); err != nil {
		s.logger.Warn("audit payment", slog.String("op", op), slog.Any("error", err))
	}
}
