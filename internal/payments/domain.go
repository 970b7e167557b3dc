package payments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockdesk/stockdesk/internal/invoicing"
	"github.com/stockdesk/stockdesk/internal/platform/httpx"
)

// Method is how a payment was settled.
type Method string

const (
	MethodCash     Method = "cash"
	MethodCheck    Method = "check"
	MethodCard     Method = "card"
	MethodTransfer Method = "transfer"
	MethodOther    Method = "other"
)

var (
	ErrNotFound        = fmt.Errorf("%w: payment", httpx.ErrNotFound)
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", httpx.ErrValidation)
	ErrAmountPrecision = fmt.Errorf("%w: amount has more than 2 decimals", httpx.ErrValidation)
	ErrQuotePayment    = fmt.Errorf("%w: payment forbidden on a quote", httpx.ErrValidation)
	ErrAlreadyPaid     = fmt.Errorf("%w: already paid", httpx.ErrValidation)
	ErrInvoiceNotFound = invoicing.ErrNotFound
)

// Payment is money received against one invoice.
type Payment struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoiceId"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date"`
	Method      Method          `json:"method"`
	Notes       string          `json:"notes"`
	CreatedAt   time.Time       `json:"createdAt"`
	Invoice     *InvoiceSummary `json:"Invoice,omitempty"`
}

type InvoiceSummary struct {
	ID         int64                      `json:"id"`
	Reference  string                     `json:"reference"`
	Type       invoicing.Type             `json:"type"`
	Status     invoicing.Status           `json:"status"`
	Total      decimal.Decimal            `json:"total"`
	CustomerID int64                      `json:"customerId"`
	Customer   *invoicing.CustomerSummary `json:"Customer,omitempty"`
}

type CreatePaymentRequest struct {
	InvoiceID   int64           `json:"invoiceId" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Method      Method          `json:"method" validate:"omitempty,oneof=cash check card transfer other"`
	PaymentDate *time.Time      `json:"payment_date,omitempty"`
	Notes       string          `json:"notes"`
}

// UpdatePaymentRequest patches a payment; nil fields are left untouched.
type UpdatePaymentRequest struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Method      *Method          `json:"method,omitempty" validate:"omitempty,oneof=cash check card transfer other"`
	PaymentDate *time.Time       `json:"payment_date,omitempty"`
	Notes       *string          `json:"notes,omitempty"`
}

type ListFilters struct {
	CustomerID int64
	Method     Method
	DateFrom   *time.Time
	DateTo     *time.Time
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
}

// CreateResult is returned after recording a payment.
type CreateResult struct {
	Message   string          `json:"message"`
	Payment   Payment         `json:"payment"`
	TotalPaid decimal.Decimal `json:"totalPaid"`
}

// Recompute describes the outcome of a status recomputation.
type Recompute struct {
	TotalPaid decimal.Decimal
	Status    invoicing.Status
	Changed   bool
}

// StatusFor derives the payment status of an invoice from what was paid.
// Partially paid invoices stay pending.
func StatusFor(total, paid decimal.Decimal) invoicing.Status {
	if total.Sub(paid).LessThanOrEqual(decimal.Zero) {
		return invoicing.StatusPaid
	}
	return invoicing.StatusPending
}
