package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockdesk/stockdesk/internal/platform/httpx"
)

// Type distinguishes billable invoices from quotes.
type Type string

const (
	TypeInvoice Type = "invoice"
	TypeQuote   Type = "quote"
)

// Status is the payment state of a document.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusNone      Status = "nostatus"
)

var (
	ErrNotFound          = fmt.Errorf("%w: invoice", httpx.ErrNotFound)
	ErrCustomerNotFound  = fmt.Errorf("%w: customer", httpx.ErrNotFound)
	ErrUnknownCustomer   = fmt.Errorf("%w: unknown or inactive customer", httpx.ErrValidation)
	ErrNoItems           = fmt.Errorf("%w: at least one item is required", httpx.ErrValidation)
	ErrNegativePrice     = fmt.Errorf("%w: unit_price must be >= 0", httpx.ErrValidation)
	ErrPricePrecision    = fmt.Errorf("%w: unit_price has more than 2 decimals", httpx.ErrValidation)
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", httpx.ErrValidation)
	ErrStockApplied      = fmt.Errorf("%w: stock already applied, invoice cannot become a quote", httpx.ErrValidation)
	ErrRenderFailed      = fmt.Errorf("%w: document rendering", httpx.ErrUpstream)
)

// Invoice is an invoice or quote header. Customer and Items are populated
// by read paths only.
type Invoice struct {
	ID             int64            `json:"id"`
	Reference      string           `json:"reference"`
	Type           Type             `json:"type"`
	Date           time.Time        `json:"date"`
	DueDate        *time.Time       `json:"due_date"`
	Status         Status           `json:"status"`
	Total          decimal.Decimal  `json:"total"`
	Notes          string           `json:"notes"`
	CustomerID     int64            `json:"customerId"`
	AppliedToStock bool             `json:"applied_to_stock"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	Customer       *CustomerSummary `json:"Customer,omitempty"`
	Items          []Item           `json:"InvoiceItems,omitempty"`
}

// Item is a line of an invoice. UnitPrice is the price agreed at creation,
// independent of later catalog changes.
type Item struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoiceId"`
	ProductID  int64           `json:"productId"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Product    *ProductSummary `json:"Product,omitempty"`
}

type CustomerSummary struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type ProductSummary struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Reference string `json:"reference"`
}

// ItemInput is one requested line.
type ItemInput struct {
	ProductID int64           `json:"productId" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CreateInvoiceRequest struct {
	CustomerID int64       `json:"customerId" validate:"required,gt=0"`
	Type       Type        `json:"type" validate:"required,oneof=invoice quote"`
	Date       *time.Time  `json:"date,omitempty"`
	DueDate    *time.Time  `json:"due_date,omitempty"`
	Notes      string      `json:"notes"`
	Items      []ItemInput `json:"items" validate:"dive"`
}

// UpdateInvoiceRequest patches header fields; nil fields are left untouched.
type UpdateInvoiceRequest struct {
	Type    *Type      `json:"type,omitempty" validate:"omitempty,oneof=invoice quote"`
	Status  *Status    `json:"status,omitempty" validate:"omitempty,oneof=pending paid cancelled nostatus"`
	Date    *time.Time `json:"date,omitempty"`
	DueDate *time.Time `json:"due_date,omitempty"`
	Notes   *string    `json:"notes,omitempty"`
}

type ListFilters struct {
	Type       Type
	Status     Status
	CustomerID int64
	MinTotal   *decimal.Decimal
	MaxTotal   *decimal.Decimal
	DateFrom   *time.Time
	DateTo     *time.Time
}

// FormatReference renders the human-readable reference of a document.
func FormatReference(typ Type, year int, id int64) string {
	prefix := "FAC"
	if typ == TypeQuote {
		prefix = "DEV"
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, id)
}

// InitialStatus is the status a new document starts in.
func InitialStatus(typ Type) Status {
	if typ == TypeQuote {
		return StatusNone
	}
	return StatusPending
}

// LineTotal is quantity × unit price.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
