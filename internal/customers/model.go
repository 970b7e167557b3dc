package customers

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockdesk/stockdesk/internal/platform/httpx"
)

// ErrNotFound is returned for unknown or deactivated customers.
var ErrNotFound = fmt.Errorf("%w: customer", httpx.ErrNotFound)

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InvoiceFact is the slice of an invoice that statistics need.
type InvoiceFact struct {
	ID     int64
	Type   string
	Status string
	Total  decimal.Decimal
	Date   time.Time
}

// PaymentFact is the slice of a payment that statistics need.
type PaymentFact struct {
	ID     int64
	Amount decimal.Decimal
	Method string
	Date   time.Time
}

// Stats aggregates a customer's billing history.
type Stats struct {
	TotalInvoices int                        `json:"totalInvoices"`
	TotalAmount   decimal.Decimal            `json:"totalAmount"`
	TotalPaid     decimal.Decimal            `json:"totalPaid"`
	TotalPending  decimal.Decimal            `json:"totalPending"`
	LastInvoice   *LastInvoice               `json:"lastInvoice"`
	LastPayment   *LastPayment               `json:"lastPayment"`
	ByType        map[string]int             `json:"byType"`
	ByStatus      map[string]int             `json:"byStatus"`
	ByMethod      map[string]decimal.Decimal `json:"byMethod"`
}

type LastInvoice struct {
	ID    int64           `json:"id"`
	Type  string          `json:"type"`
	Total decimal.Decimal `json:"total"`
	Date  time.Time       `json:"date"`
}

type LastPayment struct {
	ID     int64           `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
	Date   time.Time       `json:"date"`
}

// StatsResponse pairs the customer with its statistics.
type StatsResponse struct {
	Customer Customer `json:"customer"`
	Stats    Stats    `json:"stats"`
}
