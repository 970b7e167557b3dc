package alerts

import "time"

// Type classifies how severe a stock shortfall is.
type Type string

const (
	// TypeLowStock flags stock under threshold but still positive.
	TypeLowStock Type = "low_stock"
	// TypeOutOfStock flags stock at or below zero.
	TypeOutOfStock Type = "out_of_stock"
)

// Alert is a persisted stock alert. Alerts are resolved, never deleted.
type Alert struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"productId"`
	Type       Type            `json:"type"`
	Message    string          `json:"message"`
	Resolved   bool            `json:"resolved"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	Product    *ProductSummary `json:"Product,omitempty"`
}

// ProductSummary is the product projection attached to alert listings.
type ProductSummary struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Reference       string `json:"reference"`
	QuantityInStock int    `json:"quantity_in_stock"`
	Threshold       int    `json:"threshold"`
}

// StockLevel is the minimum product state needed to evaluate alerts.
type StockLevel struct {
	ProductID int64
	Name      string
	Quantity  int
	Threshold int
}

// UnresolvedResult is returned by the unresolved listing.
type UnresolvedResult struct {
	Count  int     `json:"count"`
	Alerts []Alert `json:"alerts"`
}

// ReconcileResult summarises a reconciliation sweep.
type ReconcileResult struct {
	Checked  int `json:"checked"`
	Created  int `json:"created"`
	Resolved int `json:"resolved"`
}
