package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockdesk/stockdesk/internal/platform/httpx"
)

var (
	// ErrNotFound is returned for unknown or deactivated products.
	ErrNotFound = fmt.Errorf("%w: product", httpx.ErrNotFound)
	// ErrDuplicateReference is returned when a reference is already used.
	ErrDuplicateReference = fmt.Errorf("%w: product reference already exists", httpx.ErrDuplicate)
)

// Product is a stocked catalog item. Products are deactivated, never deleted.
type Product struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"name"`
	Reference            string          `json:"reference"`
	Category             string          `json:"category"`
	Brand                string          `json:"brand"`
	Origin               string          `json:"origin"`
	CompatibleReferences string          `json:"compatible_references"`
	Description          string          `json:"description"`
	QuantityInStock      int             `json:"quantity_in_stock"`
	Threshold            int             `json:"threshold"`
	PurchasePrice        decimal.Decimal `json:"purchase_price"`
	SellingPrice         decimal.Decimal `json:"selling_price"`
	IsActive             bool            `json:"is_active"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// CreateProductRequest is the payload for new products.
type CreateProductRequest struct {
	Name                 string          `json:"name" validate:"required,max=200"`
	Reference            string          `json:"reference" validate:"required,max=100"`
	Category             string          `json:"category" validate:"max=100"`
	Brand                string          `json:"brand" validate:"max=100"`
	Origin               string          `json:"origin" validate:"max=100"`
	CompatibleReferences string          `json:"compatible_references"`
	Description          string          `json:"description"`
	QuantityInStock      int             `json:"quantity_in_stock"`
	Threshold            int             `json:"threshold" validate:"gte=1"`
	PurchasePrice        decimal.Decimal `json:"purchase_price"`
	SellingPrice         decimal.Decimal `json:"selling_price"`
}

// UpdateProductRequest patches a product; nil fields are left untouched.
type UpdateProductRequest struct {
	Name                 *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Reference            *string          `json:"reference,omitempty" validate:"omitempty,min=1,max=100"`
	Category             *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	Brand                *string          `json:"brand,omitempty" validate:"omitempty,max=100"`
	Origin               *string          `json:"origin,omitempty" validate:"omitempty,max=100"`
	CompatibleReferences *string          `json:"compatible_references,omitempty"`
	Description          *string          `json:"description,omitempty"`
	QuantityInStock      *int             `json:"quantity_in_stock,omitempty"`
	Threshold            *int             `json:"threshold,omitempty" validate:"omitempty,gte=1"`
	PurchasePrice        *decimal.Decimal `json:"purchase_price,omitempty"`
	SellingPrice         *decimal.Decimal `json:"selling_price,omitempty"`
	IsActive             *bool            `json:"is_active,omitempty"`
}

// ListFilters narrows the active product listing.
type ListFilters struct {
	Name     string
	Category string
	Brand    string
	MinStock *int64
	MaxStock *int64
}

// LowStockResult is returned by the low-stock listing.
type LowStockResult struct {
	Count    int       `json:"count"`
	Products []Product `json:"products"`
}

func checkPrices(prices ...decimal.Decimal) error {
	for _, p := range prices {
		if p.IsNegative() {
			return fmt.Errorf("%w: prices must not be negative", httpx.ErrValidation)
		}
		if !httpx.FitsMoney(p) {
			return fmt.Errorf("%w: prices have at most 2 decimals", httpx.ErrValidation)
		}
	}
	return nil
}
