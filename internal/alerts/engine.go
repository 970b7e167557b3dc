package alerts

import (
	"context"
	"fmt"
	"time"
)

// Store is the alert persistence used inside a caller's transaction.
type Store interface {
	FindUnresolved(ctx context.Context, productID int64) (Alert, bool, error)
	Insert(ctx context.Context, alert Alert) (Alert, error)
	Escalate(ctx context.Context, id int64, typ Type, message string) error
	ResolveForProduct(ctx context.Context, productID int64, at time.Time) (int64, error)
}

// TypeFor picks the alert type for a stock quantity.
func TypeFor(qty int) Type {
	if qty <= 0 {
		return TypeOutOfStock
	}
	return TypeLowStock
}

// Message renders the alert text shown to operators.
func Message(name string, qty int) string {
	return fmt.Sprintf("Stock faible: %s (%d)", name, qty)
}

// EnsureAlert returns the unresolved alert for productID, creating it when
// none exists. At most one unresolved alert exists per product. An existing
// low_stock alert is escalated in place when the product runs out.
func EnsureAlert(ctx context.Context, store Store, productID int64, typ Type, message string, now time.Time) (Alert, bool, error) {
	existing, found, err := store.FindUnresolved(ctx, productID)
	if err != nil {
		return Alert{}, false, fmt.Errorf("find unresolved alert: %w", err)
	}
	if found {
		if existing.Type == TypeLowStock && typ == TypeOutOfStock {
			if err := store.Escalate(ctx, existing.ID, typ, message); err != nil {
				return Alert{}, false, fmt.Errorf("escalate alert: %w", err)
			}
			existing.Type = typ
			existing.Message = message
		}
		return existing, false, nil
	}
	created, err := store.Insert(ctx, Alert{
		ProductID: productID,
		Type:      typ,
		Message:   message,
		CreatedAt: now,
	})
	if err != nil {
		return Alert{}, false, fmt.Errorf("insert alert: %w", err)
	}
	return created, true, nil
}

// Evaluate applies the threshold rule to one product: stock at or above the
// threshold resolves open alerts, stock below it ensures one is open.
// It returns the alert only when a new one was created, plus the number of
// alerts resolved.
func Evaluate(ctx context.Context, store Store, level StockLevel, now time.Time) (*Alert, int64, error) {
	if level.Quantity >= level.Threshold {
		n, err := store.ResolveForProduct(ctx, level.ProductID, now)
		if err != nil {
			return nil, 0, fmt.Errorf("resolve alerts: %w", err)
		}
		return nil, n, nil
	}
	alert, created, err := EnsureAlert(ctx, store, level.ProductID, TypeFor(level.Quantity), Message(level.Name, level.Quantity), now)
	if err != nil || !created {
		return nil, 0, err
	}
	return &alert, 0, nil
}
