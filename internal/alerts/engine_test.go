package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	alerts []Alert
	nextID int64
}

func (s *memoryStore) FindUnresolved(ctx context.Context, productID int64) (Alert, bool, error) {
	for _, a := range s.alerts {
		if a.ProductID == productID && !a.Resolved {
			return a, true, nil
		}
	}
	return Alert{}, false, nil
}

func (s *memoryStore) Insert(ctx context.Context, alert Alert) (Alert, error) {
	s.nextID++
	alert.ID = s.nextID
	s.alerts = append(s.alerts, alert)
	return alert, nil
}

func (s *memoryStore) Escalate(ctx context.Context, id int64, typ Type, message string) error {
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Type = typ
			s.alerts[i].Message = message
		}
	}
	return nil
}

func (s *memoryStore) ResolveForProduct(ctx context.Context, productID int64, at time.Time) (int64, error) {
	var n int64
	for i := range s.alerts {
		if s.alerts[i].ProductID == productID && !s.alerts[i].Resolved {
			s.alerts[i].Resolved = true
			resolvedAt := at
			s.alerts[i].ResolvedAt = &resolvedAt
			n++
		}
	}
	return n, nil
}

func TestTypeForAndMessage(t *testing.T) {
	require.Equal(t, TypeOutOfStock, TypeFor(0))
	require.Equal(t, TypeOutOfStock, TypeFor(-3))
	require.Equal(t, TypeLowStock, TypeFor(2))
	require.Equal(t, "Stock faible: Filtre à huile (2)", Message("Filtre à huile", 2))
}

func TestEnsureAlertCreatesOnce(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	first, created, err := EnsureAlert(ctx, store, 7, TypeLowStock, Message("Bougie", 3), now)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := EnsureAlert(ctx, store, 7, TypeLowStock, Message("Bougie", 2), now)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, store.alerts, 1)
}

func TestEnsureAlertEscalatesToOutOfStock(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	now := time.Now()

	_, _, err := EnsureAlert(ctx, store, 7, TypeLowStock, Message("Bougie", 3), now)
	require.NoError(t, err)
	alert, created, err := EnsureAlert(ctx, store, 7, TypeOutOfStock, Message("Bougie", 0), now)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, TypeOutOfStock, alert.Type)
	require.Equal(t, TypeOutOfStock, store.alerts[0].Type)
	require.Len(t, store.alerts, 1)
}

func TestEvaluateResolvesWhenStockRecovers(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	created, resolved, err := Evaluate(ctx, store, StockLevel{ProductID: 1, Name: "Courroie", Quantity: 8, Threshold: 10}, now)
	require.NoError(t, err)
	require.NotNil(t, created)
	require.Zero(t, resolved)

	created, resolved, err = Evaluate(ctx, store, StockLevel{ProductID: 1, Name: "Courroie", Quantity: 12, Threshold: 10}, now)
	require.NoError(t, err)
	require.Nil(t, created)
	require.EqualValues(t, 1, resolved)
	require.True(t, store.alerts[0].Resolved)
	require.Equal(t, now, *store.alerts[0].ResolvedAt)

	// Exactly at threshold counts as recovered.
	_, _, err = Evaluate(ctx, store, StockLevel{ProductID: 1, Name: "Courroie", Quantity: 9, Threshold: 10}, now)
	require.NoError(t, err)
	_, resolved, err = Evaluate(ctx, store, StockLevel{ProductID: 1, Name: "Courroie", Quantity: 10, Threshold: 10}, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, resolved)
}
