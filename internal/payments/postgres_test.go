package payments

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/stockdesk/stockdesk/internal/invoicing"
	"github.com/stockdesk/stockdesk/internal/platform/db"
)

func newPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	require.NoError(t, db.Migrate(dsn, true))
	pool, err := db.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedInvoice(t *testing.T, pool *pgxpool.Pool, total string) int64 {
	t.Helper()
	ctx := context.Background()
	var customerID, invoiceID int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO customers (name) VALUES ('Garage Test') RETURNING id`).Scan(&customerID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO invoices (type, status, total, customer_id) VALUES ('invoice', 'pending', $1, $2) RETURNING id`,
		total, customerID).Scan(&invoiceID))
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM invoices WHERE id=$1`, invoiceID)
		_, _ = pool.Exec(ctx, `DELETE FROM customers WHERE id=$1`, customerID)
	})
	return invoiceID
}

func invoiceStatus(t *testing.T, pool *pgxpool.Pool, id int64) invoicing.Status {
	t.Helper()
	var status invoicing.Status
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT status FROM invoices WHERE id=$1`, id).Scan(&status))
	return status
}

// A payment queued behind a partial payment on the same invoice must see
// that payment once it gets the lock.
func TestQueuedPaymentSeesCommittedPartialPayment(t *testing.T) {
	pool := newPostgres(t)
	ctx := context.Background()
	invoiceID := seedInvoice(t, pool, "100")
	svc := NewService(NewRepository(pool), nil, nil, nil)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	_, err = invoicing.NewStore(tx).GetForUpdate(ctx, invoiceID)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO payments (invoice_id, amount) VALUES ($1, 50)`, invoiceID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Create(ctx, CreatePaymentRequest{InvoiceID: invoiceID, Amount: amount("50")})
		done <- err
	}()

	require.Eventually(t, func() bool {
		var waiting int
		err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM pg_stat_activity WHERE wait_event_type = 'Lock' AND datname = current_database()`).Scan(&waiting)
		return err == nil && waiting > 0
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, tx.Commit(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("payment did not complete")
	}
	require.Equal(t, invoicing.StatusPaid, invoiceStatus(t, pool, invoiceID))
}

func TestConcurrentPartialPaymentsSettleInvoice(t *testing.T) {
	pool := newPostgres(t)
	ctx := context.Background()
	svc := NewService(NewRepository(pool), nil, nil, nil)

	for i := 0; i < 10; i++ {
		invoiceID := seedInvoice(t, pool, "100")
		errs := make(chan error, 2)
		for j := 0; j < 2; j++ {
			go func() {
				_, err := svc.Create(ctx, CreatePaymentRequest{InvoiceID: invoiceID, Amount: amount("50")})
				errs <- err
			}()
		}
		require.NoError(t, <-errs)
		require.NoError(t, <-errs)
		require.Equal(t, invoicing.StatusPaid, invoiceStatus(t, pool, invoiceID))
	}
}
