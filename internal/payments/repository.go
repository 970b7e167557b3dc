package payments

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockdesk/stockdesk/internal/invoicing"
	"github.com/stockdesk/stockdesk/internal/platform/db"
)

// Repository defines payment persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters) ([]Payment, error)
	ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error)
	Get(ctx context.Context, id int64) (Payment, error)
}

// TxRepository exposes the transactional operations of the ledger.
type TxRepository interface {
	Invoices() invoicing.HeaderStore
	Get(ctx context.Context, id int64) (Payment, error)
	Insert(ctx context.Context, p Payment) (Payment, error)
	Update(ctx context.Context, p Payment) (Payment, error)
	Delete(ctx context.Context, id int64) error
	SumForInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
}

const paymentColumns = `p.id, p.invoice_id, p.amount, p.payment_date, p.method, p.notes, p.created_at`

const detailSQL = `SELECT ` + paymentColumns + `, i.id, COALESCE(i.reference, ''), i.type, i.status, i.total, i.customer_id, c.id, c.name
FROM payments p
JOIN invoices i ON i.id = p.invoice_id
JOIN customers c ON c.id = i.customer_id`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.PaymentDate, &p.Method, &p.Notes, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

func scanDetail(row pgx.Row) (Payment, error) {
	var (
		p   Payment
		inv InvoiceSummary
		c   invoicing.CustomerSummary
	)
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.PaymentDate, &p.Method, &p.Notes, &p.CreatedAt,
		&inv.ID, &inv.Reference, &inv.Type, &inv.Status, &inv.Total, &inv.CustomerID, &c.ID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	inv.Customer = &c
	p.Invoice = &inv
	return p, nil
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Invoices() invoicing.HeaderStore {
	return invoicing.NewStore(r.db)
}

func (r *repository) Get(ctx context.Context, id int64) (Payment, error) {
	return scanDetail(r.db.QueryRow(ctx, detailSQL+` WHERE p.id = $1`, id))
}

func (r *repository) Insert(ctx context.Context, p Payment) (Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `INSERT INTO payments AS p (invoice_id, amount, payment_date, method, notes)
VALUES ($1,$2,$3,$4,$5) RETURNING `+paymentColumns, p.InvoiceID, p.Amount, p.PaymentDate, p.Method, p.Notes))
}

func (r *repository) Update(ctx context.Context, p Payment) (Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `UPDATE payments AS p SET amount=$2, payment_date=$3, method=$4, notes=$5
WHERE p.id=$1 RETURNING `+paymentColumns, p.ID, p.Amount, p.PaymentDate, p.Method, p.Notes))
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SumForInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id=$1`, invoiceID).Scan(&total)
	return total, err
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Payment, error) {
	query := detailSQL + ` WHERE TRUE`
	args := []any{}
	argCount := 0

	if filters.CustomerID > 0 {
		argCount++
		query += ` AND i.customer_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.CustomerID)
	}
	if filters.Method != "" {
		argCount++
		query += ` AND p.method = $` + strconv.Itoa(argCount)
		args = append(args, filters.Method)
	}
	if filters.DateFrom != nil {
		argCount++
		query += ` AND p.payment_date >= $` + strconv.Itoa(argCount)
		args = append(args, *filters.DateFrom)
	}
	if filters.DateTo != nil {
		argCount++
		query += ` AND p.payment_date <= $` + strconv.Itoa(argCount)
		args = append(args, *filters.DateTo)
	}
	if filters.MinAmount != nil {
		argCount++
		query += ` AND p.amount >= $` + strconv.Itoa(argCount)
		args = append(args, *filters.MinAmount)
	}
	if filters.MaxAmount != nil {
		argCount++
		query += ` AND p.amount <= $` + strconv.Itoa(argCount)
		args = append(args, *filters.MaxAmount)
	}
	query += ` ORDER BY p.payment_date DESC, p.id DESC`
	return r.query(ctx, query, args...)
}

func (r *repository) ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return r.query(ctx, detailSQL+` WHERE p.invoice_id = $1 ORDER BY p.payment_date DESC, p.id DESC`, invoiceID)
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]Payment, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Payment{}
	for rows.Next() {
		p, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
