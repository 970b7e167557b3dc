package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockdesk/stockdesk/internal/platform/db"
)

type Repository interface {
	Get(ctx context.Context, id int64) (Customer, error)
	List(ctx context.Context) ([]Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, c Customer) (Customer, error)
	Deactivate(ctx context.Context, id int64) error
	InvoiceFacts(ctx context.Context, customerID int64) ([]InvoiceFact, error)
	PaymentFacts(ctx context.Context, customerID int64) ([]PaymentFact, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const customerColumns = `id, name, email, phone, address, is_active, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context) ([]Customer, error) {
	rows, err := r.db.Query(ctx, `SELECT `+customerColumns+` FROM customers WHERE is_active ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `INSERT INTO customers (name, email, phone, address, is_active)
VALUES ($1,$2,$3,$4,TRUE) RETURNING `+customerColumns, c.Name, c.Email, c.Phone, c.Address))
}

func (r *repository) Update(ctx context.Context, c Customer) (Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `UPDATE customers SET name=$2, email=$3, phone=$4, address=$5, is_active=$6, updated_at=NOW()
WHERE id=$1 RETURNING `+customerColumns, c.ID, c.Name, c.Email, c.Phone, c.Address, c.IsActive))
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InvoiceFacts(ctx context.Context, customerID int64) ([]InvoiceFact, error) {
	rows, err := r.db.Query(ctx, `SELECT id, type, status, total, date FROM invoices WHERE customer_id=$1`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []InvoiceFact{}
	for rows.Next() {
		var f InvoiceFact
		if err := rows.Scan(&f.ID, &f.Type, &f.Status, &f.Total, &f.Date); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *repository) PaymentFacts(ctx context.Context, customerID int64) ([]PaymentFact, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id, p.amount, p.method, p.payment_date
FROM payments p JOIN invoices i ON i.id = p.invoice_id WHERE i.customer_id=$1`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PaymentFact{}
	for rows.Next() {
		var f PaymentFact
		if err := rows.Scan(&f.ID, &f.Amount, &f.Method, &f.Date); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
