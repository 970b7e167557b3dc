package invoicing

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockdesk/stockdesk/internal/alerts"
	"github.com/stockdesk/stockdesk/internal/catalog"
	"github.com/stockdesk/stockdesk/internal/platform/db"
)

// Repository defines invoice persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CustomerActive(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, filters ListFilters) ([]Invoice, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Invoice, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	ItemsFor(ctx context.Context, invoiceIDs []int64) (map[int64][]Item, error)
}

// HeaderStore is the row-locked invoice access payments use inside their
// own transactions.
type HeaderStore interface {
	GetForUpdate(ctx context.Context, id int64) (Invoice, error)
	SetStatus(ctx context.Context, id int64, status Status) error
}

// TxRepository exposes the transactional operations of the service.
type TxRepository interface {
	HeaderStore
	CustomerActive(ctx context.Context, id int64) (bool, error)
	Insert(ctx context.Context, inv Invoice) (Invoice, error)
	Update(ctx context.Context, inv Invoice) (Invoice, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	Items(ctx context.Context, invoiceID int64) ([]Item, error)
	Delete(ctx context.Context, id int64) error
	Stock() catalog.StockStore
	Alerts() alerts.Store
}

const invoiceColumns = `i.id, COALESCE(i.reference, ''), i.type, i.date, i.due_date, i.status, i.total, i.notes,
	i.customer_id, i.applied_to_stock, i.created_at, i.updated_at`

func scanInvoice(row pgx.Row, extra ...any) (Invoice, error) {
	var inv Invoice
	dest := []any{&inv.ID, &inv.Reference, &inv.Type, &inv.Date, &inv.DueDate, &inv.Status, &inv.Total, &inv.Notes,
		&inv.CustomerID, &inv.AppliedToStock, &inv.CreatedAt, &inv.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return inv, err
}

// Store implements HeaderStore on a pool or transaction.
type Store struct {
	db db.DBTX
}

// NewStore binds a Store to q.
func NewStore(q db.DBTX) *Store {
	return &Store{db: q}
}

// GetForUpdate loads an invoice header and holds its row lock. The lock is
// taken with a no-op UPDATE so a RepeatableRead transaction queued behind it
// fails with a serialization error and is retried on a fresh snapshot, even
// when the holder commits without touching the header.
func (s *Store) GetForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(s.db.QueryRow(ctx, `UPDATE invoices AS i SET updated_at=i.updated_at WHERE i.id=$1 RETURNING `+invoiceColumns, id))
}

func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE invoices SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CustomerActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := s.db.QueryRow(ctx, `SELECT is_active FROM customers WHERE id=$1`, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return active, err
}

func (s *Store) Insert(ctx context.Context, inv Invoice) (Invoice, error) {
	return scanInvoice(s.db.QueryRow(ctx, `INSERT INTO invoices AS i (type, date, due_date, status, total, notes, customer_id, applied_to_stock)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+invoiceColumns,
		inv.Type, inv.Date, inv.DueDate, inv.Status, inv.Total, inv.Notes, inv.CustomerID, inv.AppliedToStock))
}

func (s *Store) Update(ctx context.Context, inv Invoice) (Invoice, error) {
	return scanInvoice(s.db.QueryRow(ctx, `UPDATE invoices AS i SET reference=NULLIF($2, ''), type=$3, date=$4, due_date=$5, status=$6,
	notes=$7, applied_to_stock=$8, updated_at=NOW()
WHERE i.id=$1 RETURNING `+invoiceColumns,
		inv.ID, inv.Reference, inv.Type, inv.Date, inv.DueDate, inv.Status, inv.Notes, inv.AppliedToStock))
}

func (s *Store) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO invoice_items (invoice_id, product_id, quantity, unit_price, total_price)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, item.InvoiceID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice).Scan(&item.ID)
	return item, err
}

func (s *Store) Items(ctx context.Context, invoiceID int64) ([]Item, error) {
	byInvoice, err := s.itemsFor(ctx, []int64{invoiceID})
	if err != nil {
		return nil, err
	}
	return byInvoice[invoiceID], nil
}

// Delete removes the items then the invoice. Payments go with the invoice.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id=$1`, id); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM invoices WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Stock() catalog.StockStore {
	return catalog.NewStore(s.db)
}

func (s *Store) Alerts() alerts.Store {
	return alerts.NewStore(s.db)
}

func (s *Store) itemsFor(ctx context.Context, invoiceIDs []int64) (map[int64][]Item, error) {
	rows, err := s.db.Query(ctx, `SELECT it.id, it.invoice_id, it.product_id, it.quantity, it.unit_price, it.total_price,
	p.id, p.name, p.reference
FROM invoice_items it LEFT JOIN products p ON p.id = it.product_id
WHERE it.invoice_id = ANY($1) ORDER BY it.id`, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]Item, len(invoiceIDs))
	for rows.Next() {
		var (
			it        Item
			productID *int64
			name      *string
			reference *string
		)
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.TotalPrice,
			&productID, &name, &reference); err != nil {
			return nil, err
		}
		if productID != nil {
			it.Product = &ProductSummary{ID: *productID, Name: *name, Reference: *reference}
		}
		out[it.InvoiceID] = append(out[it.InvoiceID], it)
	}
	return out, rows.Err()
}

type repository struct {
	*Store
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{Store: NewStore(pool), pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{Store: NewStore(tx), pool: r.pool})
	})
}

const listSQL = `SELECT ` + invoiceColumns + `, c.id, c.name, c.email, c.phone, c.address
FROM invoices i JOIN customers c ON c.id = i.customer_id`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Invoice, error) {
	query := listSQL + ` WHERE TRUE`
	args := []any{}
	argCount := 0

	if filters.Type != "" {
		argCount++
		query += ` AND i.type = $` + strconv.Itoa(argCount)
		args = append(args, filters.Type)
	}
	if filters.Status != "" {
		argCount++
		query += ` AND i.status = $` + strconv.Itoa(argCount)
		args = append(args, filters.Status)
	}
	if filters.CustomerID > 0 {
		argCount++
		query += ` AND i.customer_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.CustomerID)
	}
	if filters.MinTotal != nil {
		argCount++
		query += ` AND i.total >= $` + strconv.Itoa(argCount)
		args = append(args, *filters.MinTotal)
	}
	if filters.MaxTotal != nil {
		argCount++
		query += ` AND i.total <= $` + strconv.Itoa(argCount)
		args = append(args, *filters.MaxTotal)
	}
	if filters.DateFrom != nil {
		argCount++
		query += ` AND i.date >= $` + strconv.Itoa(argCount)
		args = append(args, *filters.DateFrom)
	}
	if filters.DateTo != nil {
		argCount++
		query += ` AND i.date <= $` + strconv.Itoa(argCount)
		args = append(args, *filters.DateTo)
	}
	query += ` ORDER BY i.created_at DESC, i.id DESC`
	return r.query(ctx, query, args...)
}

func (r *repository) ListByCustomer(ctx context.Context, customerID int64) ([]Invoice, error) {
	return r.query(ctx, listSQL+` WHERE i.customer_id = $1 ORDER BY i.date DESC, i.id DESC`, customerID)
}

func (r *repository) Get(ctx context.Context, id int64) (Invoice, error) {
	invoices, err := r.query(ctx, listSQL+` WHERE i.id = $1`, id)
	if err != nil {
		return Invoice{}, err
	}
	if len(invoices) == 0 {
		return Invoice{}, ErrNotFound
	}
	return invoices[0], nil
}

func (r *repository) ItemsFor(ctx context.Context, invoiceIDs []int64) (map[int64][]Item, error) {
	return r.itemsFor(ctx, invoiceIDs)
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := []Invoice{}
	for rows.Next() {
		var c CustomerSummary
		inv, err := scanInvoice(rows, &c.ID, &c.Name, &c.Email, &c.Phone, &c.Address)
		if err != nil {
			return nil, err
		}
		inv.Customer = &c
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
