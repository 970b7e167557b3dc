package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockdesk/stockdesk/internal/alerts"
	"github.com/stockdesk/stockdesk/internal/platform/db"
)

// Repository defines catalog persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters) ([]Product, error)
	ListAll(ctx context.Context) ([]Product, error)
	LowStock(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	Insert(ctx context.Context, p Product) (Product, error)
	Deactivate(ctx context.Context, id int64) error
}

// StockStore is the row-locked stock access other modules use inside their
// own transactions.
type StockStore interface {
	GetForUpdate(ctx context.Context, id int64) (Product, error)
	SetQuantity(ctx context.Context, id int64, qty int) error
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	StockStore
	Update(ctx context.Context, p Product) (Product, error)
	Alerts() alerts.Store
}

const productColumns = `id, name, reference, category, brand, origin, compatible_references, description,
	quantity_in_stock, threshold, purchase_price, selling_price, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Reference, &p.Category, &p.Brand, &p.Origin, &p.CompatibleReferences, &p.Description,
		&p.QuantityInStock, &p.Threshold, &p.PurchasePrice, &p.SellingPrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// Store implements StockStore and product updates on a pool or transaction.
type Store struct {
	db db.DBTX
}

// NewStore binds a Store to q.
func NewStore(q db.DBTX) *Store {
	return &Store{db: q}
}

// GetForUpdate loads a product and holds its row lock until the transaction ends.
func (s *Store) GetForUpdate(ctx context.Context, id int64) (Product, error) {
	return scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id))
}

// SetQuantity overwrites quantity_in_stock.
func (s *Store) SetQuantity(ctx context.Context, id int64, qty int) error {
	tag, err := s.db.Exec(ctx, `UPDATE products SET quantity_in_stock=$2, updated_at=NOW() WHERE id=$1`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Update writes every mutable column of p.
func (s *Store) Update(ctx context.Context, p Product) (Product, error) {
	updated, err := scanProduct(s.db.QueryRow(ctx, `UPDATE products SET name=$2, reference=$3, category=$4, brand=$5, origin=$6,
	compatible_references=$7, description=$8, quantity_in_stock=$9, threshold=$10, purchase_price=$11, selling_price=$12,
	is_active=$13, updated_at=NOW()
WHERE id=$1 RETURNING `+productColumns,
		p.ID, p.Name, p.Reference, p.Category, p.Brand, p.Origin, p.CompatibleReferences, p.Description,
		p.QuantityInStock, p.Threshold, p.PurchasePrice, p.SellingPrice, p.IsActive))
	if db.IsUniqueViolation(err) {
		return Product{}, ErrDuplicateReference
	}
	return updated, err
}

type repository struct {
	*Store
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{Store: NewStore(pool), pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{Store: NewStore(tx), pool: r.pool})
	})
}

func (r *repository) Alerts() alerts.Store {
	return alerts.NewStore(r.db)
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE is_active`
	args := []any{}
	argCount := 0

	if filters.Name != "" {
		argCount++
		n := strconv.Itoa(argCount)
		query += ` AND (name ILIKE $` + n + ` OR reference ILIKE $` + n + ` OR compatible_references ILIKE $` + n + `)`
		args = append(args, "%"+filters.Name+"%")
	}
	if filters.Category != "" {
		argCount++
		query += ` AND category ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Category+"%")
	}
	if filters.Brand != "" {
		argCount++
		query += ` AND brand ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Brand+"%")
	}
	if filters.MinStock != nil {
		argCount++
		query += ` AND quantity_in_stock >= $` + strconv.Itoa(argCount)
		args = append(args, *filters.MinStock)
	}
	if filters.MaxStock != nil {
		argCount++
		query += ` AND quantity_in_stock <= $` + strconv.Itoa(argCount)
		args = append(args, *filters.MaxStock)
	}
	query += ` ORDER BY name, id`
	return r.query(ctx, query, args...)
}

func (r *repository) ListAll(ctx context.Context) ([]Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
}

func (r *repository) LowStock(ctx context.Context) ([]Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active AND quantity_in_stock <= threshold ORDER BY quantity_in_stock ASC, id`)
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (r *repository) Insert(ctx context.Context, p Product) (Product, error) {
	created, err := scanProduct(r.db.QueryRow(ctx, `INSERT INTO products (name, reference, category, brand, origin, compatible_references,
	description, quantity_in_stock, threshold, purchase_price, selling_price, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,TRUE) RETURNING `+productColumns,
		p.Name, p.Reference, p.Category, p.Brand, p.Origin, p.CompatibleReferences, p.Description,
		p.QuantityInStock, p.Threshold, p.PurchasePrice, p.SellingPrice))
	if db.IsUniqueViolation(err) {
		return Product{}, ErrDuplicateReference
	}
	return created, err
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]Product, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
