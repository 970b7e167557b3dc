package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockdesk/stockdesk/internal/platform/db"
)

// Repository provides alert reads and reconciliation transactions.
type Repository interface {
	List(ctx context.Context) ([]Alert, error)
	ListUnresolved(ctx context.Context) ([]Alert, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the transactional operations used by Reconcile.
type TxRepository interface {
	Store
	LockStockLevels(ctx context.Context) ([]StockLevel, error)
}

// PGStore implements Store on a pool or a transaction.
type PGStore struct {
	db db.DBTX
}

// NewStore binds a Store to q, typically a pgx.Tx owned by the caller.
func NewStore(q db.DBTX) *PGStore {
	return &PGStore{db: q}
}

// FindUnresolved returns the oldest unresolved alert for productID.
func (s *PGStore) FindUnresolved(ctx context.Context, productID int64) (Alert, bool, error) {
	var a Alert
	err := s.db.QueryRow(ctx, `SELECT id, product_id, type, message, resolved, resolved_at, created_at
FROM stock_alerts WHERE product_id=$1 AND NOT resolved ORDER BY id LIMIT 1 FOR UPDATE`, productID).
		Scan(&a.ID, &a.ProductID, &a.Type, &a.Message, &a.Resolved, &a.ResolvedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, false, nil
	}
	if err != nil {
		return Alert{}, false, err
	}
	return a, true, nil
}

// Insert persists a new unresolved alert.
func (s *PGStore) Insert(ctx context.Context, alert Alert) (Alert, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO stock_alerts (product_id, type, message, resolved, created_at)
VALUES ($1,$2,$3,FALSE,COALESCE($4, NOW())) RETURNING id, created_at`, alert.ProductID, string(alert.Type), alert.Message, nullTime(alert.CreatedAt)).
		Scan(&alert.ID, &alert.CreatedAt)
	return alert, err
}

// Escalate rewrites type and message of an open alert.
func (s *PGStore) Escalate(ctx context.Context, id int64, typ Type, message string) error {
	_, err := s.db.Exec(ctx, `UPDATE stock_alerts SET type=$2, message=$3 WHERE id=$1 AND NOT resolved`, id, string(typ), message)
	return err
}

// ResolveForProduct closes every open alert for productID.
func (s *PGStore) ResolveForProduct(ctx context.Context, productID int64, at time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE stock_alerts SET resolved=TRUE, resolved_at=$2 WHERE product_id=$1 AND NOT resolved`, productID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type repository struct {
	*PGStore
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{PGStore: NewStore(pool), pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{PGStore: NewStore(tx), pool: r.pool})
	})
}

const listSQL = `SELECT a.id, a.product_id, a.type, a.message, a.resolved, a.resolved_at, a.created_at,
	p.id, p.name, p.reference, p.quantity_in_stock, p.threshold
FROM stock_alerts a LEFT JOIN products p ON p.id = a.product_id`

func (r *repository) List(ctx context.Context) ([]Alert, error) {
	return r.query(ctx, listSQL+` ORDER BY a.created_at DESC, a.id DESC`)
}

func (r *repository) ListUnresolved(ctx context.Context) ([]Alert, error) {
	return r.query(ctx, listSQL+` WHERE NOT a.resolved ORDER BY a.created_at DESC, a.id DESC`)
}

func (r *repository) query(ctx context.Context, sql string) ([]Alert, error) {
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Alert{}
	for rows.Next() {
		var (
			a          Alert
			pID        *int64
			pName      *string
			pRef       *string
			pQty       *int
			pThreshold *int
		)
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Type, &a.Message, &a.Resolved, &a.ResolvedAt, &a.CreatedAt,
			&pID, &pName, &pRef, &pQty, &pThreshold); err != nil {
			return nil, err
		}
		if pID != nil {
			a.Product = &ProductSummary{ID: *pID, Name: *pName, Reference: *pRef, QuantityInStock: *pQty, Threshold: *pThreshold}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LockStockLevels row-locks every active product in id order.
func (r *repository) LockStockLevels(ctx context.Context) ([]StockLevel, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, quantity_in_stock, threshold FROM products WHERE is_active ORDER BY id FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Quantity, &l.Threshold); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
