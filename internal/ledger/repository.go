package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetProduct fetches a single product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	const query = `SELECT id, name, category, price, quantity, reorder_level, created_at, updated_at
	               FROM products WHERE id = $1`
	var p Product
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Category, &p.Price, &p.Quantity, &p.ReorderLevel, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ListProducts lists products in insertion order, optionally filtered by a
// case-insensitive substring match on name or category.
func (r *Repository) ListProducts(ctx context.Context, search string) ([]Product, error) {
	query := `SELECT id, name, category, price, quantity, reorder_level, created_at, updated_at
	          FROM products`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE '%' || $1 || '%' OR category ILIKE '%' || $1 || '%'`
		args = append(args, search)
	}
	query += ` ORDER BY id`
	return r.scanProducts(ctx, query, args...)
}

// ListLowStock lists products strictly below their reorder level.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	const query = `SELECT id, name, category, price, quantity, reorder_level, created_at, updated_at
	               FROM products WHERE quantity < reorder_level ORDER BY id`
	return r.scanProducts(ctx, query)
}

func (r *Repository) scanProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Quantity, &p.ReorderLevel, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListPurchases lists purchase history newest first, joined with the product
// name. Deleted products resolve to the unknown-product placeholder, which
// is also what the search filter matches against.
func (r *Repository) ListPurchases(ctx context.Context, search string) ([]PurchaseEntry, error) {
	query := `SELECT pu.id, pu.product_id, pu.quantity, pu.unit_price, pu.purchased_at,
	                 COALESCE(pr.name, $1) AS product_name
	          FROM purchases pu
	          LEFT JOIN products pr ON pr.id = pu.product_id`
	args := []any{UnknownProductName}
	if search != "" {
		query += ` WHERE COALESCE(pr.name, $1) ILIKE '%' || $2 || '%'`
		args = append(args, search)
	}
	query += ` ORDER BY pu.purchased_at DESC, pu.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PurchaseEntry
	for rows.Next() {
		var e PurchaseEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Quantity, &e.UnitPrice, &e.PurchasedAt, &e.ProductName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListSales lists sale history newest first, with the same join and filter
// semantics as ListPurchases.
func (r *Repository) ListSales(ctx context.Context, search string) ([]SaleEntry, error) {
	query := `SELECT sa.id, sa.product_id, sa.quantity, sa.unit_price, sa.sold_at,
	                 COALESCE(pr.name, $1) AS product_name
	          FROM sales sa
	          LEFT JOIN products pr ON pr.id = sa.product_id`
	args := []any{UnknownProductName}
	if search != "" {
		query += ` WHERE COALESCE(pr.name, $1) ILIKE '%' || $2 || '%'`
		args = append(args, search)
	}
	query += ` ORDER BY sa.sold_at DESC, sa.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SaleEntry
	for rows.Next() {
		var e SaleEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Quantity, &e.UnitPrice, &e.SoldAt, &e.ProductName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats computes the dashboard aggregates. The queries run inside one
// read-only repeatable-read transaction so a recording committing midway
// cannot skew the snapshot. COALESCE keeps the sums at zero for an empty
// ledger.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Stats{}, err
	}
	defer tx.Rollback(ctx)

	var stats Stats
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE quantity < reorder_level) FROM products`).
		Scan(&stats.TotalProducts, &stats.LowStockCount)
	if err != nil {
		return Stats{}, err
	}
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity * unit_price), 0) FROM sales`).
		Scan(&stats.TotalRevenue)
	if err != nil {
		return Stats{}, err
	}
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity * unit_price), 0) FROM purchases`).
		Scan(&stats.TotalCost)
	if err != nil {
		return Stats{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Stats{}, err
	}
	stats.Profit = stats.TotalRevenue.Sub(stats.TotalCost)
	return stats, nil
}

func (t *txRepo) InsertProduct(ctx context.Context, product Product) (int64, error) {
	const query = `INSERT INTO products (name, category, price, quantity, reorder_level, created_at, updated_at)
	               VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		product.Name, product.Category, product.Price, product.Quantity,
		product.ReorderLevel, product.CreatedAt, product.UpdatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateProduct(ctx context.Context, product Product) error {
	const query = `UPDATE products
	               SET name = $2, category = $3, price = $4, quantity = $5, reorder_level = $6, updated_at = $7
	               WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query,
		product.ID, product.Name, product.Category, product.Price,
		product.Quantity, product.ReorderLevel, product.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProductForUpdate locks the product row for the rest of the transaction.
func (t *txRepo) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	const query = `SELECT id, name, category, price, quantity, reorder_level, created_at, updated_at
	               FROM products WHERE id = $1 FOR UPDATE`
	var p Product
	err := t.tx.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Category, &p.Price, &p.Quantity, &p.ReorderLevel, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (t *txRepo) SetProductQuantity(ctx context.Context, id, quantity int64, updatedAt time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET quantity = $2, updated_at = $3 WHERE id = $1`, id, quantity, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertPurchase(ctx context.Context, purchase Purchase) (int64, error) {
	const query = `INSERT INTO purchases (product_id, quantity, unit_price, purchased_at)
	               VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		purchase.ProductID, purchase.Quantity, purchase.UnitPrice, purchase.PurchasedAt).Scan(&id)
	return id, err
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	const query = `INSERT INTO sales (product_id, quantity, unit_price, sold_at)
	               VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		sale.ProductID, sale.Quantity, sale.UnitPrice, sale.SoldAt).Scan(&id)
	return id, err
}
