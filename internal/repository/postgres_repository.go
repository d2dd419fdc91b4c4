// Package repository is the PostgreSQL implementation of store.Store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken by the
// *ForUpdate reads are held until fn returns.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &Repository{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	return fn(ctx, &Repository{db: s.pool})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Repository runs queries against a pool or an open transaction.
type Repository struct {
	db querier
}

var _ store.Repository = (*Repository)(nil)

func (r *Repository) GetProduct(ctx context.Context, productID int64, productType domain.ProductType) (*domain.Product, error) {
	row := r.db.QueryRow(ctx, `
		SELECT
			id,
			product_type,
			name,
			selling_price,
			parts_per_box
		FROM catalog_products
		WHERE id = $1 AND product_type = $2
	`, productID, productType)
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Type, &p.Name, &p.SellingPrice, &p.PartsPerBox); err != nil {
		return nil, notFoundOr(err, "get product %d", productID)
	}
	return &p, nil
}

func (r *Repository) UpsertProduct(ctx context.Context, product *domain.Product) error {
	if product.PartsPerBox <= 0 {
		product.PartsPerBox = 1
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO catalog_products (id, product_type, name, selling_price, parts_per_box)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id, product_type) DO UPDATE SET
			name = EXCLUDED.name,
			selling_price = EXCLUDED.selling_price,
			parts_per_box = EXCLUDED.parts_per_box,
			updated_at = NOW()
	`, product.ID, product.Type, product.Name, product.SellingPrice, product.PartsPerBox); err != nil {
		return fmt.Errorf("upsert product %d: %w", product.ID, err)
	}
	return nil
}

func (r *Repository) InsertStockItem(ctx context.Context, item *domain.StockItem) error {
	if err := r.db.QueryRow(ctx, `
		INSERT INTO stock_items (
			pharmacy_id,
			product_id,
			product_type,
			quantity,
			loose_parts,
			purchase_price,
			batch_number,
			expiry_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`,
		item.PharmacyID, item.ProductID, item.ProductType, item.Quantity, item.LooseParts,
		item.PurchasePrice, item.BatchNumber, item.ExpiryDate,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return fmt.Errorf("insert stock item: %w", err)
	}
	return nil
}

const stockColumns = `
	id,
	pharmacy_id,
	product_id,
	product_type,
	quantity,
	loose_parts,
	purchase_price,
	batch_number,
	expiry_date,
	created_at,
	updated_at
`

func scanStockItem(row pgx.Row) (*domain.StockItem, error) {
	var item domain.StockItem
	err := row.Scan(
		&item.ID,
		&item.PharmacyID,
		&item.ProductID,
		&item.ProductType,
		&item.Quantity,
		&item.LooseParts,
		&item.PurchasePrice,
		&item.BatchNumber,
		&item.ExpiryDate,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) GetStockItem(ctx context.Context, pharmacyID, stockItemID int64) (*domain.StockItem, error) {
	item, err := scanStockItem(r.db.QueryRow(ctx,
		`SELECT`+stockColumns+`FROM stock_items WHERE id = $1 AND pharmacy_id = $2`,
		stockItemID, pharmacyID,
	))
	if err != nil {
		return nil, notFoundOr(err, "get stock item %d", stockItemID)
	}
	return item, nil
}

func (r *Repository) GetStockItemForUpdate(ctx context.Context, pharmacyID, stockItemID int64) (*domain.StockItem, error) {
	item, err := scanStockItem(r.db.QueryRow(ctx,
		`SELECT`+stockColumns+`FROM stock_items WHERE id = $1 AND pharmacy_id = $2 FOR UPDATE`,
		stockItemID, pharmacyID,
	))
	if err != nil {
		return nil, notFoundOr(err, "lock stock item %d", stockItemID)
	}
	return item, nil
}

func (r *Repository) UpdateStockLevels(ctx context.Context, item *domain.StockItem) error {
	err := r.db.QueryRow(ctx, `
		UPDATE stock_items
		SET quantity = $2, loose_parts = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, item.ID, item.Quantity, item.LooseParts).Scan(&item.UpdatedAt)
	if err != nil {
		return notFoundOr(err, "update stock item %d", item.ID)
	}
	return nil
}

// notFoundOr maps pgx.ErrNoRows to store.ErrNotFound and wraps anything else.
func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// pageClause appends LIMIT/OFFSET placeholders starting at idx.
func pageClause(query string, args []any, idx int, page store.Page) (string, []any) {
	page = page.Normalize()
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
	return query, append(args, page.Limit, page.Offset)
}
