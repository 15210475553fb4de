package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/caja-pos/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, name, COALESCE(barcode, ''), price, stock
		FROM products WHERE id = $1 AND active`

	searchProductsSQL = `SELECT id, name, COALESCE(barcode, ''), price, stock
		FROM products
		WHERE active AND ($1 = '' OR barcode = $1 OR lower(name) LIKE '%' || lower($1) || '%')
		ORDER BY name
		LIMIT $2`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single active product with its current stock.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if uuid.Validate(id) != nil {
		return nil, product.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// Search matches query against the barcode exactly or the name as a
// case-insensitive substring. An empty query lists the catalog.
func (r *ProductRepository) Search(ctx context.Context, query string, limit int) ([]product.Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, searchProductsSQL, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.Price, &p.Stock)
	return p, err
}
