package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/discount"
)

const (
	discountColumns = `id, name, kind, value, min_purchase, max_discount, active, starts_at, ends_at`

	listActiveDiscountsSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE active ORDER BY name`

	getDiscountByIDSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE id = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
// The time window is left to the domain so it is checked against one clock.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// ListActive returns every discount flagged active.
func (r *DiscountRepository) ListActive(ctx context.Context) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, listActiveDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanDiscount)
}

// GetByID returns the discount with id, active or not.
func (r *DiscountRepository) GetByID(ctx context.Context, id string) (*discount.Discount, error) {
	if uuid.Validate(id) != nil {
		return nil, discount.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getDiscountByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}
	return &d, nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d           discount.Discount
		kind        string
		value       decimal.Decimal
		minPurchase decimal.NullDecimal
		maxDiscount decimal.NullDecimal
		from, to    *time.Time
	)
	if err := row.Scan(&d.ID, &d.Name, &kind, &value, &minPurchase, &maxDiscount, &d.Active, &from, &to); err != nil {
		return d, err
	}
	k, err := discount.NewKind(kind, value)
	if err != nil {
		return d, fmt.Errorf("discount %q: %w", d.ID, err)
	}
	d.Kind = k
	if minPurchase.Valid {
		d.MinPurchase = &minPurchase.Decimal
	}
	if maxDiscount.Valid {
		d.MaxDiscount = &maxDiscount.Decimal
	}
	d.StartsAt, d.EndsAt = from, to
	return d, nil
}
