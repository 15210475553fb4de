package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/poserr"
)

// Option is a discount the operator may pick, with the amount it would take
// off the current subtotal.
type Option struct {
	Discount     Discount
	Amount       decimal.Decimal
	MeetsMinimum bool
}

// Selector lists and validates discounts against the clock and a subtotal.
type Selector struct {
	repo Repository
	now  func() time.Time
}

// NewSelector creates a Selector backed by repo.
func NewSelector(repo Repository) *Selector {
	return &Selector{repo: repo, now: time.Now}
}

// Available returns the discounts eligible right now. Ineligible ones are
// left out rather than reported.
func (s *Selector) Available(ctx context.Context, subtotal decimal.Decimal) ([]Option, error) {
	all, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list discounts")
	}

	now := s.now()
	opts := make([]Option, 0, len(all))
	for i := range all {
		d := all[i]
		if !d.Eligible(now) {
			continue
		}
		opts = append(opts, Option{
			Discount:     d,
			Amount:       d.Amount(subtotal),
			MeetsMinimum: d.MeetsMinimum(subtotal),
		})
	}
	return opts, nil
}

// Select loads the discount with id and checks it can be applied to subtotal.
func (s *Selector) Select(ctx context.Context, id string, subtotal decimal.Decimal) (*Discount, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, poserr.Invalid("discount_id", "discount not found")
		}
		return nil, errors.Wrap(err, "get discount")
	}
	if !d.Eligible(s.now()) {
		return nil, poserr.Invalid("discount_id", "discount is not currently available")
	}
	if err := d.CheckMinimumPurchase(subtotal); err != nil {
		return nil, err
	}
	return d, nil
}
