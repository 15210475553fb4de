// Package discount models cart-level discounts and resolves the amount they
// take off a subtotal.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/money"
	"github.com/xenking/caja-pos/internal/domain/poserr"
)

// Stored kind names.
const (
	KindPercentage = "PERCENTAGE"
	KindFixed      = "FIXED"
)

var (
	// ErrNotFound is returned when a discount does not exist.
	ErrNotFound = errors.New("discount not found")
	// ErrUnknownKind is returned for a stored kind outside the known set.
	ErrUnknownKind = errors.New("unknown discount kind")
)

// Kind is the closed set of discount strategies. Only Percentage and Fixed
// implement it.
type Kind interface {
	Name() string
	raw(subtotal decimal.Decimal) decimal.Decimal
}

// Percentage takes Percent percent of the subtotal.
type Percentage struct {
	Percent decimal.Decimal
}

func (Percentage) Name() string { return KindPercentage }

func (p Percentage) raw(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.Percent).Div(decimal.NewFromInt(100))
}

// Fixed takes a flat Amount off the subtotal.
type Fixed struct {
	Amount decimal.Decimal
}

func (Fixed) Name() string { return KindFixed }

func (f Fixed) raw(decimal.Decimal) decimal.Decimal { return f.Amount }

// NewKind builds a Kind from its stored name and value.
func NewKind(name string, value decimal.Decimal) (Kind, error) {
	switch name {
	case KindPercentage:
		return Percentage{Percent: value}, nil
	case KindFixed:
		return Fixed{Amount: value}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "kind %q", name)
	}
}

// KindValue returns the stored value of k.
func KindValue(k Kind) decimal.Decimal {
	switch k := k.(type) {
	case Percentage:
		return k.Percent
	case Fixed:
		return k.Amount
	default:
		return decimal.Zero
	}
}

// Discount is a discount rule an operator can apply to the whole cart.
type Discount struct {
	ID          string
	Name        string
	Kind        Kind
	MinPurchase *decimal.Decimal
	MaxDiscount *decimal.Decimal
	Active      bool
	StartsAt    *time.Time
	EndsAt      *time.Time
}

// Amount resolves how much d takes off subtotal. The result is capped by
// MaxDiscount when set, kept within [0, subtotal], and rounded.
func (d *Discount) Amount(subtotal decimal.Decimal) decimal.Decimal {
	if d == nil || d.Kind == nil {
		return decimal.Zero
	}
	amount := d.Kind.raw(subtotal)
	if d.MaxDiscount != nil {
		amount = money.Min(amount, *d.MaxDiscount)
	}
	return money.Round(money.Clamp(amount, decimal.Zero, money.FloorAtZero(subtotal)))
}

// Eligible reports whether d is active and now falls inside its window.
// Both bounds are inclusive.
func (d *Discount) Eligible(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

// MeetsMinimum reports whether subtotal satisfies MinPurchase.
func (d *Discount) MeetsMinimum(subtotal decimal.Decimal) bool {
	return d.MinPurchase == nil || !subtotal.LessThan(*d.MinPurchase)
}

// CheckMinimumPurchase returns a validation error when subtotal is below the
// discount's minimum purchase.
func (d *Discount) CheckMinimumPurchase(subtotal decimal.Decimal) error {
	if d.MeetsMinimum(subtotal) {
		return nil
	}
	return poserr.Invalid("discount_id",
		"minimum purchase of "+money.Format(*d.MinPurchase)+" not met")
}

// Repository provides discount lookups.
type Repository interface {
	ListActive(ctx context.Context) ([]Discount, error)
	GetByID(ctx context.Context, id string) (*Discount, error)
}
