package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a sellable catalog item as seen by the register.
type Product struct {
	ID      string
	Name    string
	Barcode string
	Price   decimal.Decimal
	Stock   int
}

// InStock reports whether at least one unit can be sold.
func (p Product) InStock() bool { return p.Stock > 0 }

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	Search(ctx context.Context, query string, limit int) ([]Product, error)
}
