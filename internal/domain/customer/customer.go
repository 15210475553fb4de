// Package customer models the buyer attached to a sale.
package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// WalkInID identifies the anonymous "consumidor final" customer used when no
// customer is attached to a sale.
const WalkInID = "00000000-0000-0000-0000-000000000000"

// ErrNotFound is returned when a customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is a registered buyer. Document is the RNC or cédula.
type Customer struct {
	ID           string
	Name         string
	DocumentType string
	Document     string
	Email        string
	Phone        string
}

// Repository looks customers up.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
}
