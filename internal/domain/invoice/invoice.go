// Package invoice models the fiscal invoice produced by a completed sale.
package invoice

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/payment"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	Paid      Status = "PAID"
	Pending   Status = "PENDING"
	Cancelled Status = "CANCELLED"
	Refunded  Status = "REFUNDED"
)

// ErrNotFound is returned when an invoice does not exist.
var ErrNotFound = errors.New("invoice not found")

// Cancellable reports whether an invoice in status s may be cancelled.
func (s Status) Cancellable() bool { return s == Paid }

// Invoice is a stored sale with its items and payment.
type Invoice struct {
	ID                 string
	FiscalNumber       string
	FiscalDocumentType fiscal.DocumentType
	Status             Status
	CustomerID         string
	CustomerName       string
	CustomerDocument   string
	OperatorID         string
	Subtotal           decimal.Decimal
	TaxAmount          decimal.Decimal
	DiscountAmount     decimal.Decimal
	DiscountID         string
	TotalAmount        decimal.Decimal
	Payment            Payment
	Items              []Item
	CreatedAt          time.Time
}

// Item is one invoiced product line.
type Item struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
	TaxAmount   decimal.Decimal
	Subtotal    decimal.Decimal
	Total       decimal.Decimal
}

// Payment is how the invoice was settled.
type Payment struct {
	Method            payment.Method
	AmountPaid        decimal.Decimal
	ChangeAmount      decimal.Decimal
	ReferenceNumber   string
	AuthorizationCode string
}

// DisplayNumber is the fiscal number when one was assigned, the ID otherwise.
func (inv *Invoice) DisplayNumber() string {
	if inv.FiscalNumber != "" {
		return inv.FiscalNumber
	}
	return inv.ID
}

// Repository reads and cancels invoices.
type Repository interface {
	Get(ctx context.Context, id string) (*Invoice, error)
	// Cancel marks a PAID invoice CANCELLED and restores stock for every
	// item in a single transaction.
	Cancel(ctx context.Context, id string) error
}
