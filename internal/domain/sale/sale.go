// Package sale turns a priced cart and a validated payment into a stored
// invoice, and cancels invoices.
package sale

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/cart"
	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/payment"
)

// Item is one line of the create_sale payload.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
	TaxAmount decimal.Decimal
	Subtotal  decimal.Decimal
	Total     decimal.Decimal
}

// Payload is everything the backend needs to record a sale atomically:
// invoice, items, payment and stock decrement.
type Payload struct {
	CustomerID         string
	OperatorID         string
	RegisterID         string
	Subtotal           decimal.Decimal
	TaxAmount          decimal.Decimal
	DiscountAmount     decimal.Decimal
	DiscountID         string
	TotalAmount        decimal.Decimal
	PaymentMethod      payment.Method
	AmountPaid         decimal.Decimal
	ChangeAmount       decimal.Decimal
	ReferenceNumber    string
	AuthorizationCode  string
	FiscalDocumentType fiscal.DocumentType
	Items              []Item
}

// BuildPayload assembles the payload for c paid with t. A cart without a
// customer is sold to the walk-in customer.
func BuildPayload(c *cart.Cart, docType fiscal.DocumentType, t payment.Tender, operatorID, registerID string) Payload {
	totals := c.Totals()
	ref, auth := payment.Reference(t)

	p := Payload{
		CustomerID:         c.CustomerID(),
		OperatorID:         operatorID,
		RegisterID:         registerID,
		Subtotal:           totals.Subtotal,
		TaxAmount:          totals.Tax,
		DiscountAmount:     totals.Discount,
		TotalAmount:        totals.Total,
		PaymentMethod:      t.Method(),
		AmountPaid:         payment.AmountPaid(t, totals.Total),
		ChangeAmount:       payment.Change(t, totals.Total),
		ReferenceNumber:    ref,
		AuthorizationCode:  auth,
		FiscalDocumentType: docType,
	}
	if d := c.Discount(); d != nil && totals.Discount.IsPositive() {
		p.DiscountID = d.ID
	}
	for _, l := range c.Lines() {
		p.Items = append(p.Items, Item{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			TaxRate:   l.TaxRate,
			TaxAmount: l.Tax,
			Subtotal:  l.Subtotal,
			Total:     l.Total,
		})
	}
	return p
}

// Gateway records sales in the backend.
type Gateway interface {
	// CreateSale stores the sale in one transaction and returns the new
	// invoice ID.
	CreateSale(ctx context.Context, p Payload) (string, error)
}
