// Package cart implements the in-progress sale: lines, the attached customer,
// the selected discount, and the derived ITBIS totals.
//
// A Cart is not safe for concurrent use; the owning terminal session
// serializes access.
package cart

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/customer"
	"github.com/xenking/caja-pos/internal/domain/discount"
	"github.com/xenking/caja-pos/internal/domain/money"
	"github.com/xenking/caja-pos/internal/domain/poserr"
	"github.com/xenking/caja-pos/internal/domain/product"
)

// DefaultTaxRate is the standard ITBIS rate.
var DefaultTaxRate = decimal.RequireFromString("0.18")

// ErrLineNotFound is returned when a product has no line in the cart.
var ErrLineNotFound = errors.New("product is not in the cart")

// Line is one product in the cart. Price and stock are a snapshot taken when
// the product was added.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
	Stock     int
	Quantity  int
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
}

func (l *Line) recompute() {
	l.Subtotal = money.Round(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	l.Tax = money.Round(l.Subtotal.Mul(l.TaxRate))
	l.Total = l.Subtotal.Add(l.Tax)
}

// Totals is a snapshot of the cart amounts.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Cart is the sale being built at a terminal.
type Cart struct {
	taxRate  decimal.Decimal
	lines    []Line
	customer *customer.Customer
	discount *discount.Discount
}

// New returns an empty cart taxing every line at taxRate.
func New(taxRate decimal.Decimal) *Cart {
	return &Cart{taxRate: taxRate}
}

func (c *Cart) find(productID string) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddLine adds one unit of p. A product without stock is never added, and one
// already in the cart is incremented only while its quantity is below stock.
// Both cases are a no-op that reports false.
func (c *Cart) AddLine(p product.Product) (bool, error) {
	if !p.InStock() {
		return false, nil
	}

	if i := c.find(p.ID); i >= 0 {
		l := &c.lines[i]
		l.Stock = p.Stock
		if l.Quantity >= l.Stock {
			return false, nil
		}
		l.Quantity++
		l.recompute()
		return true, nil
	}

	l := Line{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		TaxRate:   c.taxRate,
		Stock:     p.Stock,
		Quantity:  1,
	}
	l.recompute()
	c.lines = append(c.lines, l)
	return true, nil
}

// SetQuantity sets the quantity of a line. Zero or less removes the line.
// A quantity above the known stock is refused and the line is left as is.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	i := c.find(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	if quantity <= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
		return nil
	}

	l := &c.lines[i]
	if quantity > l.Stock {
		return poserr.Invalid("quantity", fmt.Sprintf("only %d units in stock", l.Stock))
	}
	l.Quantity = quantity
	l.recompute()
	return nil
}

// RemoveLine drops the line for productID. It reports whether a line existed.
func (c *Cart) RemoveLine(productID string) bool {
	i := c.find(productID)
	if i < 0 {
		return false
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return true
}

// Clear empties the cart and detaches the customer and discount.
func (c *Cart) Clear() {
	c.lines = nil
	c.customer = nil
	c.discount = nil
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }

// TaxRate returns the rate applied to new lines.
func (c *Cart) TaxRate() decimal.Decimal { return c.taxRate }

// Subtotal is the exact sum of the rounded line subtotals.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal)
	}
	return total
}

// Tax is the exact sum of the rounded line taxes.
func (c *Cart) Tax() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Tax)
	}
	return total
}

// DiscountAmount resolves the selected discount against the current subtotal.
func (c *Cart) DiscountAmount() decimal.Decimal {
	return c.discount.Amount(c.Subtotal())
}

// Total is subtotal plus tax minus discount, never below zero.
func (c *Cart) Total() decimal.Decimal {
	return money.FloorAtZero(c.Subtotal().Add(c.Tax()).Sub(c.DiscountAmount()))
}

// Totals returns all derived amounts at once.
func (c *Cart) Totals() Totals {
	subtotal := c.Subtotal()
	tax := c.Tax()
	disc := c.discount.Amount(subtotal)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: disc,
		Total:    money.FloorAtZero(subtotal.Add(tax).Sub(disc)),
	}
}

// SetCustomer attaches cust, or detaches the customer when cust is nil.
func (c *Cart) SetCustomer(cust *customer.Customer) { c.customer = cust }

// Customer returns the attached customer, or nil.
func (c *Cart) Customer() *customer.Customer { return c.customer }

// CustomerID returns the attached customer's ID or the walk-in ID.
func (c *Cart) CustomerID() string {
	if c.customer == nil {
		return customer.WalkInID
	}
	return c.customer.ID
}

// ApplyDiscount selects d after checking its minimum purchase against the
// current subtotal.
func (c *Cart) ApplyDiscount(d *discount.Discount) error {
	if d == nil {
		c.discount = nil
		return nil
	}
	if err := d.CheckMinimumPurchase(c.Subtotal()); err != nil {
		return err
	}
	c.discount = d
	return nil
}

// ClearDiscount removes the selected discount.
func (c *Cart) ClearDiscount() { c.discount = nil }

// Discount returns the selected discount, or nil.
func (c *Cart) Discount() *discount.Discount { return c.discount }
