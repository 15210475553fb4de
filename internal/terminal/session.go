// Package terminal keeps the in-memory sale state of each operator: the cart,
// the attached customer and discount, and the checkout choices.
package terminal

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/caja-pos/internal/domain/cart"
	"github.com/xenking/caja-pos/internal/domain/customer"
	"github.com/xenking/caja-pos/internal/domain/discount"
	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/payment"
	"github.com/xenking/caja-pos/internal/domain/poserr"
	"github.com/xenking/caja-pos/internal/domain/product"
	"github.com/xenking/caja-pos/internal/domain/register"
	"github.com/xenking/caja-pos/internal/domain/sale"
)

// ErrSubmissionInFlight is returned while the session is submitting a sale.
var ErrSubmissionInFlight = sale.ErrInFlight

// Sales submits sales.
type Sales interface {
	Process(ctx context.Context, req sale.Request) (*sale.Receipt, error)
}

// Registers reads the operator's register.
type Registers interface {
	Current(ctx context.Context, operatorID string) (*register.Summary, error)
}

// Deps are the services every session uses.
type Deps struct {
	Products  product.Repository
	Customers customer.Repository
	Discounts *discount.Selector
	Fiscal    *fiscal.Selector
	Sales     Sales
	Registers Registers
	TaxRate   decimal.Decimal
}

// View is a snapshot of the cart for display.
type View struct {
	Lines    []cart.Line
	Totals   cart.Totals
	Customer *customer.Customer
	Discount *discount.Discount
}

// Checkout is what the operator needs to finish a sale.
type Checkout struct {
	Options     []fiscal.Option
	Selected    fiscal.DocumentType
	CashAllowed bool
	Register    *register.Summary
	Totals      cart.Totals
}

// Session is one operator's terminal. All methods are safe for concurrent
// use; a sale submission holds the session until it finishes and other
// mutations are refused meanwhile.
type Session struct {
	operatorID string
	deps       *Deps

	mu         sync.Mutex
	submitting atomic.Bool
	cart       *cart.Cart
	fiscal     fiscal.Selection
	last       *sale.Receipt
}

func newSession(operatorID string, deps *Deps) *Session {
	return &Session{
		operatorID: operatorID,
		deps:       deps,
		cart:       cart.New(deps.TaxRate),
	}
}

// OperatorID returns the owner of the session.
func (s *Session) OperatorID() string { return s.operatorID }

// mutate runs fn with the session locked unless a submission is in flight.
func (s *Session) mutate(fn func() error) (View, error) {
	if s.submitting.Load() {
		return View{}, poserr.PreconditionFrom(ErrSubmissionInFlight)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		return View{}, err
	}
	s.revalidateDiscount()
	return s.view(), nil
}

// revalidateDiscount drops a selected discount whose minimum purchase is no
// longer met after the cart changed.
func (s *Session) revalidateDiscount() {
	if d := s.cart.Discount(); d != nil && !d.MeetsMinimum(s.cart.Subtotal()) {
		s.cart.ClearDiscount()
	}
}

func (s *Session) view() View {
	return View{
		Lines:    s.cart.Lines(),
		Totals:   s.cart.Totals(),
		Customer: s.cart.Customer(),
		Discount: s.cart.Discount(),
	}
}

func (s *Session) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.IsEmpty()
}

// View returns the current cart.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// AddProduct adds one unit of the product with id.
func (s *Session) AddProduct(ctx context.Context, productID string) (View, error) {
	p, err := s.deps.Products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return View{}, poserr.Invalid("product_id", "product not found")
		}
		return View{}, errors.Wrap(err, "get product")
	}
	return s.mutate(func() error {
		added, err := s.cart.AddLine(*p)
		if err != nil {
			return err
		}
		if !added {
			zctx.From(ctx).Debug("Stock limit reached", zap.String("product_id", p.ID))
		}
		return nil
	})
}

// SetQuantity sets the quantity of a line; zero or less removes it.
func (s *Session) SetQuantity(productID string, quantity int) (View, error) {
	return s.mutate(func() error {
		return s.cart.SetQuantity(productID, quantity)
	})
}

// RemoveLine removes the product's line.
func (s *Session) RemoveLine(productID string) (View, error) {
	return s.mutate(func() error {
		if !s.cart.RemoveLine(productID) {
			return cart.ErrLineNotFound
		}
		return nil
	})
}

// Clear empties the cart and forgets the checkout choices.
func (s *Session) Clear() (View, error) {
	return s.mutate(func() error {
		s.cart.Clear()
		s.fiscal.Clear()
		return nil
	})
}

// SetCustomer attaches the customer with id, or detaches it when id is empty.
// The fiscal default is re-applied.
func (s *Session) SetCustomer(ctx context.Context, customerID string) (View, error) {
	var cust *customer.Customer
	if customerID != "" {
		c, err := s.deps.Customers.GetByID(ctx, customerID)
		if err != nil {
			if errors.Is(err, customer.ErrNotFound) {
				return View{}, poserr.Invalid("customer_id", "customer not found")
			}
			return View{}, errors.Wrap(err, "get customer")
		}
		cust = c
	}
	return s.mutate(func() error {
		s.cart.SetCustomer(cust)
		s.fiscal.CustomerChanged(cust != nil)
		return nil
	})
}

// Discounts lists the discounts selectable for the current subtotal.
func (s *Session) Discounts(ctx context.Context) ([]discount.Option, error) {
	subtotal := s.View().Totals.Subtotal
	return s.deps.Discounts.Available(ctx, subtotal)
}

// SelectDiscount applies the discount with id to the cart.
func (s *Session) SelectDiscount(ctx context.Context, discountID string) (View, error) {
	subtotal := s.View().Totals.Subtotal
	d, err := s.deps.Discounts.Select(ctx, discountID, subtotal)
	if err != nil {
		return View{}, err
	}
	return s.mutate(func() error {
		return s.cart.ApplyDiscount(d)
	})
}

// ClearDiscount removes the selected discount.
func (s *Session) ClearDiscount() (View, error) {
	return s.mutate(func() error {
		s.cart.ClearDiscount()
		return nil
	})
}

// OpenCheckout loads the fiscal options and the register state for the
// current cart.
func (s *Session) OpenCheckout(ctx context.Context) (Checkout, error) {
	if s.submitting.Load() {
		return Checkout{}, poserr.PreconditionFrom(ErrSubmissionInFlight)
	}
	if s.empty() {
		return Checkout{}, poserr.Precondition("cart is empty")
	}

	opts, err := s.deps.Fiscal.Load(ctx)
	if err != nil {
		return Checkout{}, poserr.Remote("list_fiscal_sequences", err)
	}
	reg, err := s.deps.Registers.Current(ctx, s.operatorID)
	if err != nil {
		return Checkout{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fiscal.Reset(opts, s.cart.Customer() != nil)
	return s.checkout(reg), nil
}

func (s *Session) checkout(reg *register.Summary) Checkout {
	return Checkout{
		Options:     s.fiscal.Options(),
		Selected:    s.fiscal.Selected(),
		CashAllowed: reg.IsOpen(),
		Register:    reg,
		Totals:      s.cart.Totals(),
	}
}

// SelectFiscalType records the operator's document type choice.
func (s *Session) SelectFiscalType(t fiscal.DocumentType) (fiscal.DocumentType, error) {
	if s.submitting.Load() {
		return "", poserr.PreconditionFrom(ErrSubmissionInFlight)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fiscal.Select(t); err != nil {
		return "", err
	}
	return t, nil
}

// Submit processes the sale in the cart paid with in. Only one submission
// runs at a time; a second one fails at once with ErrSubmissionInFlight.
func (s *Session) Submit(ctx context.Context, in payment.Input) (*sale.Receipt, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, poserr.PreconditionFrom(ErrSubmissionInFlight)
	}
	defer s.submitting.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cart.IsEmpty() {
		return nil, poserr.Precondition("cart is empty")
	}
	docType, err := s.fiscal.Require()
	if err != nil {
		return nil, err
	}
	tender, err := payment.NewTender(in)
	if err != nil {
		return nil, err
	}

	receipt, err := s.deps.Sales.Process(ctx, sale.Request{
		OperatorID: s.operatorID,
		Cart:       s.cart,
		FiscalType: docType,
		Tender:     tender,
	})
	if err != nil {
		return nil, err
	}
	s.fiscal.Clear()
	s.last = receipt
	return receipt, nil
}

// LastReceipt returns the receipt of the latest successful sale, or nil.
func (s *Session) LastReceipt() *sale.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
