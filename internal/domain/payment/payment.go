// Package payment captures how a sale is paid and validates the captured
// details against the sale total.
package payment

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/money"
	"github.com/xenking/caja-pos/internal/domain/poserr"
)

// Method is a payment method.
type Method string

const (
	Cash     Method = "CASH"
	Card     Method = "CARD"
	Transfer Method = "TRANSFER"
	Credit   Method = "CREDIT"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case Cash, Card, Transfer, Credit:
		return true
	}
	return false
}

// Tender is the closed set of captured payment details, one variant per
// method.
type Tender interface {
	Method() Method
	validate(total decimal.Decimal) error
}

// CashTender is cash handed over by the customer.
type CashTender struct {
	Tendered decimal.Decimal
}

// CardTender is a card payment authorised at an external terminal.
type CardTender struct {
	Reference     string
	Authorization string
}

// TransferTender is a bank transfer confirmed by the operator.
type TransferTender struct {
	Reference     string
	Authorization string
}

// CreditTender puts the sale on the customer's account.
type CreditTender struct{}

func (CashTender) Method() Method     { return Cash }
func (CardTender) Method() Method     { return Card }
func (TransferTender) Method() Method { return Transfer }
func (CreditTender) Method() Method   { return Credit }

func (c CashTender) validate(total decimal.Decimal) error {
	if c.Tendered.LessThan(total) {
		return poserr.Invalid("amount_tendered", "amount tendered is less than the total")
	}
	return nil
}

func (c CardTender) validate(decimal.Decimal) error {
	return requireReference(c.Reference, c.Authorization)
}

func (t TransferTender) validate(decimal.Decimal) error {
	return requireReference(t.Reference, t.Authorization)
}

func (CreditTender) validate(decimal.Decimal) error { return nil }

func requireReference(ref, auth string) error {
	if strings.TrimSpace(ref) == "" {
		return poserr.Invalid("reference_number", "reference number is required")
	}
	if strings.TrimSpace(auth) == "" {
		return poserr.Invalid("authorization_code", "authorization code is required")
	}
	return nil
}

// Input is raw operator input for a payment.
type Input struct {
	Method            Method
	AmountTendered    string
	ReferenceNumber   string
	AuthorizationCode string
}

// NewTender parses in into a Tender. Only the fields the method uses are read.
func NewTender(in Input) (Tender, error) {
	switch in.Method {
	case Cash:
		tendered, err := money.ParseNonNegative(in.AmountTendered)
		if err != nil {
			return nil, poserr.Invalid("amount_tendered", err.Error())
		}
		return CashTender{Tendered: tendered}, nil
	case Card:
		return CardTender{
			Reference:     strings.TrimSpace(in.ReferenceNumber),
			Authorization: strings.TrimSpace(in.AuthorizationCode),
		}, nil
	case Transfer:
		return TransferTender{
			Reference:     strings.TrimSpace(in.ReferenceNumber),
			Authorization: strings.TrimSpace(in.AuthorizationCode),
		}, nil
	case Credit:
		return CreditTender{}, nil
	default:
		return nil, poserr.Invalid("method", "unknown payment method")
	}
}

// RegisterState is what payment validation needs to know about the
// operator's cash register.
type RegisterState struct {
	Open bool
}

// Validate reports the first rule t breaks for a sale of total. Cash needs an
// open register before anything else is checked.
func Validate(t Tender, total decimal.Decimal, reg RegisterState) error {
	if t == nil {
		return poserr.Invalid("method", "payment method is required")
	}
	if t.Method() == Cash && !reg.Open {
		return poserr.Precondition("cash payments require an open cash register")
	}
	return t.validate(total)
}

// Change is the cash returned to the customer. Non-cash tenders give none.
func Change(t Tender, total decimal.Decimal) decimal.Decimal {
	c, ok := t.(CashTender)
	if !ok {
		return decimal.Zero
	}
	return money.Round(money.FloorAtZero(c.Tendered.Sub(total)))
}

// AmountPaid is the amount recorded on the payment: what was tendered for
// cash, the total otherwise.
func AmountPaid(t Tender, total decimal.Decimal) decimal.Decimal {
	if c, ok := t.(CashTender); ok {
		return c.Tendered
	}
	return total
}

// Reference returns the reference and authorization of card and transfer
// tenders.
func Reference(t Tender) (ref, auth string) {
	switch t := t.(type) {
	case CardTender:
		return t.Reference, t.Authorization
	case TransferTender:
		return t.Reference, t.Authorization
	}
	return "", ""
}
