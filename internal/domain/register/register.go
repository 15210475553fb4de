// Package register tracks a cashier's cash drawer: opening float, the cash
// ledger during the shift, and the count at close.
package register

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/payment"
)

// Status of a cash register session.
type Status string

const (
	Open   Status = "OPEN"
	Closed Status = "CLOSED"
)

// TransactionType classifies a cash ledger entry.
type TransactionType string

const (
	Sale       TransactionType = "SALE"
	Expense    TransactionType = "EXPENSE"
	Withdrawal TransactionType = "WITHDRAWAL"
	Deposit    TransactionType = "DEPOSIT"
)

// Manual reports whether operators may post t by hand. SALE entries are only
// posted for invoices.
func (t TransactionType) Manual() bool {
	switch t {
	case Expense, Withdrawal, Deposit:
		return true
	}
	return false
}

var (
	// ErrNoOpenRegister is returned when the operator has no OPEN register.
	ErrNoOpenRegister = errors.New("no open cash register")
	// ErrAlreadyOpen is returned when opening a second register.
	ErrAlreadyOpen = errors.New("a cash register is already open")
)

// Summary is a register session with its running totals.
type Summary struct {
	ID               string
	OperatorID       string
	Status           Status
	OpenedAt         time.Time
	ClosedAt         *time.Time
	InitialCash      decimal.Decimal
	FinalCash        *decimal.Decimal
	ExpectedCash     decimal.Decimal
	CashDifference   *decimal.Decimal
	Notes            string
	TotalSales       decimal.Decimal
	TotalExpenses    decimal.Decimal
	TotalWithdrawals decimal.Decimal
	TotalDeposits    decimal.Decimal
}

// IsOpen reports whether s is an OPEN register.
func (s *Summary) IsOpen() bool { return s != nil && s.Status == Open }

// ComputeExpectedCash derives the cash that should be in the drawer:
// initial + sales - expenses - withdrawals + deposits.
func (s *Summary) ComputeExpectedCash() decimal.Decimal {
	return s.InitialCash.
		Add(s.TotalSales).
		Sub(s.TotalExpenses).
		Sub(s.TotalWithdrawals).
		Add(s.TotalDeposits)
}

// Transaction is a cash ledger entry.
type Transaction struct {
	ID            string
	RegisterID    string
	Type          TransactionType
	Amount        decimal.Decimal
	PaymentMethod payment.Method
	ReferenceID   string
	Notes         string
	CreatedAt     time.Time
	CreatedBy     string
}

// Outcome classifies a close.
type Outcome string

const (
	Balanced Outcome = "BALANCED"
	Surplus  Outcome = "SURPLUS"
	Shortage Outcome = "SHORTAGE"
)

// CloseReport compares the counted cash with what was expected.
type CloseReport struct {
	RegisterID string
	Expected   decimal.Decimal
	Final      decimal.Decimal
	Difference decimal.Decimal
	Outcome    Outcome
}

// NewCloseReport builds the report for counting final in s.
func NewCloseReport(s *Summary, final decimal.Decimal) CloseReport {
	diff := final.Sub(s.ExpectedCash)
	outcome := Balanced
	switch {
	case diff.IsPositive():
		outcome = Surplus
	case diff.IsNegative():
		outcome = Shortage
	}
	return CloseReport{
		RegisterID: s.ID,
		Expected:   s.ExpectedCash,
		Final:      final,
		Difference: diff,
		Outcome:    outcome,
	}
}

// Repository is the backend side of the cash register.
type Repository interface {
	// GetOpen returns the operator's OPEN register or ErrNoOpenRegister.
	GetOpen(ctx context.Context, operatorID string) (*Summary, error)
	Open(ctx context.Context, operatorID string, initialCash decimal.Decimal, notes string) (string, error)
	Close(ctx context.Context, registerID string, finalCash decimal.Decimal, notes string) error
	AddTransaction(ctx context.Context, tx Transaction) (string, error)
	ListTransactions(ctx context.Context, registerID string) ([]Transaction, error)
	// HasSaleFor reports whether a SALE entry references invoiceID.
	HasSaleFor(ctx context.Context, registerID, invoiceID string) (bool, error)
}
