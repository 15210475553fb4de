package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/payment"
	"github.com/xenking/caja-pos/internal/domain/register"
)

const (
	summaryColumns = `id, operator_id, status, opened_at, closed_at, initial_cash, final_cash,
		expected_cash, cash_difference, notes,
		total_sales, total_expenses, total_withdrawals, total_deposits`

	getOpenRegisterSQL = `SELECT ` + summaryColumns + ` FROM get_user_cash_register($1)`

	openRegisterSQL = `SELECT open_cash_register($1, $2, $3)`

	closeRegisterSQL = `SELECT close_cash_register($1, $2, $3)`

	addTransactionSQL = `SELECT add_register_transaction($1, $2, $3, $4, $5, $6, $7)`

	listTransactionsSQL = `SELECT id, cash_register_id, type, amount, payment_method,
			reference_id::text, notes, created_at, created_by
		FROM cash_register_transactions
		WHERE cash_register_id = $1
		ORDER BY created_at, id`

	hasSaleForSQL = `SELECT EXISTS (
			SELECT 1 FROM cash_register_transactions
			WHERE cash_register_id = $1 AND type = 'SALE' AND reference_id = $2)`
)

var _ register.Repository = (*RegisterRepository)(nil)

// RegisterRepository implements register.Repository on the cash register
// stored functions and the cash_register_summary view.
type RegisterRepository struct {
	pool *pgxpool.Pool
}

// NewRegisterRepository returns a RegisterRepository that uses the given pool.
func NewRegisterRepository(pool *pgxpool.Pool) *RegisterRepository {
	return &RegisterRepository{pool: pool}
}

// GetOpen returns the operator's OPEN register or register.ErrNoOpenRegister.
func (r *RegisterRepository) GetOpen(ctx context.Context, operatorID string) (*register.Summary, error) {
	rows, err := r.pool.Query(ctx, getOpenRegisterSQL, operatorID)
	if err != nil {
		return nil, remote("get_user_cash_register", err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSummary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, register.ErrNoOpenRegister
		}
		return nil, remote("get_user_cash_register", err)
	}
	return &s, nil
}

// Open starts a register for the operator and returns its id.
func (r *RegisterRepository) Open(ctx context.Context, operatorID string, initialCash decimal.Decimal, notes string) (string, error) {
	var id string
	if err := r.pool.QueryRow(ctx, openRegisterSQL, operatorID, initialCash, notes).Scan(&id); err != nil {
		return "", remote("open_cash_register", err)
	}
	return id, nil
}

// Close closes the register with the counted cash.
func (r *RegisterRepository) Close(ctx context.Context, registerID string, finalCash decimal.Decimal, notes string) error {
	if _, err := r.pool.Exec(ctx, closeRegisterSQL, registerID, finalCash, notes); err != nil {
		return remote("close_cash_register", err)
	}
	return nil
}

// AddTransaction posts tx and returns its id.
func (r *RegisterRepository) AddTransaction(ctx context.Context, tx register.Transaction) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, addTransactionSQL,
		tx.RegisterID, string(tx.Type), tx.Amount, string(tx.PaymentMethod),
		nullable(tx.ReferenceID), tx.Notes, tx.CreatedBy,
	).Scan(&id)
	if err != nil {
		return "", remote("add_register_transaction", err)
	}
	return id, nil
}

// ListTransactions returns the register ledger, oldest first.
func (r *RegisterRepository) ListTransactions(ctx context.Context, registerID string) ([]register.Transaction, error) {
	rows, err := r.pool.Query(ctx, listTransactionsSQL, registerID)
	if err != nil {
		return nil, fmt.Errorf("listing register transactions: %w", err)
	}
	return pgx.CollectRows(rows, scanTransaction)
}

// HasSaleFor reports whether a SALE entry references invoiceID.
func (r *RegisterRepository) HasSaleFor(ctx context.Context, registerID, invoiceID string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, hasSaleForSQL, registerID, invoiceID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking register sale for %q: %w", invoiceID, err)
	}
	return ok, nil
}

func scanSummary(row pgx.CollectableRow) (register.Summary, error) {
	var (
		s          register.Summary
		status     string
		final      decimal.NullDecimal
		expected   decimal.NullDecimal
		difference decimal.NullDecimal
	)
	err := row.Scan(&s.ID, &s.OperatorID, &status, &s.OpenedAt, &s.ClosedAt,
		&s.InitialCash, &final, &expected, &difference, &s.Notes,
		&s.TotalSales, &s.TotalExpenses, &s.TotalWithdrawals, &s.TotalDeposits)
	if err != nil {
		return s, err
	}
	s.Status = register.Status(status)
	if final.Valid {
		s.FinalCash = &final.Decimal
	}
	if difference.Valid {
		s.CashDifference = &difference.Decimal
	}
	s.ExpectedCash = s.ComputeExpectedCash()
	if expected.Valid && !expected.Decimal.Equal(s.ExpectedCash) {
		return s, fmt.Errorf("register %s: expected cash %s does not match totals %s",
			s.ID, expected.Decimal, s.ExpectedCash)
	}
	return s, nil
}

func scanTransaction(row pgx.CollectableRow) (register.Transaction, error) {
	var (
		tx     register.Transaction
		typ    string
		method string
		ref    *string
	)
	err := row.Scan(&tx.ID, &tx.RegisterID, &typ, &tx.Amount, &method, &ref,
		&tx.Notes, &tx.CreatedAt, &tx.CreatedBy)
	tx.Type = register.TransactionType(typ)
	tx.PaymentMethod = payment.Method(method)
	tx.ReferenceID = deref(ref)
	return tx, err
}
