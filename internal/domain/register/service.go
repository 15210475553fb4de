package register

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/caja-pos/internal/domain/invoice"
	"github.com/xenking/caja-pos/internal/domain/money"
	"github.com/xenking/caja-pos/internal/domain/payment"
	"github.com/xenking/caja-pos/internal/domain/poserr"
)

// Locker serializes work on one operator's register across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Option configures a Service.
type Option func(*Service)

// WithLocker guards Reconcile with l.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// Service runs cash register operations for operators.
type Service struct {
	repo     Repository
	invoices invoice.Repository
	locker   Locker
	refresh  singleflight.Group
}

// NewService creates a Service.
func NewService(repo Repository, invoices invoice.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, invoices: invoices}
	for _, o := range opts {
		o(s)
	}
	return s
}

// refreshTimeout bounds a shared register lookup, which outlives the caller
// that started it.
const refreshTimeout = 10 * time.Second

// Current returns the operator's OPEN register, or nil when there is none.
// Concurrent calls for the same operator share one backend round trip; each
// caller still stops waiting when its own ctx is done.
func (s *Service) Current(ctx context.Context, operatorID string) (*Summary, error) {
	ch := s.refresh.DoChan(operatorID, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		sum, err := s.repo.GetOpen(lookupCtx, operatorID)
		if errors.Is(err, ErrNoOpenRegister) {
			return (*Summary)(nil), nil
		}
		if err != nil {
			return nil, poserr.Remote("get_user_cash_register", err)
		}
		return sum, nil
	})
	select {
	case <-ctx.Done():
		return nil, poserr.Remote("get_user_cash_register", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Summary), nil
	}
}

// reload reads the register after a write. A lookup already in flight may
// predate the write, so it is not joined.
func (s *Service) reload(ctx context.Context, operatorID string) (*Summary, error) {
	s.refresh.Forget(operatorID)
	return s.Current(ctx, operatorID)
}

func (s *Service) requireOpen(ctx context.Context, operatorID string) (*Summary, error) {
	cur, err := s.Current(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if !cur.IsOpen() {
		return nil, poserr.PreconditionFrom(ErrNoOpenRegister)
	}
	return cur, nil
}

// Open starts a register session with the counted opening float.
func (s *Service) Open(ctx context.Context, operatorID, initialCash, notes string) (*Summary, error) {
	initial, err := money.ParseNonNegative(initialCash)
	if err != nil {
		return nil, poserr.Invalid("initial_cash", err.Error())
	}

	cur, err := s.Current(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if cur.IsOpen() {
		return nil, poserr.PreconditionFrom(ErrAlreadyOpen)
	}

	id, err := s.repo.Open(ctx, operatorID, initial, notes)
	if err != nil {
		return nil, poserr.Remote("open_cash_register", err)
	}
	zctx.From(ctx).Info("Cash register opened",
		zap.String("register_id", id),
		zap.String("initial_cash", money.Format(initial)),
	)
	return s.reload(ctx, operatorID)
}

// Preview computes the close report for finalCash without closing.
func (s *Service) Preview(ctx context.Context, operatorID, finalCash string) (*CloseReport, error) {
	final, err := money.ParseNonNegative(finalCash)
	if err != nil {
		return nil, poserr.Invalid("final_cash", err.Error())
	}
	cur, err := s.requireOpen(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	report := NewCloseReport(cur, final)
	return &report, nil
}

// Close ends the operator's register session with the counted cash.
func (s *Service) Close(ctx context.Context, operatorID, finalCash, notes string) (*CloseReport, error) {
	report, err := s.Preview(ctx, operatorID, finalCash)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Close(ctx, report.RegisterID, report.Final, notes); err != nil {
		return nil, poserr.Remote("close_cash_register", err)
	}
	zctx.From(ctx).Info("Cash register closed",
		zap.String("register_id", report.RegisterID),
		zap.String("expected", money.Format(report.Expected)),
		zap.String("final", money.Format(report.Final)),
		zap.String("difference", money.Format(report.Difference)),
		zap.String("outcome", string(report.Outcome)),
	)
	return report, nil
}

// AddTransaction posts a manual expense, withdrawal or deposit and returns
// the refreshed register.
func (s *Service) AddTransaction(ctx context.Context, operatorID string, typ TransactionType, amount, notes string) (*Summary, error) {
	if !typ.Manual() {
		return nil, poserr.Invalid("type", "transaction type must be EXPENSE, WITHDRAWAL or DEPOSIT")
	}
	amt, err := money.ParsePositive(amount)
	if err != nil {
		return nil, poserr.Invalid("amount", err.Error())
	}
	cur, err := s.requireOpen(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.AddTransaction(ctx, Transaction{
		RegisterID:    cur.ID,
		Type:          typ,
		Amount:        amt,
		PaymentMethod: payment.Cash,
		Notes:         notes,
		CreatedBy:     operatorID,
	}); err != nil {
		return nil, poserr.Remote("add_register_transaction", err)
	}
	return s.reload(ctx, operatorID)
}

// RecordSale posts the SALE entry for a cash invoice and refreshes the
// register. A failed post is reported as a ReconciliationSyncError since the
// sale itself already happened.
func (s *Service) RecordSale(ctx context.Context, operatorID, registerID string, inv *invoice.Invoice) (*Summary, error) {
	if _, err := s.repo.AddTransaction(ctx, Transaction{
		RegisterID:    registerID,
		Type:          Sale,
		Amount:        inv.TotalAmount,
		PaymentMethod: payment.Cash,
		ReferenceID:   inv.ID,
		Notes:         "Venta #" + inv.DisplayNumber(),
		CreatedBy:     operatorID,
	}); err != nil {
		zctx.From(ctx).Error("Register sale post failed",
			zap.String("invoice_id", inv.ID),
			zap.String("register_id", registerID),
			zap.Error(err),
		)
		return nil, &poserr.ReconciliationSyncError{InvoiceID: inv.ID, Err: err}
	}

	sum, err := s.reload(ctx, operatorID)
	if err != nil {
		// The entry is posted; a stale view is fixed by the next refresh.
		zctx.From(ctx).Warn("Register refresh after sale failed", zap.Error(err))
		return nil, nil
	}
	return sum, nil
}

// Reconcile posts the missing SALE entry for a paid cash invoice. It is a
// no-op when the entry already exists.
func (s *Service) Reconcile(ctx context.Context, operatorID, invoiceID string) (*Summary, error) {
	if s.locker == nil {
		return s.reconcile(ctx, operatorID, invoiceID)
	}
	var sum *Summary
	err := s.locker.WithLock(ctx, "pos:register:"+operatorID, 30*time.Second, func(ctx context.Context) error {
		var err error
		sum, err = s.reconcile(ctx, operatorID, invoiceID)
		return err
	})
	return sum, err
}

func (s *Service) reconcile(ctx context.Context, operatorID, invoiceID string) (*Summary, error) {
	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			return nil, err
		}
		return nil, poserr.Remote("get_invoice", err)
	}
	if inv.Status != invoice.Paid || inv.Payment.Method != payment.Cash {
		return nil, poserr.Precondition("only paid cash invoices are posted to the register")
	}

	cur, err := s.requireOpen(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	posted, err := s.repo.HasSaleFor(ctx, cur.ID, inv.ID)
	if err != nil {
		return nil, poserr.Remote("list_register_transactions", err)
	}
	if posted {
		return cur, nil
	}
	return s.RecordSale(ctx, operatorID, cur.ID, inv)
}

// Transactions lists the ledger of the operator's OPEN register.
func (s *Service) Transactions(ctx context.Context, operatorID string) ([]Transaction, error) {
	cur, err := s.requireOpen(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, cur.ID)
	if err != nil {
		return nil, poserr.Remote("list_register_transactions", err)
	}
	return txs, nil
}
