package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/caja-pos/internal/domain/cart"
	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/invoice"
	"github.com/xenking/caja-pos/internal/domain/money"
	"github.com/xenking/caja-pos/internal/domain/payment"
	"github.com/xenking/caja-pos/internal/domain/poserr"
	"github.com/xenking/caja-pos/internal/domain/register"
	"github.com/xenking/caja-pos/internal/lock"
)

// ErrInFlight is returned when a sale for the same operator is already being
// submitted.
var ErrInFlight = errors.New("a sale is already being submitted")

// DefaultTimeout bounds each backend call made while submitting a sale.
const DefaultTimeout = 15 * time.Second

// Registers is the part of the cash register service a sale needs.
type Registers interface {
	Current(ctx context.Context, operatorID string) (*register.Summary, error)
	RecordSale(ctx context.Context, operatorID, registerID string, inv *invoice.Invoice) (*register.Summary, error)
}

// Locker serializes submissions across server replicas. TryWithLock must
// return lock.ErrNotAcquired when the key is held elsewhere.
type Locker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Config holds optional Service dependencies.
type Config struct {
	// Timeout bounds every backend call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Locker, when set, guards submissions per operator.
	Locker  Locker
	LockTTL time.Duration
	Metrics *Metrics
	Tracer  trace.Tracer
}

// Service submits and cancels sales.
type Service struct {
	gateway   Gateway
	invoices  invoice.Repository
	registers Registers
	timeout   time.Duration
	locker    Locker
	lockTTL   time.Duration
	metrics   *Metrics
	tracer    trace.Tracer
}

// NewService creates a Service.
func NewService(gw Gateway, invoices invoice.Repository, registers Registers, cfg Config) *Service {
	s := &Service{
		gateway:   gw,
		invoices:  invoices,
		registers: registers,
		timeout:   cfg.Timeout,
		locker:    cfg.Locker,
		lockTTL:   cfg.LockTTL,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 2 * s.timeout
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("")
	}
	return s
}

// Request is a sale ready to be submitted.
type Request struct {
	OperatorID string
	Cart       *cart.Cart
	FiscalType fiscal.DocumentType
	Tender     payment.Tender
}

// Receipt is the outcome of a successful sale.
//
// SyncErr is set when the sale was stored but its cash register entry could
// not be posted. The sale must not be retried; see register.Service.Reconcile.
type Receipt struct {
	Invoice  *invoice.Invoice
	Change   decimal.Decimal
	Register *register.Summary
	SyncErr  *poserr.ReconciliationSyncError
}

// Process validates and submits the sale in req. On success the cart is
// cleared; on any failure it is left untouched.
//
// Backend calls are detached from ctx cancellation and bounded by the
// configured timeout. When that timeout fires the sale may or may not have
// been recorded, and the returned RemoteOperationError has Unknown set.
func (s *Service) Process(ctx context.Context, req Request) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "sale.Process",
		trace.WithAttributes(attribute.String("operator_id", req.OperatorID)))
	defer span.End()

	if req.Cart == nil || req.Cart.IsEmpty() {
		return nil, poserr.Precondition("cart is empty")
	}
	if req.FiscalType == "" {
		return nil, poserr.Invalid("fiscal_document_type", "a fiscal document type must be selected")
	}

	var reg *register.Summary
	if req.Tender != nil && req.Tender.Method() == payment.Cash {
		cur, err := s.registers.Current(ctx, req.OperatorID)
		if err != nil {
			return nil, err
		}
		reg = cur
	}
	if err := payment.Validate(req.Tender, req.Cart.Total(), payment.RegisterState{Open: reg.IsOpen()}); err != nil {
		return nil, err
	}

	var receipt *Receipt
	submit := func(ctx context.Context) error {
		r, err := s.submit(ctx, req, reg)
		receipt = r
		return err
	}

	var err error
	if s.locker == nil {
		err = submit(ctx)
	} else {
		err = s.locker.TryWithLock(ctx, "pos:sale:"+req.OperatorID, s.lockTTL, submit)
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, poserr.PreconditionFrom(ErrInFlight)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sale failed")
		return nil, err
	}
	return receipt, nil
}

func (s *Service) submit(ctx context.Context, req Request, reg *register.Summary) (*Receipt, error) {
	lg := zctx.From(ctx)
	detached := context.WithoutCancel(ctx)

	var registerID string
	if reg != nil {
		registerID = reg.ID
	}
	payload := BuildPayload(req.Cart, req.FiscalType, req.Tender, req.OperatorID, registerID)

	invoiceID, err := s.call(detached, "create_sale", func(ctx context.Context) (string, error) {
		return s.gateway.CreateSale(ctx, payload)
	})
	if err != nil {
		s.metrics.failure(ctx, poserr.IsUnknownOutcome(err))
		lg.Warn("Sale rejected", zap.Error(err))
		return nil, err
	}

	inv, err := s.fetch(detached, invoiceID)
	if err != nil {
		// The sale is stored; report it from the payload rather than fail.
		lg.Warn("Fetch created invoice failed", zap.String("invoice_id", invoiceID), zap.Error(err))
		inv = invoiceFromPayload(invoiceID, payload)
	}

	req.Cart.Clear()
	s.metrics.sale(ctx, payload.PaymentMethod, payload.TotalAmount)
	lg.Info("Sale completed",
		zap.String("invoice_id", inv.ID),
		zap.String("fiscal_number", inv.FiscalNumber),
		zap.String("method", string(payload.PaymentMethod)),
		zap.String("total", money.Format(payload.TotalAmount)),
	)

	receipt := &Receipt{Invoice: inv, Change: payload.ChangeAmount}
	if payload.PaymentMethod != payment.Cash || reg == nil {
		return receipt, nil
	}

	postCtx, cancel := context.WithTimeout(detached, s.timeout)
	defer cancel()
	sum, err := s.registers.RecordSale(postCtx, req.OperatorID, reg.ID, inv)
	if err != nil {
		var se *poserr.ReconciliationSyncError
		if !errors.As(err, &se) {
			se = &poserr.ReconciliationSyncError{InvoiceID: inv.ID, Err: err}
		}
		s.metrics.syncError(ctx)
		receipt.SyncErr = se
		return receipt, nil
	}
	receipt.Register = sum
	return receipt, nil
}

// call runs fn under the service timeout and classifies its error.
func (s *Service) call(ctx context.Context, op string, fn func(context.Context) (string, error)) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", &poserr.RemoteOperationError{
			Op:      op,
			Message: "backend did not answer in time",
			Unknown: true,
			Err:     err,
		}
	}
	return "", poserr.Remote(op, err)
}

func (s *Service) fetch(ctx context.Context, id string) (*invoice.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.invoices.Get(ctx, id)
}

func invoiceFromPayload(id string, p Payload) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:                 id,
		FiscalDocumentType: p.FiscalDocumentType,
		Status:             invoice.Paid,
		CustomerID:         p.CustomerID,
		OperatorID:         p.OperatorID,
		Subtotal:           p.Subtotal,
		TaxAmount:          p.TaxAmount,
		DiscountAmount:     p.DiscountAmount,
		DiscountID:         p.DiscountID,
		TotalAmount:        p.TotalAmount,
		Payment: invoice.Payment{
			Method:            p.PaymentMethod,
			AmountPaid:        p.AmountPaid,
			ChangeAmount:      p.ChangeAmount,
			ReferenceNumber:   p.ReferenceNumber,
			AuthorizationCode: p.AuthorizationCode,
		},
	}
	for _, it := range p.Items {
		inv.Items = append(inv.Items, invoice.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			TaxRate:   it.TaxRate,
			TaxAmount: it.TaxAmount,
			Subtotal:  it.Subtotal,
			Total:     it.Total,
		})
	}
	return inv
}

// Invoice refetches an invoice.
func (s *Service) Invoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.fetch(ctx, id)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			return nil, err
		}
		return nil, poserr.Remote("get_invoice", err)
	}
	return inv, nil
}

// CancelInvoice cancels a PAID invoice, restoring stock for its items, and
// returns the refetched invoice.
func (s *Service) CancelInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	ctx, span := s.tracer.Start(ctx, "sale.CancelInvoice",
		trace.WithAttributes(attribute.String("invoice_id", id)))
	defer span.End()

	inv, err := s.Invoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.Cancellable() {
		return nil, poserr.Precondition("only paid invoices can be cancelled, invoice is " + string(inv.Status))
	}

	if _, err := s.call(context.WithoutCancel(ctx), "cancel_invoice", func(ctx context.Context) (string, error) {
		return "", s.invoices.Cancel(ctx, id)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.cancel(ctx)
	zctx.From(ctx).Info("Invoice cancelled",
		zap.String("invoice_id", id),
		zap.String("fiscal_number", inv.FiscalNumber),
	)
	return s.Invoice(ctx, id)
}
