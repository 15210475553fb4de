package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/invoice"
	"github.com/xenking/caja-pos/internal/domain/payment"
)

const (
	getInvoiceSQL = `SELECT i.id, i.fiscal_number, i.fiscal_document_type, i.status,
			i.customer_id, c.name, c.document, i.operator_id,
			i.subtotal, i.tax_amount, i.discount_amount, i.discount_id::text, i.total_amount,
			p.method, p.amount_paid, p.change_amount, p.reference_number, p.authorization_code,
			i.created_at
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		JOIN payments p ON p.invoice_id = i.id
		WHERE i.id = $1`

	listInvoiceItemsSQL = `SELECT product_id, product_name, quantity, unit_price, tax_rate, tax_amount, subtotal, total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY product_name`

	cancelInvoiceSQL = `SELECT cancel_invoice($1)`

	listFiscalNumbersSQL = `SELECT fiscal_number FROM invoices ORDER BY created_at`
)

var _ invoice.Repository = (*InvoiceRepository)(nil)

// InvoiceRepository implements invoice.Repository backed by PostgreSQL.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository returns an InvoiceRepository that uses the given pool.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// Get returns the invoice with its customer, payment and items.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	if uuid.Validate(id) != nil {
		return nil, invoice.ErrNotFound
	}

	var (
		inv        invoice.Invoice
		docType    string
		status     string
		method     string
		discountID *string
	)
	err := r.pool.QueryRow(ctx, getInvoiceSQL, id).Scan(
		&inv.ID, &inv.FiscalNumber, &docType, &status,
		&inv.CustomerID, &inv.CustomerName, &inv.CustomerDocument, &inv.OperatorID,
		&inv.Subtotal, &inv.TaxAmount, &inv.DiscountAmount, &discountID, &inv.TotalAmount,
		&method, &inv.Payment.AmountPaid, &inv.Payment.ChangeAmount,
		&inv.Payment.ReferenceNumber, &inv.Payment.AuthorizationCode,
		&inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}
		return nil, fmt.Errorf("getting invoice %q: %w", id, err)
	}
	inv.FiscalDocumentType = fiscal.DocumentType(docType)
	inv.Status = invoice.Status(status)
	inv.Payment.Method = payment.Method(method)
	inv.DiscountID = deref(discountID)

	rows, err := r.pool.Query(ctx, listInvoiceItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing items of invoice %q: %w", id, err)
	}
	inv.Items, err = pgx.CollectRows(rows, scanInvoiceItem)
	if err != nil {
		return nil, fmt.Errorf("listing items of invoice %q: %w", id, err)
	}
	return &inv, nil
}

// Cancel runs cancel_invoice, which checks the status, restores stock and
// marks the invoice CANCELLED in one transaction.
func (r *InvoiceRepository) Cancel(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return invoice.ErrNotFound
	}
	if _, err := r.pool.Exec(ctx, cancelInvoiceSQL, id); err != nil {
		return remote("cancel_invoice", err)
	}
	return nil
}

// ScanFiscalNumbers streams the e-CF number of every stored invoice,
// cancelled ones included.
func (r *InvoiceRepository) ScanFiscalNumbers(ctx context.Context, fn func(ncf string)) error {
	rows, err := r.pool.Query(ctx, listFiscalNumbersSQL)
	if err != nil {
		return fmt.Errorf("listing fiscal numbers: %w", err)
	}
	defer rows.Close()

	var ncf string
	_, err = pgx.ForEachRow(rows, []any{&ncf}, func() error {
		fn(ncf)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing fiscal numbers: %w", err)
	}
	return nil
}

func scanInvoiceItem(row pgx.CollectableRow) (invoice.Item, error) {
	var it invoice.Item
	err := row.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice,
		&it.TaxRate, &it.TaxAmount, &it.Subtotal, &it.Total)
	return it, err
}
