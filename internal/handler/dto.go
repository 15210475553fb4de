package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/cart"
	"github.com/xenking/caja-pos/internal/domain/customer"
	"github.com/xenking/caja-pos/internal/domain/discount"
	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/invoice"
	"github.com/xenking/caja-pos/internal/domain/money"
	"github.com/xenking/caja-pos/internal/domain/poserr"
	"github.com/xenking/caja-pos/internal/domain/product"
	"github.com/xenking/caja-pos/internal/domain/register"
	"github.com/xenking/caja-pos/internal/domain/sale"
	"github.com/xenking/caja-pos/internal/terminal"
)

const maxBodyBytes = 64 << 10

// --- Requests ---

type addLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type customerRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
}

type discountRequest struct {
	DiscountID string `json:"discount_id" validate:"required"`
}

type fiscalTypeRequest struct {
	Type string `json:"type" validate:"required"`
}

type submitRequest struct {
	Method            string `json:"method" validate:"required,oneof=CASH CARD TRANSFER CREDIT"`
	AmountTendered    string `json:"amount_tendered"`
	ReferenceNumber   string `json:"reference_number" validate:"max=100"`
	AuthorizationCode string `json:"authorization_code" validate:"max=100"`
}

type openRegisterRequest struct {
	InitialCash string `json:"initial_cash" validate:"required"`
	Notes       string `json:"notes" validate:"max=500"`
}

type closeRegisterRequest struct {
	FinalCash string `json:"final_cash" validate:"required"`
	Notes     string `json:"notes" validate:"max=500"`
}

type transactionRequest struct {
	Type   string `json:"type" validate:"required,oneof=EXPENSE WITHDRAWAL DEPOSIT"`
	Amount string `json:"amount" validate:"required"`
	Notes  string `json:"notes" validate:"max=500"`
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequestError{msg: "request body is empty"}
		}
		return &badRequestError{msg: "malformed request body: " + err.Error()}
	}

	if err := h.validate.Struct(dst); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return fieldError(fields[0])
		}
		return errors.Wrap(err, "validate request")
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return poserr.Invalid(fe.Field(), "is required")
	case "oneof":
		return poserr.Invalid(fe.Field(), "must be one of "+fe.Param())
	case "max":
		return poserr.Invalid(fe.Field(), "must be at most "+fe.Param()+" characters")
	}
	return poserr.Invalid(fe.Field(), "is invalid")
}

// --- Responses ---

func amount(d decimal.Decimal) string { return money.Format(d) }

func optAmount(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money.Format(*d)
	return &s
}

type productDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Barcode string `json:"barcode,omitempty"`
	Price   string `json:"price"`
	Stock   int    `json:"stock"`
}

func toProduct(p product.Product) productDTO {
	return productDTO{ID: p.ID, Name: p.Name, Barcode: p.Barcode, Price: amount(p.Price), Stock: p.Stock}
}

type customerDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DocumentType string `json:"document_type,omitempty"`
	Document     string `json:"document,omitempty"`
}

func toCustomer(c *customer.Customer) *customerDTO {
	if c == nil {
		return nil
	}
	return &customerDTO{ID: c.ID, Name: c.Name, DocumentType: c.DocumentType, Document: c.Document}
}

type discountDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Value       string  `json:"value"`
	MinPurchase *string `json:"min_purchase,omitempty"`
	MaxDiscount *string `json:"max_discount,omitempty"`
}

func toDiscount(d *discount.Discount) *discountDTO {
	if d == nil {
		return nil
	}
	out := &discountDTO{
		ID:          d.ID,
		Name:        d.Name,
		MinPurchase: optAmount(d.MinPurchase),
		MaxDiscount: optAmount(d.MaxDiscount),
	}
	if d.Kind != nil {
		out.Kind = d.Kind.Name()
		out.Value = amount(discount.KindValue(d.Kind))
	}
	return out
}

type discountOptionDTO struct {
	discountDTO
	Amount       string `json:"amount"`
	MeetsMinimum bool   `json:"meets_minimum"`
}

type lineDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	TaxRate   string `json:"tax_rate"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
	Subtotal  string `json:"subtotal"`
	Tax       string `json:"tax"`
	Total     string `json:"total"`
}

type totalsDTO struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Discount string `json:"discount_amount"`
	Total    string `json:"total"`
}

func toTotals(t cart.Totals) totalsDTO {
	return totalsDTO{
		Subtotal: amount(t.Subtotal),
		Tax:      amount(t.Tax),
		Discount: amount(t.Discount),
		Total:    amount(t.Total),
	}
}

type cartDTO struct {
	Lines    []lineDTO    `json:"lines"`
	Customer *customerDTO `json:"customer"`
	Discount *discountDTO `json:"discount"`
	totalsDTO
}

func toCart(v terminal.View) cartDTO {
	out := cartDTO{
		Lines:     make([]lineDTO, 0, len(v.Lines)),
		Customer:  toCustomer(v.Customer),
		Discount:  toDiscount(v.Discount),
		totalsDTO: toTotals(v.Totals),
	}
	for _, l := range v.Lines {
		out.Lines = append(out.Lines, lineDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: amount(l.UnitPrice),
			TaxRate:   l.TaxRate.String(),
			Quantity:  l.Quantity,
			Stock:     l.Stock,
			Subtotal:  amount(l.Subtotal),
			Tax:       amount(l.Tax),
			Total:     amount(l.Total),
		})
	}
	return out
}

type registerDTO struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	OpenedAt         time.Time  `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	InitialCash      string     `json:"initial_cash"`
	FinalCash        *string    `json:"final_cash,omitempty"`
	ExpectedCash     string     `json:"expected_cash"`
	CashDifference   *string    `json:"cash_difference,omitempty"`
	TotalSales       string     `json:"total_sales"`
	TotalExpenses    string     `json:"total_expenses"`
	TotalWithdrawals string     `json:"total_withdrawals"`
	TotalDeposits    string     `json:"total_deposits"`
	Notes            string     `json:"notes,omitempty"`
}

func toRegister(s *register.Summary) *registerDTO {
	if s == nil {
		return nil
	}
	return &registerDTO{
		ID:               s.ID,
		Status:           string(s.Status),
		OpenedAt:         s.OpenedAt,
		ClosedAt:         s.ClosedAt,
		InitialCash:      amount(s.InitialCash),
		FinalCash:        optAmount(s.FinalCash),
		ExpectedCash:     amount(s.ExpectedCash),
		CashDifference:   optAmount(s.CashDifference),
		TotalSales:       amount(s.TotalSales),
		TotalExpenses:    amount(s.TotalExpenses),
		TotalWithdrawals: amount(s.TotalWithdrawals),
		TotalDeposits:    amount(s.TotalDeposits),
		Notes:            s.Notes,
	}
}

type closeReportDTO struct {
	RegisterID string `json:"register_id"`
	Expected   string `json:"expected_cash"`
	Final      string `json:"final_cash"`
	Difference string `json:"difference"`
	Outcome    string `json:"outcome"`
}

func toCloseReport(r *register.CloseReport) closeReportDTO {
	return closeReportDTO{
		RegisterID: r.RegisterID,
		Expected:   amount(r.Expected),
		Final:      amount(r.Final),
		Difference: amount(r.Difference),
		Outcome:    string(r.Outcome),
	}
}

type transactionDTO struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toTransaction(t register.Transaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		Type:          string(t.Type),
		Amount:        amount(t.Amount),
		PaymentMethod: string(t.PaymentMethod),
		ReferenceID:   t.ReferenceID,
		Notes:         t.Notes,
		CreatedAt:     t.CreatedAt,
	}
}

type invoiceItemDTO struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TaxAmount   string `json:"tax_amount"`
	Subtotal    string `json:"subtotal"`
	Total       string `json:"total"`
}

type paymentDTO struct {
	Method            string `json:"method"`
	AmountPaid        string `json:"amount_paid"`
	ChangeAmount      string `json:"change_amount"`
	ReferenceNumber   string `json:"reference_number,omitempty"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
}

type invoiceDTO struct {
	ID                 string           `json:"id"`
	FiscalNumber       string           `json:"fiscal_number,omitempty"`
	FiscalDocumentType string           `json:"fiscal_document_type"`
	Status             string           `json:"status"`
	CustomerID         string           `json:"customer_id"`
	CustomerName       string           `json:"customer_name,omitempty"`
	CustomerDocument   string           `json:"customer_document,omitempty"`
	Subtotal           string           `json:"subtotal"`
	TaxAmount          string           `json:"tax_amount"`
	DiscountAmount     string           `json:"discount_amount"`
	TotalAmount        string           `json:"total_amount"`
	Payment            paymentDTO       `json:"payment"`
	Items              []invoiceItemDTO `json:"items"`
	CreatedAt          time.Time        `json:"created_at"`
}

func toInvoice(inv *invoice.Invoice) invoiceDTO {
	out := invoiceDTO{
		ID:                 inv.ID,
		FiscalNumber:       inv.FiscalNumber,
		FiscalDocumentType: string(inv.FiscalDocumentType),
		Status:             string(inv.Status),
		CustomerID:         inv.CustomerID,
		CustomerName:       inv.CustomerName,
		CustomerDocument:   inv.CustomerDocument,
		Subtotal:           amount(inv.Subtotal),
		TaxAmount:          amount(inv.TaxAmount),
		DiscountAmount:     amount(inv.DiscountAmount),
		TotalAmount:        amount(inv.TotalAmount),
		Payment: paymentDTO{
			Method:            string(inv.Payment.Method),
			AmountPaid:        amount(inv.Payment.AmountPaid),
			ChangeAmount:      amount(inv.Payment.ChangeAmount),
			ReferenceNumber:   inv.Payment.ReferenceNumber,
			AuthorizationCode: inv.Payment.AuthorizationCode,
		},
		Items:     make([]invoiceItemDTO, 0, len(inv.Items)),
		CreatedAt: inv.CreatedAt,
	}
	for _, it := range inv.Items {
		out.Items = append(out.Items, invoiceItemDTO{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   amount(it.UnitPrice),
			TaxAmount:   amount(it.TaxAmount),
			Subtotal:    amount(it.Subtotal),
			Total:       amount(it.Total),
		})
	}
	return out
}

type receiptDTO struct {
	Invoice  invoiceDTO   `json:"invoice"`
	Change   string       `json:"change"`
	Register *registerDTO `json:"register,omitempty"`
	// SyncError is set when the sale is stored but the register entry is
	// missing. The terminal must reconcile, not resubmit.
	SyncError string `json:"sync_error,omitempty"`
}

func toReceipt(r *sale.Receipt) receiptDTO {
	out := receiptDTO{
		Invoice:  toInvoice(r.Invoice),
		Change:   amount(r.Change),
		Register: toRegister(r.Register),
	}
	if r.SyncErr != nil {
		out.SyncError = r.SyncErr.Error()
	}
	return out
}

type fiscalOptionDTO struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

type checkoutDTO struct {
	Options     []fiscalOptionDTO `json:"fiscal_options"`
	Selected    string            `json:"selected_fiscal_type,omitempty"`
	CashAllowed bool              `json:"cash_allowed"`
	Register    *registerDTO      `json:"register"`
	totalsDTO
}

func toCheckout(c terminal.Checkout) checkoutDTO {
	out := checkoutDTO{
		Options:     make([]fiscalOptionDTO, 0, len(c.Options)),
		Selected:    string(c.Selected),
		CashAllowed: c.CashAllowed,
		Register:    toRegister(c.Register),
		totalsDTO:   toTotals(c.Totals),
	}
	for _, o := range c.Options {
		out.Options = append(out.Options, fiscalOptionDTO{Type: string(o.Type), Label: o.Label})
	}
	return out
}

type availabilityDTO struct {
	Type           string `json:"type"`
	Remaining      int64  `json:"remaining"`
	NearExhaustion bool   `json:"near_exhaustion"`
	Exhausted      bool   `json:"exhausted"`
	NextNumber     string `json:"next_number,omitempty"`
}

func toAvailability(a fiscal.Availability) availabilityDTO {
	return availabilityDTO{
		Type:           string(a.DocumentType),
		Remaining:      a.Remaining,
		NearExhaustion: a.NearExhaustion,
		Exhausted:      a.Exhausted,
		NextNumber:     a.NextNumber,
	}
}
