package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/caja-pos/internal/domain/auth"
	"github.com/xenking/caja-pos/internal/domain/cart"
	"github.com/xenking/caja-pos/internal/domain/customer"
	"github.com/xenking/caja-pos/internal/domain/discount"
	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/invoice"
	"github.com/xenking/caja-pos/internal/domain/product"
	"github.com/xenking/caja-pos/internal/domain/register"
	"github.com/xenking/caja-pos/internal/domain/sale"
	"github.com/xenking/caja-pos/internal/handler"
	"github.com/xenking/caja-pos/internal/terminal"
)

var pepper = []byte("test-pepper")

const apiKey = "caja-01-key"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- Fakes ---

type fakeOperators map[string]auth.Operator

func (f fakeOperators) FindByHash(_ context.Context, hash string) (*auth.Operator, error) {
	op, ok := f[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return &op, nil
}

type fakeProducts []product.Product

func (f fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	for i := range f {
		if f[i].ID == id {
			p := f[i]
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (f fakeProducts) Search(_ context.Context, q string, limit int) ([]product.Product, error) {
	var out []product.Product
	for _, p := range f {
		if q == "" || p.Barcode == q || strings.Contains(p.Name, q) {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCustomers map[string]customer.Customer

func (f fakeCustomers) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := f[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

type fakeDiscounts []discount.Discount

func (f fakeDiscounts) ListActive(context.Context) ([]discount.Discount, error) { return f, nil }

func (f fakeDiscounts) GetByID(_ context.Context, id string) (*discount.Discount, error) {
	for i := range f {
		if f[i].ID == id {
			d := f[i]
			return &d, nil
		}
	}
	return nil, discount.ErrNotFound
}

type fakeSequences []fiscal.Sequence

func (f fakeSequences) ListActive(context.Context) ([]fiscal.Sequence, error) { return f, nil }

func (f fakeSequences) GetByType(_ context.Context, t fiscal.DocumentType) (*fiscal.Sequence, error) {
	for i := range f {
		if f[i].DocumentType == t {
			s := f[i]
			return &s, nil
		}
	}
	return nil, fiscal.ErrSequenceNotFound
}

// backend is an in-memory sale gateway, invoice store and register ledger.
type backend struct {
	mu       sync.Mutex
	invoices map[string]*invoice.Invoice
	regs     map[string]*register.Summary
	txs      []register.Transaction
	seq      int
	// ledgerDown makes AddTransaction fail.
	ledgerDown bool
}

func newBackend() *backend {
	return &backend{
		invoices: map[string]*invoice.Invoice{},
		regs:     map[string]*register.Summary{},
	}
}

func (b *backend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s-%d", prefix, b.seq)
}

func (b *backend) CreateSale(_ context.Context, p sale.Payload) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID("inv")
	inv := &invoice.Invoice{
		ID:                 id,
		FiscalNumber:       fiscal.FormatNCF("E32", int64(len(b.invoices)+1)),
		FiscalDocumentType: p.FiscalDocumentType,
		Status:             invoice.Paid,
		CustomerID:         p.CustomerID,
		OperatorID:         p.OperatorID,
		Subtotal:           p.Subtotal,
		TaxAmount:          p.TaxAmount,
		DiscountAmount:     p.DiscountAmount,
		TotalAmount:        p.TotalAmount,
		Payment: invoice.Payment{
			Method:       p.PaymentMethod,
			AmountPaid:   p.AmountPaid,
			ChangeAmount: p.ChangeAmount,
		},
	}
	for _, it := range p.Items {
		inv.Items = append(inv.Items, invoice.Item{
			ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice,
			TaxAmount: it.TaxAmount, Subtotal: it.Subtotal, Total: it.Total,
		})
	}
	b.invoices[id] = inv
	return id, nil
}

func (b *backend) Get(_ context.Context, id string) (*invoice.Invoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.invoices[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (b *backend) Cancel(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invoices[id].Status = invoice.Cancelled
	return nil
}

func (b *backend) GetOpen(_ context.Context, operatorID string) (*register.Summary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.regs[operatorID]
	if !ok || s.Status != register.Open {
		return nil, register.ErrNoOpenRegister
	}
	cp := *s
	for _, tx := range b.txs {
		if tx.RegisterID != s.ID {
			continue
		}
		switch tx.Type {
		case register.Sale:
			cp.TotalSales = cp.TotalSales.Add(tx.Amount)
		case register.Expense:
			cp.TotalExpenses = cp.TotalExpenses.Add(tx.Amount)
		case register.Withdrawal:
			cp.TotalWithdrawals = cp.TotalWithdrawals.Add(tx.Amount)
		case register.Deposit:
			cp.TotalDeposits = cp.TotalDeposits.Add(tx.Amount)
		}
	}
	cp.ExpectedCash = cp.ComputeExpectedCash()
	return &cp, nil
}

func (b *backend) Open(_ context.Context, operatorID string, initial decimal.Decimal, notes string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID("reg")
	b.regs[operatorID] = &register.Summary{
		ID: id, OperatorID: operatorID, Status: register.Open,
		OpenedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), InitialCash: initial, Notes: notes,
	}
	return id, nil
}

func (b *backend) Close(_ context.Context, registerID string, final decimal.Decimal, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.regs {
		if s.ID == registerID {
			s.Status = register.Closed
			s.FinalCash = &final
		}
	}
	return nil
}

func (b *backend) AddTransaction(_ context.Context, tx register.Transaction) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ledgerDown {
		return "", errors.New("ledger unavailable")
	}
	tx.ID = b.nextID("tx")
	b.txs = append(b.txs, tx)
	return tx.ID, nil
}

func (b *backend) setLedgerDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ledgerDown = down
}

func (b *backend) ListTransactions(_ context.Context, registerID string) ([]register.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []register.Transaction
	for _, tx := range b.txs {
		if tx.RegisterID == registerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (b *backend) HasSaleFor(_ context.Context, registerID, invoiceID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.txs {
		if tx.RegisterID == registerID && tx.Type == register.Sale && tx.ReferenceID == invoiceID {
			return true, nil
		}
	}
	return false, nil
}

// --- Helpers ---

type server struct {
	t  *testing.T
	h  http.Handler
	be *backend
}

func newServer(t *testing.T) *server {
	t.Helper()
	be := newBackend()
	minimum := dec("1000")

	regs := register.NewService(be, be)
	sales := sale.NewService(be, be, regs, sale.Config{})
	sequences := fakeSequences{
		{DocumentType: fiscal.Consumo, Prefix: "E32", LastNumber: 0, RangeFrom: 1, RangeTo: 100, AlertThreshold: 10, Active: true},
		{DocumentType: fiscal.CreditoFiscal, Prefix: "E31", LastNumber: 95, RangeFrom: 1, RangeTo: 100, AlertThreshold: 10, Active: true},
	}
	products := fakeProducts{
		{ID: "p1", Name: "Cafe Santo Domingo", Barcode: "7460001", Price: dec("250.00"), Stock: 10},
		{ID: "p2", Name: "Salami Induveca", Barcode: "7460002", Price: dec("180.00"), Stock: 1},
	}
	fiscalSel := fiscal.NewSelector(sequences)

	mgr := terminal.NewManager(terminal.Deps{
		Products:  products,
		Customers: fakeCustomers{"c1": {ID: "c1", Name: "Ferreteria Ochoa", DocumentType: "RNC", Document: "101000001"}},
		Discounts: discount.NewSelector(fakeDiscounts{
			{ID: "vip", Name: "VIP 10%", Kind: discount.Percentage{Percent: dec("10")}, Active: true, MinPurchase: &minimum},
			{ID: "fixed50", Name: "RD$50", Kind: discount.Fixed{Amount: dec("50")}, Active: true},
		}),
		Fiscal:    fiscalSel,
		Sales:     sales,
		Registers: regs,
		TaxRate:   cart.DefaultTaxRate,
	})

	operators := fakeOperators{
		auth.HashKey(pepper, apiKey): {ID: "op-1", Name: "Maria", KeyHash: auth.HashKey(pepper, apiKey)},
	}
	h := handler.New(handler.Config{
		Auth:      auth.NewAuthenticator(operators, pepper),
		Terminals: mgr,
		Products:  products,
		Invoices:  sales,
		Registers: regs,
		Sequences: fiscalSel,
		Live:      func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
		Ready:     func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
	})
	return &server{t: t, h: h.Routes(), be: be}
}

func (s *server) do(method, path string, body any) (int, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(handler.APIKeyHeader, apiKey)
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.NewDecoder(w.Body).Decode(&out), w.Body.String())
	}
	return w.Code, out
}

// --- Tests ---

func TestAuth(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{name: "missing key", key: "", want: http.StatusUnauthorized},
		{name: "unknown key", key: "nope", want: http.StatusUnauthorized},
		{name: "valid key", key: apiKey, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
			if tt.key != "" {
				req.Header.Set(handler.APIKeyHeader, tt.key)
			}
			w := httptest.NewRecorder()
			s.h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "liveness without key", method: http.MethodGet, path: "/livez", want: http.StatusOK},
		{name: "readiness without key", method: http.MethodGet, path: "/readyz", want: http.StatusServiceUnavailable},
		{name: "unknown route", method: http.MethodGet, path: "/nope", want: http.StatusNotFound},
		{name: "api needs a key", method: http.MethodGet, path: "/api/nope", want: http.StatusUnauthorized},
		{name: "wrong method", method: http.MethodPatch, path: "/livez", want: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSearchProducts(t *testing.T) {
	s := newServer(t)

	code, body := s.do(http.MethodGet, "/api/products?q=7460002", nil)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	p := data[0].(map[string]any)
	assert.Equal(t, "p2", p["id"])
	assert.Equal(t, "180.00", p["price"])
}

func TestCartLifecycle(t *testing.T) {
	s := newServer(t)

	code, body := s.do(http.MethodPost, "/api/cart/lines", map[string]string{"product_id": "p1"})
	require.Equal(t, http.StatusOK, code, body)
	code, body = s.do(http.MethodPut, "/api/cart/lines/p1", map[string]int{"quantity": 4})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "1000.00", body["subtotal"])
	assert.Equal(t, "180.00", body["tax"])
	assert.Equal(t, "1180.00", body["total"])

	code, body = s.do(http.MethodGet, "/api/discounts", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 2)

	code, body = s.do(http.MethodPut, "/api/cart/discount", map[string]string{"discount_id": "vip"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "100.00", body["discount_amount"])
	assert.Equal(t, "1080.00", body["total"])
	assert.Equal(t, "vip", body["discount"].(map[string]any)["id"])

	// Going under the minimum purchase drops the discount.
	code, body = s.do(http.MethodPut, "/api/cart/lines/p1", map[string]int{"quantity": 3})
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["discount"])
	assert.Equal(t, "0.00", body["discount_amount"])
	assert.Equal(t, "885.00", body["total"])

	code, body = s.do(http.MethodPut, "/api/cart/discount", map[string]string{"discount_id": "vip"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "discount_id", body["field"])

	code, body = s.do(http.MethodPut, "/api/cart/customer", map[string]string{"customer_id": "c1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ferreteria Ochoa", body["customer"].(map[string]any)["name"])

	code, body = s.do(http.MethodDelete, "/api/cart/customer", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["customer"])

	code, _ = s.do(http.MethodDelete, "/api/cart/lines/p2", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(http.MethodDelete, "/api/cart", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["lines"])
	assert.Equal(t, "0.00", body["total"])
}

func TestRequestErrors(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name      string
		method    string
		path      string
		body      any
		wantCode  int
		wantField string
	}{
		{name: "empty body", method: http.MethodPost, path: "/api/cart/lines", wantCode: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/api/cart/lines", body: map[string]string{"sku": "p1"}, wantCode: http.StatusBadRequest},
		{name: "missing product", method: http.MethodPost, path: "/api/cart/lines", body: map[string]string{"product_id": ""}, wantCode: http.StatusUnprocessableEntity, wantField: "product_id"},
		{name: "unknown product", method: http.MethodPost, path: "/api/cart/lines", body: map[string]string{"product_id": "zzz"}, wantCode: http.StatusUnprocessableEntity, wantField: "product_id"},
		{name: "missing quantity", method: http.MethodPut, path: "/api/cart/lines/p1", body: map[string]string{}, wantCode: http.StatusUnprocessableEntity, wantField: "quantity"},
		{name: "unknown customer", method: http.MethodPut, path: "/api/cart/customer", body: map[string]string{"customer_id": "c9"}, wantCode: http.StatusUnprocessableEntity, wantField: "customer_id"},
		{name: "bad payment method", method: http.MethodPost, path: "/api/checkout/submit", body: map[string]string{"method": "BITCOIN"}, wantCode: http.StatusUnprocessableEntity, wantField: "method"},
		{name: "checkout with empty cart", method: http.MethodPost, path: "/api/checkout", wantCode: http.StatusConflict},
		{name: "fiscal type before checkout", method: http.MethodPut, path: "/api/checkout/fiscal-type", body: map[string]string{"type": "CONSUMO"}, wantCode: http.StatusConflict},
		{name: "no receipt yet", method: http.MethodGet, path: "/api/checkout/last", wantCode: http.StatusNotFound},
		{name: "unknown invoice", method: http.MethodGet, path: "/api/invoices/inv-404", wantCode: http.StatusNotFound},
		{name: "manual sale entry", method: http.MethodPost, path: "/api/register/transactions", body: map[string]string{"type": "SALE", "amount": "10"}, wantCode: http.StatusUnprocessableEntity, wantField: "type"},
		{name: "preview without amount", method: http.MethodGet, path: "/api/register/close/preview", wantCode: http.StatusUnprocessableEntity, wantField: "final_cash"},
		{name: "close without register", method: http.MethodPost, path: "/api/register/close", body: map[string]string{"final_cash": "0"}, wantCode: http.StatusConflict},
		{name: "negative opening float", method: http.MethodPost, path: "/api/register/open", body: map[string]string{"initial_cash": "-5"}, wantCode: http.StatusUnprocessableEntity, wantField: "initial_cash"},
		{name: "unknown route", method: http.MethodGet, path: "/api/nope", wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, code, body)
			assert.Equal(t, float64(tt.wantCode), body["code"])
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, body["field"])
			}
		})
	}
}

func TestCashSaleAndRegisterClose(t *testing.T) {
	s := newServer(t)

	code, _ := s.do(http.MethodPost, "/api/cart/lines", map[string]string{"product_id": "p1"})
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPut, "/api/cart/lines/p1", map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(http.MethodPost, "/api/checkout", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "CONSUMO", body["selected_fiscal_type"])
	assert.Equal(t, false, body["cash_allowed"])
	assert.Equal(t, "590.00", body["total"])
	assert.Len(t, body["fiscal_options"], 2)

	cash := map[string]string{"method": "CASH", "amount_tendered": "600"}
	code, body = s.do(http.MethodPost, "/api/checkout/submit", cash)
	require.Equal(t, http.StatusConflict, code, body)

	code, body = s.do(http.MethodPost, "/api/register/open", map[string]string{"initial_cash": "1000"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "OPEN", body["register"].(map[string]any)["status"])

	code, body = s.do(http.MethodPost, "/api/register/open", map[string]string{"initial_cash": "1000"})
	require.Equal(t, http.StatusConflict, code, body)

	code, body = s.do(http.MethodPost, "/api/checkout/submit", map[string]string{"method": "CASH", "amount_tendered": "589.99"})
	require.Equal(t, http.StatusUnprocessableEntity, code, body)
	assert.Equal(t, "amount_tendered", body["field"])

	code, body = s.do(http.MethodPost, "/api/checkout/submit", cash)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "10.00", body["change"])
	assert.Nil(t, body["sync_error"])
	inv := body["invoice"].(map[string]any)
	assert.Equal(t, "PAID", inv["status"])
	assert.Equal(t, "590.00", inv["total_amount"])
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", inv["customer_id"])
	reg := body["register"].(map[string]any)
	assert.Equal(t, "590.00", reg["total_sales"])
	assert.Equal(t, "1590.00", reg["expected_cash"])

	code, body = s.do(http.MethodGet, "/api/checkout/last", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, inv["id"], body["invoice"].(map[string]any)["id"])

	code, body = s.do(http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["lines"])

	// Reconciling an already posted sale is a no-op.
	code, body = s.do(http.MethodPost, "/api/register/reconcile/"+inv["id"].(string), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "590.00", body["register"].(map[string]any)["total_sales"])

	code, body = s.do(http.MethodPost, "/api/register/transactions", map[string]string{"type": "EXPENSE", "amount": "90", "notes": "hielo"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "1500.00", body["register"].(map[string]any)["expected_cash"])

	code, body = s.do(http.MethodGet, "/api/register/transactions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 2)

	code, body = s.do(http.MethodGet, "/api/register/close/preview?final_cash=1480", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "-20.00", body["difference"])
	assert.Equal(t, "SHORTAGE", body["outcome"])

	code, body = s.do(http.MethodPost, "/api/register/close", map[string]string{"final_cash": "1500"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "BALANCED", body["outcome"])

	code, body = s.do(http.MethodGet, "/api/register", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["register"])
}

func TestCashSaleWithLedgerFailure(t *testing.T) {
	s := newServer(t)

	code, body := s.do(http.MethodPost, "/api/register/open", map[string]string{"initial_cash": "1000"})
	require.Equal(t, http.StatusCreated, code, body)
	code, _ = s.do(http.MethodPost, "/api/cart/lines", map[string]string{"product_id": "p1"})
	require.Equal(t, http.StatusOK, code)

	s.be.setLedgerDown(true)
	code, body = s.do(http.MethodPost, "/api/checkout/submit", map[string]string{"method": "CASH", "amount_tendered": "300"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.NotEmpty(t, body["sync_error"])
	inv := body["invoice"].(map[string]any)
	assert.Equal(t, "PAID", inv["status"])
	invoiceID := inv["id"].(string)

	code, body = s.do(http.MethodPost, "/api/register/reconcile/"+invoiceID, nil)
	require.Equal(t, http.StatusBadGateway, code, body)
	assert.Equal(t, invoiceID, body["invoice_id"])

	s.be.setLedgerDown(false)
	code, body = s.do(http.MethodPost, "/api/register/reconcile/"+invoiceID, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "295.00", body["register"].(map[string]any)["total_sales"])

	code, body = s.do(http.MethodPost, "/api/register/reconcile/"+invoiceID, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "295.00", body["register"].(map[string]any)["total_sales"])
}

func TestCardSaleAndCancel(t *testing.T) {
	s := newServer(t)

	code, _ := s.do(http.MethodPost, "/api/cart/lines", map[string]string{"product_id": "p2"})
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPut, "/api/cart/customer", map[string]string{"customer_id": "c1"})
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(http.MethodPost, "/api/checkout", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["selected_fiscal_type"], "a customer means the operator picks")

	code, body = s.do(http.MethodPost, "/api/checkout/submit", map[string]string{"method": "CARD", "reference_number": "R1", "authorization_code": "A1"})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "fiscal_document_type", body["field"])

	code, body = s.do(http.MethodPut, "/api/checkout/fiscal-type", map[string]string{"type": "CREDITO_FISCAL"})
	require.Equal(t, http.StatusOK, code, body)

	code, body = s.do(http.MethodPost, "/api/checkout/submit", map[string]string{"method": "CARD", "reference_number": "R1"})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "authorization_code", body["field"])

	code, body = s.do(http.MethodPost, "/api/checkout/submit", map[string]string{"method": "CARD", "reference_number": "R1", "authorization_code": "A1"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Nil(t, body["register"])
	assert.Equal(t, "0.00", body["change"])
	inv := body["invoice"].(map[string]any)
	assert.Equal(t, "CREDITO_FISCAL", inv["fiscal_document_type"])
	assert.Equal(t, "c1", inv["customer_id"])
	assert.Equal(t, "212.40", inv["total_amount"])
	id := inv["id"].(string)

	code, body = s.do(http.MethodPost, "/api/register/reconcile/"+id, nil)
	assert.Equal(t, http.StatusConflict, code, body)

	code, body = s.do(http.MethodPost, "/api/invoices/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "CANCELLED", body["status"])

	code, body = s.do(http.MethodPost, "/api/invoices/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code, body)

	code, body = s.do(http.MethodGet, "/api/invoices/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", body["status"])
}

func TestFiscalAvailability(t *testing.T) {
	s := newServer(t)

	code, body := s.do(http.MethodGet, "/api/fiscal/availability/CREDITO_FISCAL", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(5), body["remaining"])
	assert.Equal(t, true, body["near_exhaustion"])
	assert.Equal(t, "E310000000096", body["next_number"])

	code, _ = s.do(http.MethodGet, "/api/fiscal/availability/GUBERNAMENTAL", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(http.MethodGet, "/api/fiscal/availability/BOGUS", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "type", body["field"])
}
