// Package handler exposes the terminal, invoice and cash register operations
// over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/caja-pos/internal/domain/auth"
	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/invoice"
	"github.com/xenking/caja-pos/internal/domain/product"
	"github.com/xenking/caja-pos/internal/domain/register"
	"github.com/xenking/caja-pos/internal/domain/sale"
	"github.com/xenking/caja-pos/internal/terminal"
)

// Authenticator resolves an api_key header value to an operator.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.Operator, error)
}

// Terminals hands out the session of an operator.
type Terminals interface {
	Session(operatorID string) *terminal.Session
}

// Invoices reads and cancels stored sales.
type Invoices interface {
	Invoice(ctx context.Context, id string) (*invoice.Invoice, error)
	CancelInvoice(ctx context.Context, id string) (*invoice.Invoice, error)
}

// Registers runs cash register operations.
type Registers interface {
	Current(ctx context.Context, operatorID string) (*register.Summary, error)
	Open(ctx context.Context, operatorID, initialCash, notes string) (*register.Summary, error)
	Preview(ctx context.Context, operatorID, finalCash string) (*register.CloseReport, error)
	Close(ctx context.Context, operatorID, finalCash, notes string) (*register.CloseReport, error)
	AddTransaction(ctx context.Context, operatorID string, typ register.TransactionType, amount, notes string) (*register.Summary, error)
	Reconcile(ctx context.Context, operatorID, invoiceID string) (*register.Summary, error)
	Transactions(ctx context.Context, operatorID string) ([]register.Transaction, error)
}

// Sequences reports fiscal sequence availability.
type Sequences interface {
	Availability(ctx context.Context, t fiscal.DocumentType) (fiscal.Availability, error)
}

var (
	_ Authenticator = (*auth.Authenticator)(nil)
	_ Terminals     = (*terminal.Manager)(nil)
	_ Invoices      = (*sale.Service)(nil)
	_ Registers     = (*register.Service)(nil)
	_ Sequences     = (*fiscal.Selector)(nil)
)

// Config holds the Handler dependencies.
type Config struct {
	Auth      Authenticator
	Terminals Terminals
	Products  product.Repository
	Invoices  Invoices
	Registers Registers
	Sequences Sequences
	// SearchLimit caps catalog search results. Defaults to 50.
	SearchLimit int
	// Live and Ready serve /livez and /readyz without authentication.
	Live  http.HandlerFunc
	Ready http.HandlerFunc
}

// Handler serves the point-of-sale API.
type Handler struct {
	auth        Authenticator
	terminals   Terminals
	products    product.Repository
	invoices    Invoices
	registers   Registers
	sequences   Sequences
	searchLimit int
	live        http.HandlerFunc
	ready       http.HandlerFunc
	validate    *validator.Validate
}

// New creates a Handler.
func New(cfg Config) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	h := &Handler{
		auth:        cfg.Auth,
		terminals:   cfg.Terminals,
		products:    cfg.Products,
		invoices:    cfg.Invoices,
		registers:   cfg.Registers,
		sequences:   cfg.Sequences,
		searchLimit: cfg.SearchLimit,
		live:        cfg.Live,
		ready:       cfg.Ready,
		validate:    v,
	}
	if h.searchLimit <= 0 {
		h.searchLimit = 50
	}
	return h
}

// Routes returns the router: health endpoints at the root and the API under /api.
// Every API route requires an api_key.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Code: http.StatusNotFound, Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})

	if h.live != nil {
		r.Get("/livez", h.live)
	}
	if h.ready != nil {
		r.Get("/readyz", h.ready)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/products", h.SearchProducts)
		r.Get("/discounts", h.ListDiscounts)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/lines", h.AddLine)
			r.Put("/lines/{productID}", h.SetQuantity)
			r.Delete("/lines/{productID}", h.RemoveLine)
			r.Put("/customer", h.SetCustomer)
			r.Delete("/customer", h.DetachCustomer)
			r.Put("/discount", h.SelectDiscount)
			r.Delete("/discount", h.ClearDiscount)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.OpenCheckout)
			r.Put("/fiscal-type", h.SelectFiscalType)
			r.Post("/submit", h.Submit)
			r.Get("/last", h.LastReceipt)
		})

		r.Get("/fiscal/availability/{type}", h.FiscalAvailability)

		r.Get("/invoices/{id}", h.GetInvoice)
		r.Post("/invoices/{id}/cancel", h.CancelInvoice)

		r.Route("/register", func(r chi.Router) {
			r.Get("/", h.GetRegister)
			r.Post("/open", h.OpenRegister)
			r.Post("/close", h.CloseRegister)
			r.Get("/close/preview", h.PreviewClose)
			r.Get("/transactions", h.ListTransactions)
			r.Post("/transactions", h.AddTransaction)
			r.Post("/reconcile/{invoiceID}", h.Reconcile)
		})
	})
	return r
}

func (h *Handler) session(r *http.Request) *terminal.Session {
	op, _ := auth.FromContext(r.Context())
	return h.terminals.Session(op.ID)
}

func operatorID(r *http.Request) string {
	op, _ := auth.FromContext(r.Context())
	return op.ID
}
