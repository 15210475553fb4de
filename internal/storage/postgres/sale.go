package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/caja-pos/internal/domain/money"
	"github.com/xenking/caja-pos/internal/domain/sale"
)

const createSaleSQL = `SELECT create_sale($1::jsonb)`

var _ sale.Gateway = (*SaleGateway)(nil)

// SaleGateway records sales through the create_sale stored function.
type SaleGateway struct {
	pool *pgxpool.Pool
}

// NewSaleGateway returns a SaleGateway that uses the given pool.
func NewSaleGateway(pool *pgxpool.Pool) *SaleGateway {
	return &SaleGateway{pool: pool}
}

type saleItemJSON struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	TaxRate   string `json:"tax_rate"`
	TaxAmount string `json:"tax_amount"`
	Subtotal  string `json:"subtotal"`
	Total     string `json:"total"`
}

type saleJSON struct {
	CustomerID         string         `json:"customer_id"`
	OperatorID         string         `json:"operator_id"`
	RegisterID         string         `json:"register_id,omitempty"`
	Subtotal           string         `json:"subtotal"`
	TaxAmount          string         `json:"tax_amount"`
	DiscountAmount     string         `json:"discount_amount"`
	DiscountID         string         `json:"discount_id,omitempty"`
	TotalAmount        string         `json:"total_amount"`
	PaymentMethod      string         `json:"payment_method"`
	AmountPaid         string         `json:"amount_paid"`
	ChangeAmount       string         `json:"change_amount"`
	ReferenceNumber    string         `json:"reference_number,omitempty"`
	AuthorizationCode  string         `json:"authorization_code,omitempty"`
	FiscalDocumentType string         `json:"fiscal_document_type"`
	Items              []saleItemJSON `json:"items"`
}

func encodeSale(p sale.Payload) ([]byte, error) {
	body := saleJSON{
		CustomerID:         p.CustomerID,
		OperatorID:         p.OperatorID,
		RegisterID:         p.RegisterID,
		Subtotal:           money.Format(p.Subtotal),
		TaxAmount:          money.Format(p.TaxAmount),
		DiscountAmount:     money.Format(p.DiscountAmount),
		DiscountID:         p.DiscountID,
		TotalAmount:        money.Format(p.TotalAmount),
		PaymentMethod:      string(p.PaymentMethod),
		AmountPaid:         money.Format(p.AmountPaid),
		ChangeAmount:       money.Format(p.ChangeAmount),
		ReferenceNumber:    p.ReferenceNumber,
		AuthorizationCode:  p.AuthorizationCode,
		FiscalDocumentType: string(p.FiscalDocumentType),
		Items:              make([]saleItemJSON, 0, len(p.Items)),
	}
	for _, it := range p.Items {
		body.Items = append(body.Items, saleItemJSON{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: money.Format(it.UnitPrice),
			TaxRate:   it.TaxRate.String(),
			TaxAmount: money.Format(it.TaxAmount),
			Subtotal:  money.Format(it.Subtotal),
			Total:     money.Format(it.Total),
		})
	}
	return json.Marshal(body)
}

// CreateSale stores the sale in one transaction and returns the invoice id.
func (g *SaleGateway) CreateSale(ctx context.Context, p sale.Payload) (string, error) {
	body, err := encodeSale(p)
	if err != nil {
		return "", fmt.Errorf("marshaling sale: %w", err)
	}
	var id string
	if err := g.pool.QueryRow(ctx, createSaleSQL, body).Scan(&id); err != nil {
		return "", remote("create_sale", err)
	}
	return id, nil
}
