package sale

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/caja-pos/internal/domain/payment"
)

// Metrics records sale counters. A nil *Metrics records nothing.
type Metrics struct {
	sales      metric.Int64Counter
	revenue    metric.Float64Counter
	failures   metric.Int64Counter
	syncErrors metric.Int64Counter
	cancelled  metric.Int64Counter
}

// NewMetrics registers the sale instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.sales, err = meter.Int64Counter("pos.sales",
		metric.WithDescription("Completed sales")); err != nil {
		return nil, errors.Wrap(err, "sales counter")
	}
	if m.revenue, err = meter.Float64Counter("pos.sales.amount",
		metric.WithDescription("Invoiced total, tax included"),
		metric.WithUnit("DOP")); err != nil {
		return nil, errors.Wrap(err, "revenue counter")
	}
	if m.failures, err = meter.Int64Counter("pos.sales.failed",
		metric.WithDescription("Sale submissions rejected by the backend")); err != nil {
		return nil, errors.Wrap(err, "failures counter")
	}
	if m.syncErrors, err = meter.Int64Counter("pos.register.sync_errors",
		metric.WithDescription("Sales whose register entry could not be posted")); err != nil {
		return nil, errors.Wrap(err, "sync errors counter")
	}
	if m.cancelled, err = meter.Int64Counter("pos.invoices.cancelled",
		metric.WithDescription("Cancelled invoices")); err != nil {
		return nil, errors.Wrap(err, "cancelled counter")
	}
	return &m, nil
}

func (m *Metrics) sale(ctx context.Context, method payment.Method, total decimal.Decimal) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("method", string(method)))
	m.sales.Add(ctx, 1, attrs)
	m.revenue.Add(ctx, total.InexactFloat64(), attrs)
}

func (m *Metrics) failure(ctx context.Context, unknown bool) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.Bool("unknown_outcome", unknown)))
}

func (m *Metrics) syncError(ctx context.Context) {
	if m == nil {
		return
	}
	m.syncErrors.Add(ctx, 1)
}

func (m *Metrics) cancel(ctx context.Context) {
	if m == nil {
		return
	}
	m.cancelled.Add(ctx, 1)
}
