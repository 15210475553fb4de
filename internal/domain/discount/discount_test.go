package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/caja-pos/internal/domain/poserr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestDiscount_Amount(t *testing.T) {
	tests := []struct {
		name     string
		discount *Discount
		subtotal string
		want     string
	}{
		{
			name:     "percentage",
			discount: &Discount{Kind: Percentage{Percent: dec("10")}},
			subtotal: "250.00",
			want:     "25.00",
		},
		{
			name:     "percentage capped by max discount",
			discount: &Discount{Kind: Percentage{Percent: dec("50")}, MaxDiscount: decPtr("20")},
			subtotal: "100.00",
			want:     "20.00",
		},
		{
			name:     "fixed",
			discount: &Discount{Kind: Fixed{Amount: dec("15")}},
			subtotal: "100.00",
			want:     "15.00",
		},
		{
			name:     "fixed larger than subtotal is clamped",
			discount: &Discount{Kind: Fixed{Amount: dec("500")}},
			subtotal: "120.00",
			want:     "120.00",
		},
		{
			name:     "fixed capped below its value",
			discount: &Discount{Kind: Fixed{Amount: dec("50")}, MaxDiscount: decPtr("30")},
			subtotal: "100.00",
			want:     "30.00",
		},
		{
			name:     "percentage rounds half up",
			discount: &Discount{Kind: Percentage{Percent: dec("15")}},
			subtotal: "33.33",
			want:     "5.00",
		},
		{
			name:     "empty cart",
			discount: &Discount{Kind: Percentage{Percent: dec("10")}},
			subtotal: "0",
			want:     "0.00",
		},
		{
			name:     "nil discount",
			discount: nil,
			subtotal: "100.00",
			want:     "0.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.discount.Amount(dec(tt.subtotal))
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestDiscount_Eligible(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name string
		d    Discount
		want bool
	}{
		{name: "active no window", d: Discount{Active: true}, want: true},
		{name: "inactive", d: Discount{Active: false}, want: false},
		{name: "not started", d: Discount{Active: true, StartsAt: &after}, want: false},
		{name: "ended", d: Discount{Active: true, EndsAt: &before}, want: false},
		{name: "inside window", d: Discount{Active: true, StartsAt: &before, EndsAt: &after}, want: true},
		{name: "start bound inclusive", d: Discount{Active: true, StartsAt: &now}, want: true},
		{name: "end bound inclusive", d: Discount{Active: true, EndsAt: &now}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.Eligible(now))
		})
	}
}

func TestDiscount_CheckMinimumPurchase(t *testing.T) {
	d := &Discount{Kind: Fixed{Amount: dec("10")}, MinPurchase: decPtr("200")}

	err := d.CheckMinimumPurchase(dec("199.99"))
	var ve *poserr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "discount_id", ve.Field)

	require.NoError(t, d.CheckMinimumPurchase(dec("200.00")))
}

func TestNewKind(t *testing.T) {
	k, err := NewKind(KindPercentage, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, KindPercentage, k.Name())
	assert.True(t, KindValue(k).Equal(dec("10")))

	k, err = NewKind(KindFixed, dec("5"))
	require.NoError(t, err)
	assert.IsType(t, Fixed{}, k)

	_, err = NewKind("BOGO", dec("1"))
	require.ErrorIs(t, err, ErrUnknownKind)
}

// --- Fakes ---

type fakeRepo struct {
	discounts []Discount
	err       error
}

func (f *fakeRepo) ListActive(context.Context) ([]Discount, error) {
	return f.discounts, f.err
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*Discount, error) {
	for i := range f.discounts {
		if f.discounts[i].ID == id {
			d := f.discounts[i]
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func TestSelector(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)

	repo := &fakeRepo{discounts: []Discount{
		{ID: "d1", Name: "10%", Kind: Percentage{Percent: dec("10")}, Active: true},
		{ID: "d2", Name: "old", Kind: Fixed{Amount: dec("5")}, Active: true, EndsAt: &expired},
		{ID: "d3", Name: "big spender", Kind: Fixed{Amount: dec("50")}, Active: true, MinPurchase: decPtr("1000")},
	}}
	s := NewSelector(repo)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("available skips ineligible", func(t *testing.T) {
		opts, err := s.Available(ctx, dec("300"))
		require.NoError(t, err)
		require.Len(t, opts, 2)
		assert.Equal(t, "d1", opts[0].Discount.ID)
		assert.Equal(t, "30.00", opts[0].Amount.StringFixed(2))
		assert.True(t, opts[0].MeetsMinimum)
		assert.False(t, opts[1].MeetsMinimum)
	})

	t.Run("select eligible", func(t *testing.T) {
		d, err := s.Select(ctx, "d1", dec("300"))
		require.NoError(t, err)
		assert.Equal(t, "10%", d.Name)
	})

	t.Run("select expired", func(t *testing.T) {
		_, err := s.Select(ctx, "d2", dec("300"))
		var ve *poserr.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("select below minimum", func(t *testing.T) {
		_, err := s.Select(ctx, "d3", dec("300"))
		var ve *poserr.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("select unknown", func(t *testing.T) {
		_, err := s.Select(ctx, "nope", dec("300"))
		var ve *poserr.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("repository failure", func(t *testing.T) {
		broken := NewSelector(&fakeRepo{err: errors.New("boom")})
		_, err := broken.Available(ctx, dec("1"))
		require.Error(t, err)
	})
}
