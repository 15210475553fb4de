package fiscal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/caja-pos/internal/domain/poserr"
)

func TestDocumentType_Label(t *testing.T) {
	assert.Equal(t, "Crédito Fiscal (31)", CreditoFiscal.Label())
	assert.Equal(t, "Consumo (32)", Consumo.Label())
	assert.Equal(t, "Gubernamental (45)", Gubernamental.Label())
	assert.Equal(t, "OTHER", DocumentType("OTHER").Label())
	assert.False(t, DocumentType("OTHER").Valid())
}

func TestFormatNCF(t *testing.T) {
	assert.Equal(t, "E320000000001", FormatNCF("E32", 1))
	assert.Equal(t, "E310000012345", FormatNCF("E31", 12345))
}

func TestParseNCF(t *testing.T) {
	tests := []struct {
		in      string
		docType DocumentType
		number  int64
		wantErr bool
	}{
		{in: "E320000000042", docType: Consumo, number: 42},
		{in: "E310000012345", docType: CreditoFiscal, number: 12345},
		{in: FormatNCF("E45", 9), docType: Gubernamental, number: 9},
		{in: "E99000000001", wantErr: true},
		{in: "E990000000001", wantErr: true},
		{in: "B0100000001", wantErr: true},
		{in: "E32000000004X", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			docType, n, err := ParseNCF(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedNCF)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.docType, docType)
			assert.Equal(t, tt.number, n)
		})
	}
}

func TestSequence_Availability(t *testing.T) {
	tests := []struct {
		name          string
		seq           Sequence
		wantRemaining int64
		wantNear      bool
		wantExhausted bool
		wantNext      string
	}{
		{
			name:          "fresh range",
			seq:           Sequence{Prefix: "E32", LastNumber: 0, RangeFrom: 1, RangeTo: 1000, AlertThreshold: 50},
			wantRemaining: 1000,
			wantNext:      "E320000000001",
		},
		{
			name:          "near the end",
			seq:           Sequence{Prefix: "E32", LastNumber: 960, RangeFrom: 1, RangeTo: 1000, AlertThreshold: 50},
			wantRemaining: 40,
			wantNear:      true,
			wantNext:      "E320000000961",
		},
		{
			name:          "exhausted",
			seq:           Sequence{Prefix: "E31", LastNumber: 100, RangeFrom: 1, RangeTo: 100, AlertThreshold: 10},
			wantRemaining: 0,
			wantNear:      true,
			wantExhausted: true,
		},
		{
			name:          "range starts above last number",
			seq:           Sequence{Prefix: "E31", LastNumber: 0, RangeFrom: 501, RangeTo: 600},
			wantRemaining: 100,
			wantNext:      "E310000000501",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.seq.Availability()
			assert.Equal(t, tt.wantRemaining, a.Remaining)
			assert.Equal(t, tt.wantNear, a.NearExhaustion)
			assert.Equal(t, tt.wantExhausted, a.Exhausted)
			assert.Equal(t, tt.wantNext, a.NextNumber)
		})
	}
}

// --- Fakes ---

type fakeRepo struct {
	seqs []Sequence
}

func (f *fakeRepo) ListActive(context.Context) ([]Sequence, error) { return f.seqs, nil }

func (f *fakeRepo) GetByType(_ context.Context, t DocumentType) (*Sequence, error) {
	for i := range f.seqs {
		if f.seqs[i].DocumentType == t {
			return &f.seqs[i], nil
		}
	}
	return nil, ErrSequenceNotFound
}

func TestSelector_Load(t *testing.T) {
	s := NewSelector(&fakeRepo{seqs: []Sequence{
		{DocumentType: CreditoFiscal, Active: true},
		{DocumentType: Consumo, Active: true},
		{DocumentType: Gubernamental, Active: false},
	}})

	opts, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, Consumo, opts[0].Type)
	assert.Equal(t, CreditoFiscal, opts[1].Type)
	assert.Equal(t, "Crédito Fiscal (31)", opts[1].Label)
}

func TestSelector_Availability(t *testing.T) {
	s := NewSelector(&fakeRepo{seqs: []Sequence{
		{DocumentType: Consumo, Prefix: "E32", RangeFrom: 1, RangeTo: 10, LastNumber: 9, AlertThreshold: 2, Active: true},
	}})

	a, err := s.Availability(context.Background(), Consumo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Remaining)
	assert.True(t, a.NearExhaustion)

	_, err = s.Availability(context.Background(), "BOGUS")
	var ve *poserr.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = s.Availability(context.Background(), Compras)
	require.ErrorIs(t, err, ErrSequenceNotFound)
}

var bothOptions = []Option{
	{Type: Consumo, Label: Consumo.Label()},
	{Type: CreditoFiscal, Label: CreditoFiscal.Label()},
}

func TestSelection_DefaultsToConsumoWithoutCustomer(t *testing.T) {
	var sel Selection
	sel.Reset(bothOptions, false)

	got, err := sel.Require()
	require.NoError(t, err)
	assert.Equal(t, Consumo, got)
}

func TestSelection_NoDefaultWithCustomer(t *testing.T) {
	var sel Selection
	sel.Reset(bothOptions, true)

	_, err := sel.Require()
	var ve *poserr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "fiscal_document_type", ve.Field)
}

func TestSelection_CustomerAttachedClearsAutoDefault(t *testing.T) {
	var sel Selection
	sel.Reset(bothOptions, false)
	require.Equal(t, Consumo, sel.Selected())

	sel.CustomerChanged(true)
	assert.Empty(t, sel.Selected())

	sel.CustomerChanged(false)
	assert.Equal(t, Consumo, sel.Selected())
}

func TestSelection_ExplicitChoiceKept(t *testing.T) {
	var sel Selection
	sel.Reset(bothOptions, true)
	require.NoError(t, sel.Select(CreditoFiscal))

	sel.CustomerChanged(false)
	assert.Equal(t, CreditoFiscal, sel.Selected())
	sel.CustomerChanged(true)
	assert.Equal(t, CreditoFiscal, sel.Selected())
}

func TestSelection_SelectValidation(t *testing.T) {
	var sel Selection
	var pe *poserr.PreconditionError
	require.ErrorAs(t, sel.Select(Consumo), &pe)

	sel.Reset(bothOptions, false)
	var ve *poserr.ValidationError
	require.ErrorAs(t, sel.Select(Gubernamental), &ve)
}

func TestSelection_NoConsumoNoDefault(t *testing.T) {
	var sel Selection
	sel.Reset([]Option{{Type: CreditoFiscal}}, false)
	assert.Empty(t, sel.Selected())
}

func TestSelection_RequireBeforeLoad(t *testing.T) {
	var sel Selection
	_, err := sel.Require()
	var ve *poserr.ValidationError
	require.ErrorAs(t, err, &ve)
}
