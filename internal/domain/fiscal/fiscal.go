// Package fiscal models Dominican e-CF document types (NCF) and the sequences
// that number them.
package fiscal

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// DocumentType is a fiscal receipt kind as issued by the tax authority.
type DocumentType string

const (
	CreditoFiscal       DocumentType = "CREDITO_FISCAL"
	Consumo             DocumentType = "CONSUMO"
	NotaDebito          DocumentType = "NOTA_DEBITO"
	NotaCredito         DocumentType = "NOTA_CREDITO"
	Compras             DocumentType = "COMPRAS"
	GastosMenores       DocumentType = "GASTOS_MENORES"
	RegimenesEspeciales DocumentType = "REGIMENES_ESPECIALES"
	Gubernamental       DocumentType = "GUBERNAMENTAL"
)

// ErrSequenceNotFound is returned when no active sequence exists for a type.
var ErrSequenceNotFound = errors.New("fiscal sequence not found")

type typeInfo struct {
	code  int
	label string
}

var types = map[DocumentType]typeInfo{
	CreditoFiscal:       {31, "Crédito Fiscal"},
	Consumo:             {32, "Consumo"},
	NotaDebito:          {33, "Nota de Débito"},
	NotaCredito:         {34, "Nota de Crédito"},
	Compras:             {41, "Compras"},
	GastosMenores:       {43, "Gastos Menores"},
	RegimenesEspeciales: {44, "Regímenes Especiales"},
	Gubernamental:       {45, "Gubernamental"},
}

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	_, ok := types[t]
	return ok
}

// Code returns the two-digit e-CF type code, or 0 for unknown types.
func (t DocumentType) Code() int { return types[t].code }

// Label returns the display label, e.g. "Crédito Fiscal (31)". Unknown types
// are shown as-is.
func (t DocumentType) Label() string {
	info, ok := types[t]
	if !ok {
		return string(t)
	}
	return fmt.Sprintf("%s (%d)", info.label, info.code)
}

// Sequence is an authorised numbering range for one document type.
type Sequence struct {
	ID             string
	DocumentType   DocumentType
	Prefix         string
	LastNumber     int64
	RangeFrom      int64
	RangeTo        int64
	AlertThreshold int64
	Active         bool
}

// Remaining returns how many numbers are left in the range.
func (s Sequence) Remaining() int64 {
	next := max(s.LastNumber+1, s.RangeFrom)
	if next > s.RangeTo {
		return 0
	}
	return s.RangeTo - next + 1
}

// Availability summarizes how close a sequence is to running out.
type Availability struct {
	DocumentType   DocumentType
	Remaining      int64
	NearExhaustion bool
	Exhausted      bool
	NextNumber     string
}

// Availability computes the availability of s.
func (s Sequence) Availability() Availability {
	remaining := s.Remaining()
	a := Availability{
		DocumentType:   s.DocumentType,
		Remaining:      remaining,
		Exhausted:      remaining == 0,
		NearExhaustion: remaining <= s.AlertThreshold,
	}
	if !a.Exhausted {
		a.NextNumber = FormatNCF(s.Prefix, max(s.LastNumber+1, s.RangeFrom))
	}
	return a
}

// FormatNCF renders an e-CF number: the prefix (E plus the type code) and a
// ten-digit zero-padded sequence number.
func FormatNCF(prefix string, n int64) string {
	return fmt.Sprintf("%s%010d", prefix, n)
}

// ErrMalformedNCF is returned by ParseNCF for text that is not an e-CF number.
var ErrMalformedNCF = errors.New("malformed e-CF number")

// ParseNCF splits an e-CF number such as E320000000042 into its document type
// and sequence number.
func ParseNCF(s string) (DocumentType, int64, error) {
	if len(s) != 13 || s[0] != 'E' {
		return "", 0, ErrMalformedNCF
	}
	code := 0
	for _, c := range s[1:3] {
		if c < '0' || c > '9' {
			return "", 0, ErrMalformedNCF
		}
		code = code*10 + int(c-'0')
	}
	var n int64
	for _, c := range s[3:] {
		if c < '0' || c > '9' {
			return "", 0, ErrMalformedNCF
		}
		n = n*10 + int64(c-'0')
	}
	for t, info := range types {
		if info.code == code {
			return t, n, nil
		}
	}
	return "", 0, ErrMalformedNCF
}

// Repository reads fiscal sequences.
type Repository interface {
	ListActive(ctx context.Context) ([]Sequence, error)
	GetByType(ctx context.Context, t DocumentType) (*Sequence, error)
}
