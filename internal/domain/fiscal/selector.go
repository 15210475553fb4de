package fiscal

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/caja-pos/internal/domain/poserr"
)

// Option is a selectable document type.
type Option struct {
	Type  DocumentType
	Label string
}

// Selector loads the document types that currently have an active sequence.
type Selector struct {
	repo Repository
}

// NewSelector creates a Selector backed by repo.
func NewSelector(repo Repository) *Selector {
	return &Selector{repo: repo}
}

// Load returns one option per active sequence, ordered by document type.
func (s *Selector) Load(ctx context.Context) ([]Option, error) {
	seqs, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list fiscal sequences")
	}
	seen := make(map[DocumentType]bool, len(seqs))
	opts := make([]Option, 0, len(seqs))
	for _, seq := range seqs {
		if !seq.Active || seen[seq.DocumentType] {
			continue
		}
		seen[seq.DocumentType] = true
		opts = append(opts, Option{Type: seq.DocumentType, Label: seq.DocumentType.Label()})
	}
	slices.SortFunc(opts, func(a, b Option) int {
		switch {
		case a.Type < b.Type:
			return -1
		case a.Type > b.Type:
			return 1
		}
		return 0
	})
	return opts, nil
}

// Availability reports how many numbers remain for t.
func (s *Selector) Availability(ctx context.Context, t DocumentType) (Availability, error) {
	if !t.Valid() {
		return Availability{}, poserr.Invalid("type", "unknown fiscal document type")
	}
	seq, err := s.repo.GetByType(ctx, t)
	if err != nil {
		return Availability{}, errors.Wrap(err, "get fiscal sequence")
	}
	return seq.Availability(), nil
}

// Selection is the checkout-time choice of document type.
//
// CONSUMO is picked automatically only while no customer is attached. Once a
// customer is attached an automatic pick is dropped and the operator has to
// choose; an explicit choice is kept either way.
type Selection struct {
	options  []Option
	selected DocumentType
	auto     bool
	loaded   bool
}

// Reset loads new options and re-applies the default rule.
func (sel *Selection) Reset(opts []Option, hasCustomer bool) {
	sel.options = opts
	sel.loaded = true
	if sel.selected != "" && !sel.offers(sel.selected) {
		sel.selected = ""
		sel.auto = false
	}
	sel.applyDefault(hasCustomer)
}

// Options returns the loaded options.
func (sel *Selection) Options() []Option { return sel.options }

// Loaded reports whether options were loaded for this checkout.
func (sel *Selection) Loaded() bool { return sel.loaded }

// Selected returns the current choice, which may be empty.
func (sel *Selection) Selected() DocumentType { return sel.selected }

// Select records an explicit choice among the loaded options.
func (sel *Selection) Select(t DocumentType) error {
	if !sel.loaded {
		return poserr.Precondition("checkout is not open")
	}
	if !sel.offers(t) {
		return poserr.Invalid("type", "fiscal document type is not available")
	}
	sel.selected = t
	sel.auto = false
	return nil
}

// CustomerChanged re-applies the default rule after the customer changed.
func (sel *Selection) CustomerChanged(hasCustomer bool) {
	if !sel.loaded {
		return
	}
	sel.applyDefault(hasCustomer)
}

// Require returns the selected type or a validation error.
func (sel *Selection) Require() (DocumentType, error) {
	if sel.selected == "" {
		return "", poserr.Invalid("fiscal_document_type", "a fiscal document type must be selected")
	}
	return sel.selected, nil
}

// Clear forgets options and choice.
func (sel *Selection) Clear() { *sel = Selection{} }

func (sel *Selection) applyDefault(hasCustomer bool) {
	switch {
	case hasCustomer && sel.auto:
		sel.selected = ""
		sel.auto = false
	case !hasCustomer && sel.selected == "" && sel.offers(Consumo):
		sel.selected = Consumo
		sel.auto = true
	}
}

func (sel *Selection) offers(t DocumentType) bool {
	return slices.ContainsFunc(sel.options, func(o Option) bool { return o.Type == t })
}
