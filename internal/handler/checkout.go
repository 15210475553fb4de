package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/payment"
)

// OpenCheckout handles POST /api/checkout.
func (h *Handler) OpenCheckout(w http.ResponseWriter, r *http.Request) {
	c, err := h.session(r).OpenCheckout(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckout(c))
}

// SelectFiscalType handles PUT /api/checkout/fiscal-type.
func (h *Handler) SelectFiscalType(w http.ResponseWriter, r *http.Request) {
	var req fiscalTypeRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.session(r).SelectFiscalType(fiscal.DocumentType(req.Type))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected_fiscal_type": string(t)})
}

// Submit handles POST /api/checkout/submit. A receipt with sync_error set is
// still a completed sale.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.session(r).Submit(r.Context(), payment.Input{
		Method:            payment.Method(req.Method),
		AmountTendered:    req.AmountTendered,
		ReferenceNumber:   req.ReferenceNumber,
		AuthorizationCode: req.AuthorizationCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceipt(receipt))
}

// LastReceipt handles GET /api/checkout/last.
func (h *Handler) LastReceipt(w http.ResponseWriter, r *http.Request) {
	receipt := h.session(r).LastReceipt()
	if receipt == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Code: http.StatusNotFound, Message: "no sale in this session"})
		return
	}
	writeJSON(w, http.StatusOK, toReceipt(receipt))
}

// FiscalAvailability handles GET /api/fiscal/availability/{type}.
func (h *Handler) FiscalAvailability(w http.ResponseWriter, r *http.Request) {
	a, err := h.sequences.Availability(r.Context(), fiscal.DocumentType(chi.URLParam(r, "type")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailability(a))
}
