package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/caja-pos/internal/domain/poserr"
	"github.com/xenking/caja-pos/internal/domain/register"
)

// GetRegister handles GET /api/register. An operator without an OPEN
// register gets {"register": null}.
func (h *Handler) GetRegister(w http.ResponseWriter, r *http.Request) {
	sum, err := h.registers.Current(r.Context(), operatorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"register": toRegister(sum)})
}

// OpenRegister handles POST /api/register/open.
func (h *Handler) OpenRegister(w http.ResponseWriter, r *http.Request) {
	var req openRegisterRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := h.registers.Open(r.Context(), operatorID(r), req.InitialCash, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"register": toRegister(sum)})
}

// PreviewClose handles GET /api/register/close/preview?final_cash=.
func (h *Handler) PreviewClose(w http.ResponseWriter, r *http.Request) {
	final := r.URL.Query().Get("final_cash")
	if final == "" {
		writeError(w, r, poserr.Invalid("final_cash", "is required"))
		return
	}
	report, err := h.registers.Preview(r.Context(), operatorID(r), final)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCloseReport(report))
}

// CloseRegister handles POST /api/register/close.
func (h *Handler) CloseRegister(w http.ResponseWriter, r *http.Request) {
	var req closeRegisterRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := h.registers.Close(r.Context(), operatorID(r), req.FinalCash, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCloseReport(report))
}

// ListTransactions handles GET /api/register/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.registers.Transactions(r.Context(), operatorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransaction(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// AddTransaction handles POST /api/register/transactions.
func (h *Handler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := h.registers.AddTransaction(r.Context(), operatorID(r),
		register.TransactionType(req.Type), req.Amount, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"register": toRegister(sum)})
}

// Reconcile handles POST /api/register/reconcile/{invoiceID}: the manual
// SALE post after a sale came back with sync_error.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	sum, err := h.registers.Reconcile(r.Context(), operatorID(r), chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"register": toRegister(sum)})
}
