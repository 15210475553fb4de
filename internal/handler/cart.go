package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// SearchProducts handles GET /api/products?q=.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	products, err := h.products.Search(r.Context(), q, h.searchLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]productDTO, 0, len(products))
	for _, p := range products {
		out = append(out, toProduct(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// GetCart handles GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCart(h.session(r).View()))
}

// ClearCart handles DELETE /api/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.session(r).Clear()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

// AddLine handles POST /api/cart/lines.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.session(r).AddProduct(r.Context(), req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

// SetQuantity handles PUT /api/cart/lines/{productID}.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.session(r).SetQuantity(chi.URLParam(r, "productID"), *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

// RemoveLine handles DELETE /api/cart/lines/{productID}.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	view, err := h.session(r).RemoveLine(chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

// SetCustomer handles PUT /api/cart/customer.
func (h *Handler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.session(r).SetCustomer(r.Context(), req.CustomerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

// DetachCustomer handles DELETE /api/cart/customer. The sale falls back to
// the walk-in customer.
func (h *Handler) DetachCustomer(w http.ResponseWriter, r *http.Request) {
	view, err := h.session(r).SetCustomer(r.Context(), "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

// ListDiscounts handles GET /api/discounts.
func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	opts, err := h.session(r).Discounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]discountOptionDTO, 0, len(opts))
	for _, o := range opts {
		out = append(out, discountOptionDTO{
			discountDTO:  *toDiscount(&o.Discount),
			Amount:       amount(o.Amount),
			MeetsMinimum: o.MeetsMinimum,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// SelectDiscount handles PUT /api/cart/discount.
func (h *Handler) SelectDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.session(r).SelectDiscount(r.Context(), req.DiscountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}

// ClearDiscount handles DELETE /api/cart/discount.
func (h *Handler) ClearDiscount(w http.ResponseWriter, r *http.Request) {
	view, err := h.session(r).ClearDiscount()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(view))
}
