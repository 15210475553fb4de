package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/caja-pos/internal/domain/auth"
	"github.com/xenking/caja-pos/internal/domain/cart"
	"github.com/xenking/caja-pos/internal/domain/customer"
	"github.com/xenking/caja-pos/internal/domain/discount"
	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/invoice"
	"github.com/xenking/caja-pos/internal/domain/poserr"
	"github.com/xenking/caja-pos/internal/domain/product"
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	// OutcomeUnknown tells the terminal to look the sale up before retrying.
	OutcomeUnknown bool   `json:"outcome_unknown,omitempty"`
	InvoiceID      string `json:"invoice_id,omitempty"`
}

// badRequestError is a request body that could not be decoded.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

var notFound = []error{
	product.ErrNotFound,
	customer.ErrNotFound,
	discount.ErrNotFound,
	invoice.ErrNotFound,
	fiscal.ErrSequenceNotFound,
	cart.ErrLineNotFound,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and an error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Message: err.Error()}

	var (
		validation *poserr.ValidationError
		pre        *poserr.PreconditionError
		remote     *poserr.RemoteOperationError
		syncErr    *poserr.ReconciliationSyncError
		badReq     *badRequestError
	)
	switch {
	case errors.As(err, &badReq):
		body.Code = http.StatusBadRequest
	case errors.As(err, &validation):
		body.Code = http.StatusUnprocessableEntity
		body.Message = validation.Reason
		body.Field = validation.Field
	case errors.As(err, &pre):
		body.Code = http.StatusConflict
	case errors.As(err, &syncErr):
		body.Code = http.StatusBadGateway
		body.InvoiceID = syncErr.InvoiceID
	case errors.As(err, &remote):
		body.Code = http.StatusBadGateway
		body.Message = remote.Message
		if remote.Unknown {
			body.Code = http.StatusGatewayTimeout
			body.Message = remote.Error()
			body.OutcomeUnknown = true
		}
	case errors.Is(err, auth.ErrUnauthorized):
		body.Code = http.StatusUnauthorized
	case isNotFound(err):
		body.Code = http.StatusNotFound
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		body.Code = http.StatusInternalServerError
		body.Message = "internal error"
	}
	if body.Code >= http.StatusBadGateway {
		zctx.From(r.Context()).Warn("Backend operation failed", zap.Error(err))
	}
	writeJSON(w, body.Code, body)
}

func isNotFound(err error) bool {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
