package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/minimercado-till/internal/domain/cart"
	"github.com/xenking/minimercado-till/internal/domain/checkout"
	"github.com/xenking/minimercado-till/internal/session"
)

const maxRequestBody = 1 << 20

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Kind    string   `json:"kind"`
	Reasons []string `json:"reasons,omitempty"`
}

var (
	errInvalidBody   = errors.New("invalid request body")
	errCatalogFailed = errors.New("catalog unavailable")
)

// ProductNotFoundError indicates a product id absent from the current
// catalog snapshot.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return "product not found: " + e.ProductID
}

// kindError attaches a detail message to one of the sentinel errors above.
type kindError struct {
	kind   error
	detail string
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.detail
}

func (e *kindError) Unwrap() error {
	return e.kind
}

// mapError converts domain errors to API error responses. Unknown errors are
// logged and reported as 500 without details.
func mapError(err error) ErrorResponse {
	var notReady *checkout.CartNotReadyError
	if errors.As(err, &notReady) {
		resp := ErrorResponse{Code: http.StatusConflict, Message: notReady.Error(), Kind: "cart_not_ready"}
		if notReady.EmptyCart {
			resp.Reasons = append(resp.Reasons, "empty_cart")
		}
		if notReady.MissingCustomer {
			resp.Reasons = append(resp.Reasons, "missing_customer")
		}
		return resp
	}

	var subErr *checkout.SubmissionError
	if errors.As(err, &subErr) {
		return ErrorResponse{Code: http.StatusBadGateway, Message: subErr.Detail, Kind: "submission_failed"}
	}

	var pnfErr *ProductNotFoundError
	if errors.As(err, &pnfErr) {
		return ErrorResponse{Code: http.StatusNotFound, Message: pnfErr.Error(), Kind: "product_not_found"}
	}

	for _, m := range []struct {
		target error
		code   int
		kind   string
	}{
		{session.ErrNotFound, http.StatusNotFound, "session_not_found"},
		{checkout.ErrClosed, http.StatusNotFound, "session_not_found"},
		{cart.ErrLineNotFound, http.StatusNotFound, "line_not_found"},
		{cart.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
		{cart.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{cart.ErrInvalidCustomer, http.StatusUnprocessableEntity, "invalid_customer"},
		{checkout.ErrAlreadySubmitting, http.StatusConflict, "already_submitting"},
		{checkout.ErrPaymentNotStarted, http.StatusConflict, "payment_not_started"},
		{checkout.ErrInsufficientPayment, http.StatusUnprocessableEntity, "insufficient_payment"},
		{checkout.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
		{errInvalidBody, http.StatusBadRequest, "invalid_request"},
		{errCatalogFailed, http.StatusBadGateway, "catalog_unavailable"},
	} {
		if errors.Is(err, m.target) {
			return ErrorResponse{Code: m.code, Message: err.Error(), Kind: m.kind}
		}
	}

	return ErrorResponse{
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
		Kind:    "internal",
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := mapError(err)
	if resp.Code >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.Int("status", resp.Code),
			zap.String("kind", resp.Kind),
			zap.Error(err),
		)
	}
	writeJSON(w, r, resp.Code, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Warn("Encode response", zap.Error(err))
	}
}

// decodeBody reads a JSON request body into v. Unknown fields are rejected.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &kindError{kind: errInvalidBody, detail: err.Error()}
	}
	return nil
}
