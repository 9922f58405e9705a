package handler

import (
	"context"
	"net/http"
)

// BeginPayment opens the payment step, seeding the amount tendered with the
// cart total.
func (h *Handler) BeginPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := sess.Coordinator.BeginPayment(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

// SetAmountTendered records the cash handed over by the customer.
func (h *Handler) SetAmountTendered(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req setAmountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := req.amount()
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := sess.Coordinator.SetAmountTendered(amount); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

// CancelPayment closes the payment step and keeps the cart.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Coordinator.CancelPayment(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

// ConfirmSale submits the sale to the commerce service.
func (h *Handler) ConfirmSale(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	// A client disconnect must not abort a submission the commerce service
	// may already have accepted; the client timeout bounds the call instead.
	ctx := context.WithoutCancel(r.Context())

	result, err := sess.Coordinator.ConfirmSale(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSaleResponse(result))
}
