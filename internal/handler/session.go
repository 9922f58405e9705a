package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/minimercado-till/internal/session"
)

// CreateSession opens a checkout session with an empty cart.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()
	w.Header().Set("Location", r.URL.Path+"/"+sess.ID)
	writeJSON(w, r, http.StatusCreated, toSessionResponse(sess))
}

// GetSession returns the session's cart and payment state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

// DeleteSession closes a session and discards its cart.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem adds one unit of a product from the current catalog snapshot.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	product, found := h.catalog.Current().Lookup(req.ProductID)
	if !found {
		writeError(w, r, &ProductNotFoundError{ProductID: req.ProductID})
		return
	}
	if _, err := sess.Coordinator.AddProduct(product); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

// SetLineQuantity sets a line's quantity; zero or less removes the line.
func (h *Handler) SetLineQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req setQuantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, &kindError{kind: errInvalidBody, detail: "quantity is required"})
		return
	}

	if err := sess.Coordinator.SetQuantity(chi.URLParam(r, "lineID"), *req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

// IncrementLine adds one unit to a line.
func (h *Handler) IncrementLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Coordinator.IncrementQuantity(chi.URLParam(r, "lineID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

// DecrementLine removes one unit from a line.
func (h *Handler) DecrementLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Coordinator.DecrementQuantity(chi.URLParam(r, "lineID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

// SetCustomer sets the customer billed for the sale.
func (h *Handler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req setCustomerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.Coordinator.SetCustomer(req.CustomerID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}
