package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/minimercado-till/internal/domain/catalog"
	"github.com/xenking/minimercado-till/internal/session"
)

// Catalog is the read side of the catalog used by the API.
type Catalog interface {
	Current() *catalog.Snapshot
	Refresh(ctx context.Context) (*catalog.Snapshot, error)
}

// Sessions is the session registry used by the API.
type Sessions interface {
	Create() *session.Session
	Get(id string) (*session.Session, error)
	Delete(id string) error
}

// Handler serves the till API: catalog browsing and one checkout flow per
// session.
type Handler struct {
	catalog  Catalog
	sessions Sessions
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(catalog Catalog, sessions Sessions) *Handler {
	return &Handler{
		catalog:  catalog,
		sessions: sessions,
	}
}

// Routes returns the API router. It is meant to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", h.ListCatalog)
		r.Post("/refresh", h.RefreshCatalog)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)

			r.Post("/items", h.AddItem)
			r.Put("/lines/{lineID}", h.SetLineQuantity)
			r.Post("/lines/{lineID}/increment", h.IncrementLine)
			r.Post("/lines/{lineID}/decrement", h.DecrementLine)
			r.Put("/customer", h.SetCustomer)

			r.Post("/payment", h.BeginPayment)
			r.Put("/payment", h.SetAmountTendered)
			r.Delete("/payment", h.CancelPayment)
			r.Post("/payment/confirm", h.ConfirmSale)
		})
	})

	return r
}
