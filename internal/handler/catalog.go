package handler

import (
	"net/http"
)

// ListCatalog returns the current catalog snapshot, filtered by the optional
// q parameter (name, barcode or id).
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	snap := h.catalog.Current()
	products := snap.Search(r.URL.Query().Get("q"))
	writeJSON(w, r, http.StatusOK, toCatalogResponse(snap, products))
}

// RefreshCatalog reloads the catalog from the commerce service. On failure
// the previous snapshot stays in use.
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Refresh(r.Context())
	if err != nil {
		writeError(w, r, &kindError{kind: errCatalogFailed, detail: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, toCatalogResponse(snap, snap.Products()))
}
