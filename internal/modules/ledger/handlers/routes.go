package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers ledger replay routes under a portfolio router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", h.HandleGetLedger)
		r.Get("/{symbol}", h.HandleGetSymbolLedger)
	})
}
