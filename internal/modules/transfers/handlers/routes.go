package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers transfer routes on a router scoped to one portfolio
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleRecord)
		r.Delete("/{transferID}", h.HandleDelete)
	})
}
