package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes.
//
// nested registrars are mounted under /portfolios/{id} so that trade and
// transfer handlers share the portfolio's URL space.
func (h *Handler) RegisterRoutes(r chi.Router, nested ...func(chi.Router)) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/recompute", h.HandleRecompute)
			r.Get("/closed-positions", h.HandleClosedPositions)

			for _, register := range nested {
				register(r)
			}
		})
	})
}
