package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers trading routes on a router scoped to one portfolio
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleGetTrades)
		r.Post("/", h.HandleRecordTrade)
		r.Delete("/{tradeID}", h.HandleDeleteTrade)
	})

	r.Put("/holdings", h.HandleResyncHoldings)
}
