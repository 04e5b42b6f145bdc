// Package handlers provides HTTP handlers for portfolios and their recomputation.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/modules/portfolio"
	"github.com/aristath/holdings/internal/modules/positions"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// PortfolioService is the part of portfolio.Service the handlers use
type PortfolioService interface {
	Create(ctx context.Context, name, quoteAsset string) (*domain.Portfolio, error)
	Get(ctx context.Context, id string) (*domain.Portfolio, error)
	List(ctx context.Context) ([]domain.Portfolio, error)
	ClosedPositions(ctx context.Context, id string) ([]positions.ClosedPosition, error)
	Recompute(ctx context.Context, id string) (portfolio.Summary, error)
}

var _ PortfolioService = (*portfolio.Service)(nil)

// Handler handles portfolio HTTP requests
type Handler struct {
	service PortfolioService
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service PortfolioService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

type createPortfolioRequest struct {
	Name       string `json:"name"`
	QuoteAsset string `json:"quote_asset"`
}

// HandleList returns every portfolio with its last recomputed totals
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// HandleCreate creates an empty portfolio
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.service.Create(r.Context(), req.Name, req.QuoteAsset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// HandleGet returns one portfolio
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandleRecompute replays the portfolio and returns the fresh summary
func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Recompute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// HandleClosedPositions returns the stored closed positions
func (h *Handler) HandleClosedPositions(w http.ResponseWriter, r *http.Request) {
	closed, err := h.service.ClosedPositions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, closed)
}

// Helper methods

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPortfolioNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Portfolio request failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
