// Package handlers provides HTTP handlers for deposits and withdrawals.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/modules/portfolio"
	"github.com/aristath/holdings/internal/modules/transfers"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransferService is the part of transfers.Service the handlers use
type TransferService interface {
	RecordTransfer(ctx context.Context, transfer domain.Transfer) (domain.Transfer, bool, error)
	ListTransfers(ctx context.Context, portfolioID string) ([]domain.Transfer, error)
	DeleteTransfer(ctx context.Context, portfolioID string, id int64) error
}

var _ TransferService = (*transfers.Service)(nil)

// Recomputer refreshes a portfolio after its history changed
type Recomputer interface {
	Recompute(ctx context.Context, portfolioID string) (portfolio.Summary, error)
}

// Handler handles transfer HTTP requests
type Handler struct {
	service    TransferService
	recomputer Recomputer
	log        zerolog.Logger
}

// NewHandler creates a new transfer handler
func NewHandler(service TransferService, recomputer Recomputer, log zerolog.Logger) *Handler {
	return &Handler{
		service:    service,
		recomputer: recomputer,
		log:        log.With().Str("handler", "transfers").Logger(),
	}
}

type recordTransferRequest struct {
	Type           string           `json:"type"`
	Asset          string           `json:"asset"`
	Amount         decimal.Decimal  `json:"amount"`
	Fee            decimal.Decimal  `json:"fee"`
	KnownCostBasis *decimal.Decimal `json:"known_cost_basis"`
	ExecutedAt     time.Time        `json:"executed_at"`
	Source         string           `json:"source"`
	ExternalID     string           `json:"external_id"`
}

type mutationResponse struct {
	Result         interface{}        `json:"result"`
	Summary        *portfolio.Summary `json:"summary,omitempty"`
	RecomputeError string             `json:"recompute_error,omitempty"`
}

// HandleList returns a portfolio's transfers
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListTransfers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// HandleRecord records a deposit or withdrawal and recomputes the portfolio
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	var req recordTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ExecutedAt.IsZero() {
		req.ExecutedAt = time.Now().UTC()
	}

	stored, created, err := h.service.RecordTransfer(r.Context(), domain.Transfer{
		PortfolioID:    portfolioID,
		Type:           domain.TransferType(req.Type),
		Asset:          req.Asset,
		Amount:         req.Amount,
		Fee:            req.Fee,
		KnownCostBasis: req.KnownCostBasis,
		ExecutedAt:     req.ExecutedAt,
		Source:         domain.Source(req.Source),
		ExternalID:     req.ExternalID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	h.writeJSON(w, status, h.afterMutation(r.Context(), portfolioID, stored))
}

// HandleDelete removes a transfer and recomputes the portfolio
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	transferID, err := strconv.ParseInt(chi.URLParam(r, "transferID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	if err := h.service.DeleteTransfer(r.Context(), portfolioID, transferID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.afterMutation(r.Context(), portfolioID, map[string]int64{"deleted": transferID}))
}

func (h *Handler) afterMutation(ctx context.Context, portfolioID string, result interface{}) mutationResponse {
	resp := mutationResponse{Result: result}
	if h.recomputer == nil {
		return resp
	}

	summary, err := h.recomputer.Recompute(ctx, portfolioID)
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Recompute after transfer change failed")
		resp.RecomputeError = err.Error()
		return resp
	}
	resp.Summary = &summary
	return resp
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPortfolioNotFound), errors.Is(err, domain.ErrTransferNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Transfer request failed")
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
