// Package handlers provides HTTP handlers for recording trades and resyncing holdings.
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
	"github.com/aristath/holdings/internal/modules/trading"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TradingService is the part of trading.TradingService the handlers use
type TradingService interface {
	RecordTrade(ctx context.Context, trade domain.Trade) (domain.Trade, bool, error)
	ListTrades(ctx context.Context, portfolioID string) ([]domain.Trade, error)
	DeleteTrade(ctx context.Context, portfolioID string, id int64) error
	ResyncHoldings(ctx context.Context, portfolioID string, holdings []domain.HoldingSnapshot) (trading.ResyncResult, error)
}

var _ TradingService = (*trading.TradingService)(nil)

// Recomputer refreshes a portfolio after its history changed
type Recomputer interface {
	Recompute(ctx context.Context, portfolioID string) (portfolio.Summary, error)
}

// TradingHandlers contains HTTP handlers for the trading API
type TradingHandlers struct {
	service    TradingService
	recomputer Recomputer
	log        zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(service TradingService, recomputer Recomputer, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		service:    service,
		recomputer: recomputer,
		log:        log.With().Str("handler", "trading").Logger(),
	}
}

type recordTradeRequest struct {
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	ExecutedAt time.Time       `json:"executed_at"`
	Source     string          `json:"source"`
	ExternalID string          `json:"external_id"`
}

type holdingsRequest struct {
	Holdings []domain.HoldingSnapshot `json:"holdings"`
}

// mutationResponse is returned by every write. Summary is nil when the
// follow-up recompute failed; the write itself has been committed.
type mutationResponse struct {
	Result         interface{}        `json:"result"`
	Summary        *portfolio.Summary `json:"summary,omitempty"`
	RecomputeError string             `json:"recompute_error,omitempty"`
}

// HandleGetTrades returns the trade history of a portfolio
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.service.ListTrades(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// HandleRecordTrade records a trade and recomputes the portfolio
func (h *TradingHandlers) HandleRecordTrade(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	var req recordTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ExecutedAt.IsZero() {
		req.ExecutedAt = time.Now().UTC()
	}

	stored, created, err := h.service.RecordTrade(r.Context(), domain.Trade{
		PortfolioID: portfolioID,
		Symbol:      req.Symbol,
		Side:        domain.TradeSide(req.Side),
		Quantity:    req.Quantity,
		Price:       req.Price,
		Fee:         req.Fee,
		ExecutedAt:  req.ExecutedAt,
		Source:      domain.Source(req.Source),
		ExternalID:  req.ExternalID,
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

// HandleDeleteTrade deletes a trade and recomputes the portfolio
func (h *TradingHandlers) HandleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	tradeID, err := strconv.ParseInt(chi.URLParam(r, "tradeID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}

	if err := h.service.DeleteTrade(r.Context(), portfolioID, tradeID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.afterMutation(r.Context(), portfolioID, map[string]int64{"deleted": tradeID}))
}

// HandleResyncHoldings replaces the portfolio's holding snapshot
func (h *TradingHandlers) HandleResyncHoldings(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	var req holdingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.ResyncHoldings(r.Context(), portfolioID, req.Holdings)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.afterMutation(r.Context(), portfolioID, result))
}

func (h *TradingHandlers) afterMutation(ctx context.Context, portfolioID string, result interface{}) mutationResponse {
	resp := mutationResponse{Result: result}
	if h.recomputer == nil {
		return resp
	}

	summary, err := h.recomputer.Recompute(ctx, portfolioID)
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Recompute after trade change failed")
		resp.RecomputeError = err.Error()
		return resp
	}
	resp.Summary = &summary
	return resp
}

// Helper methods

func (h *TradingHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPortfolioNotFound), errors.Is(err, domain.ErrTradeNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Trading request failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *TradingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *TradingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
