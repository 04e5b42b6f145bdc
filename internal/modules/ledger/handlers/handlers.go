// Package handlers exposes a read-only replay of a portfolio's ledger for auditing.
//
// Nothing here writes: the replay is rebuilt from trades and transfers on
// every request, the same way a recompute would see it.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/modules/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// PortfolioGetter resolves a portfolio
type PortfolioGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Portfolio, error)
}

// TradeLoader loads a portfolio's trades
type TradeLoader interface {
	GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Trade, error)
}

// TransferLoader loads a portfolio's transfers
type TransferLoader interface {
	GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Transfer, error)
}

// Handler handles ledger HTTP requests
type Handler struct {
	portfolios PortfolioGetter
	trades     TradeLoader
	transfers  TransferLoader
	log        zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(portfolios PortfolioGetter, trades TradeLoader, transfers TransferLoader, log zerolog.Logger) *Handler {
	return &Handler{
		portfolios: portfolios,
		trades:     trades,
		transfers:  transfers,
		log:        log.With().Str("handler", "ledger").Logger(),
	}
}

// SymbolReplay is one symbol's timeline and the state it replays to
type SymbolReplay struct {
	ledger.Result
	Events []ledger.AssetEvent `json:"events"`
}

// HandleGetLedger handles GET /portfolios/{id}/ledger
func (h *Handler) HandleGetLedger(w http.ResponseWriter, r *http.Request) {
	timelines, ok := h.loadTimelines(w, r)
	if !ok {
		return
	}

	replays := make([]SymbolReplay, 0, len(timelines))
	for _, symbol := range ledger.Symbols(timelines) {
		replays = append(replays, replaySymbol(symbol, timelines[symbol]))
	}
	h.writeJSON(w, http.StatusOK, replays)
}

// HandleGetSymbolLedger handles GET /portfolios/{id}/ledger/{symbol}
func (h *Handler) HandleGetSymbolLedger(w http.ResponseWriter, r *http.Request) {
	timelines, ok := h.loadTimelines(w, r)
	if !ok {
		return
	}

	symbol := domain.NormalizeSymbol(chi.URLParam(r, "symbol"))
	events, found := timelines[symbol]
	if !found {
		h.writeError(w, http.StatusNotFound, "no ledger events for "+symbol)
		return
	}
	h.writeJSON(w, http.StatusOK, replaySymbol(symbol, events))
}

func replaySymbol(symbol string, events []ledger.AssetEvent) SymbolReplay {
	res := ledger.Process(symbol, events)
	for i := range res.Closed {
		res.Closed[i] = res.Closed[i].Rounded()
	}
	return SymbolReplay{Result: res, Events: events}
}

func (h *Handler) loadTimelines(w http.ResponseWriter, r *http.Request) (map[string][]ledger.AssetEvent, bool) {
	ctx := r.Context()
	portfolioID := chi.URLParam(r, "id")

	if _, err := h.portfolios.GetByID(ctx, portfolioID); err != nil {
		h.writeLoadError(w, err)
		return nil, false
	}

	trades, err := h.trades.GetByPortfolio(ctx, portfolioID)
	if err != nil {
		h.writeLoadError(w, err)
		return nil, false
	}
	transfers, err := h.transfers.GetByPortfolio(ctx, portfolioID)
	if err != nil {
		h.writeLoadError(w, err)
		return nil, false
	}

	return ledger.BuildTimelines(trades, transfers), true
}

func (h *Handler) writeLoadError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrPortfolioNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.log.Error().Err(err).Msg("Failed to load ledger history")
	h.writeError(w, http.StatusInternalServerError, "failed to load ledger history")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": strings.TrimSpace(message)})
}
