package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/events"
	"github.com/rs/zerolog"
)

// TradeRepositoryInterface defines the interface for trade persistence
type TradeRepositoryInterface interface {
	// Create inserts a trade; created is false when the external ID was already recorded
	Create(ctx context.Context, trade domain.Trade) (stored domain.Trade, created bool, err error)

	// GetByPortfolio retrieves every trade of a portfolio in execution order
	GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Trade, error)

	// Delete removes a single trade
	Delete(ctx context.Context, portfolioID string, id int64) error

	// ReplaceBySource atomically swaps every trade of a source for a new set
	ReplaceBySource(ctx context.Context, portfolioID string, source domain.Source, trades []domain.Trade) (int64, error)
}

// Compile-time check that TradeRepository implements TradeRepositoryInterface
var _ TradeRepositoryInterface = (*TradeRepository)(nil)

// PortfolioGetter resolves a portfolio, returning domain.ErrPortfolioNotFound if it is missing
type PortfolioGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Portfolio, error)
}

// TradingService records and removes trades and performs holdings resyncs.
//
// It does not recompute portfolios; callers do that after a successful change.
type TradingService struct {
	log          zerolog.Logger
	tradeRepo    TradeRepositoryInterface
	portfolios   PortfolioGetter
	eventManager *events.Manager
}

// NewTradingService creates a new trading service
func NewTradingService(
	tradeRepo TradeRepositoryInterface,
	portfolios PortfolioGetter,
	eventManager *events.Manager,
	log zerolog.Logger,
) *TradingService {
	return &TradingService{
		log:          log.With().Str("service", "trading").Logger(),
		tradeRepo:    tradeRepo,
		portfolios:   portfolios,
		eventManager: eventManager,
	}
}

// RecordTrade stores a trade for an existing portfolio
func (s *TradingService) RecordTrade(ctx context.Context, trade domain.Trade) (domain.Trade, bool, error) {
	if _, err := s.portfolios.GetByID(ctx, trade.PortfolioID); err != nil {
		return domain.Trade{}, false, err
	}
	if trade.Source == "" {
		trade.Source = domain.SourceManual
	}
	if trade.Source == domain.SourceHoldingSnapshot {
		return domain.Trade{}, false, fmt.Errorf("%w: %s trades are only written by a holdings resync", domain.ErrInvalidInput, trade.Source)
	}

	stored, created, err := s.tradeRepo.Create(ctx, trade)
	if err != nil {
		return domain.Trade{}, false, err
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped("trading", &events.TradeRecordedData{
			PortfolioID: stored.PortfolioID,
			TradeID:     stored.ID,
			Symbol:      stored.Symbol,
			Side:        string(stored.Side),
			Quantity:    stored.Quantity.String(),
			Price:       stored.Price.String(),
			Source:      string(stored.Source),
			Duplicate:   !created,
		})
	}

	return stored, created, nil
}

// ListTrades returns a portfolio's trades in execution order
func (s *TradingService) ListTrades(ctx context.Context, portfolioID string) ([]domain.Trade, error) {
	if _, err := s.portfolios.GetByID(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.tradeRepo.GetByPortfolio(ctx, portfolioID)
}

// DeleteTrade removes a trade by explicit user action
func (s *TradingService) DeleteTrade(ctx context.Context, portfolioID string, id int64) error {
	if err := s.tradeRepo.Delete(ctx, portfolioID, id); err != nil {
		return err
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped("trading", &events.TradeDeletedData{
			PortfolioID: portfolioID,
			TradeID:     id,
		})
	}
	return nil
}

// ResyncResult reports what a holdings resync changed
type ResyncResult struct {
	Removed  int64 `json:"removed"`
	Inserted int   `json:"inserted"`
}

// ResyncHoldings replaces the portfolio's holding-snapshot trades with one
// synthetic BUY per non-empty snapshot line, priced at the snapshot price.
// Trades from every other source are left untouched.
func (s *TradingService) ResyncHoldings(ctx context.Context, portfolioID string, holdings []domain.HoldingSnapshot) (ResyncResult, error) {
	if _, err := s.portfolios.GetByID(ctx, portfolioID); err != nil {
		return ResyncResult{}, err
	}

	now := time.Now().UTC()
	synthetic := make([]domain.Trade, 0, len(holdings))
	for _, h := range holdings {
		if h.Quantity.IsZero() {
			continue
		}
		asOf := h.AsOf
		if asOf.IsZero() {
			asOf = now
		}
		synthetic = append(synthetic, domain.Trade{
			PortfolioID: portfolioID,
			Symbol:      h.Symbol,
			Side:        domain.TradeSideBuy,
			Quantity:    h.Quantity,
			Price:       h.Price,
			ExecutedAt:  asOf,
			Source:      domain.SourceHoldingSnapshot,
		})
	}

	removed, err := s.tradeRepo.ReplaceBySource(ctx, portfolioID, domain.SourceHoldingSnapshot, synthetic)
	if err != nil {
		return ResyncResult{}, fmt.Errorf("failed to resync holdings: %w", err)
	}

	result := ResyncResult{Removed: removed, Inserted: len(synthetic)}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Int64("removed", result.Removed).
		Int("inserted", result.Inserted).
		Msg("Holdings resynced")

	if s.eventManager != nil {
		s.eventManager.EmitTyped("trading", &events.HoldingsResyncedData{
			PortfolioID: portfolioID,
			Removed:     result.Removed,
			Inserted:    result.Inserted,
		})
	}

	return result, nil
}
