package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/events"
	"github.com/aristath/holdings/internal/modules/ledger"
	"github.com/aristath/holdings/internal/modules/positions"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// TradeLoader loads a portfolio's trades
type TradeLoader interface {
	GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Trade, error)
}

// TransferLoader loads a portfolio's transfers
type TransferLoader interface {
	GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Transfer, error)
}

// Options tune a Service
type Options struct {
	// PreferredQuote prices portfolios that do not name their own quote asset
	PreferredQuote string
	// Workers bounds how many symbol ledgers replay concurrently
	Workers int
}

// Service recomputes portfolios.
//
// Recompute replays the full history on every call, so the stored closed
// positions and totals are always a function of the current trades and
// transfers only.
type Service struct {
	ledgerDB     *sql.DB
	portfolios   *Repository
	closed       *positions.ClosedPositionRepository
	trades       TradeLoader
	transfers    TransferLoader
	oracle       domain.PriceOracle
	eventManager *events.Manager
	locks        *Locks
	opts         Options
	log          zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(
	ledgerDB *sql.DB,
	portfolios *Repository,
	closed *positions.ClosedPositionRepository,
	trades TradeLoader,
	transfers TransferLoader,
	oracle domain.PriceOracle,
	eventManager *events.Manager,
	opts Options,
	log zerolog.Logger,
) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PreferredQuote == "" {
		opts.PreferredQuote = DefaultQuote
	}
	return &Service{
		ledgerDB:     ledgerDB,
		portfolios:   portfolios,
		closed:       closed,
		trades:       trades,
		transfers:    transfers,
		oracle:       oracle,
		eventManager: eventManager,
		locks:        NewLocks(),
		opts:         opts,
		log:          log.With().Str("service", "portfolio").Logger(),
	}
}

// Create adds an empty portfolio. An empty quote asset uses the preferred quote.
func (s *Service) Create(ctx context.Context, name, quoteAsset string) (*domain.Portfolio, error) {
	if quoteAsset == "" {
		quoteAsset = s.opts.PreferredQuote
	}

	p, err := s.portfolios.Create(ctx, name, quoteAsset)
	if err != nil {
		return nil, err
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped("portfolio", &events.PortfolioCreatedData{
			PortfolioID: p.ID,
			Name:        p.Name,
			QuoteAsset:  p.QuoteAsset,
		})
	}
	return p, nil
}

// Get returns a stored portfolio with the totals of its last recomputation
func (s *Service) Get(ctx context.Context, id string) (*domain.Portfolio, error) {
	return s.portfolios.GetByID(ctx, id)
}

// List returns every stored portfolio
func (s *Service) List(ctx context.Context) ([]domain.Portfolio, error) {
	return s.portfolios.List(ctx)
}

// ClosedPositions returns the stored closed positions of a portfolio
func (s *Service) ClosedPositions(ctx context.Context, id string) ([]positions.ClosedPosition, error) {
	if _, err := s.portfolios.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.closed.GetByPortfolio(ctx, id)
}

// Recompute replays the portfolio's trades and transfers, values the open lots
// and atomically stores the closed positions and totals.
//
// Only a missing portfolio or a failed load or write aborts the call; symbols
// without a price are valued at their average cost and reported in Unpriced.
func (s *Service) Recompute(ctx context.Context, portfolioID string) (Summary, error) {
	unlock, err := s.locks.Lock(ctx, portfolioID)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to acquire portfolio lock: %w", err)
	}
	defer unlock()

	start := time.Now()

	p, err := s.portfolios.GetByID(ctx, portfolioID)
	if err != nil {
		return Summary{}, err
	}

	trades, err := s.trades.GetByPortfolio(ctx, portfolioID)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load trades: %w", err)
	}
	transfers, err := s.transfers.GetByPortfolio(ctx, portfolioID)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load transfers: %w", err)
	}

	timelines := ledger.BuildTimelines(trades, transfers)
	results, err := s.replay(ctx, timelines)
	if err != nil {
		return Summary{}, err
	}

	quote := p.QuoteAsset
	if quote == "" {
		quote = s.opts.PreferredQuote
	}

	summary := s.aggregate(ctx, portfolioID, quote, results)

	if err := s.writeBack(ctx, summary, results, time.Now().UTC()); err != nil {
		if s.eventManager != nil {
			s.eventManager.EmitError("portfolio", err, map[string]interface{}{"portfolio_id": portfolioID})
		}
		return Summary{}, err
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Int("trades", len(trades)).
		Int("transfers", len(transfers)).
		Int("open_positions", len(summary.Positions)).
		Int("closed_positions", len(summary.ClosedPositions)).
		Int("unpriced", len(summary.Unpriced)).
		Str("current_value", summary.CurrentValue.String()).
		Str("profit_loss", summary.ProfitLoss.String()).
		Dur("duration", time.Since(start)).
		Msg("Portfolio recomputed")

	s.emitRecomputed(summary, time.Since(start))

	return summary, nil
}

// replay runs every symbol's ledger; results come back in symbol order
func (s *Service) replay(ctx context.Context, timelines map[string][]ledger.AssetEvent) ([]ledger.Result, error) {
	symbols := ledger.Symbols(timelines)
	results := make([]ledger.Result, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = ledger.Process(symbol, timelines[symbol])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to replay ledgers: %w", err)
	}
	return results, nil
}

// aggregate values the open lots and builds the summary. Amounts are rounded
// before they are summed so the totals add up exactly.
func (s *Service) aggregate(ctx context.Context, portfolioID, quote string, results []ledger.Result) Summary {
	summary := Summary{
		PortfolioID:     portfolioID,
		QuoteAsset:      quote,
		TotalInvested:   decimal.Zero,
		CurrentValue:    decimal.Zero,
		Positions:       make([]OpenPosition, 0),
		ClosedPositions: make([]ledger.ClosedPositionData, 0),
		Unpriced:        make([]string, 0),
		Warnings:        make([]ledger.Warning, 0),
	}

	realized := decimal.Zero
	for _, res := range results {
		summary.Warnings = append(summary.Warnings, res.Warnings...)
		for _, c := range res.Closed {
			rounded := c.Rounded()
			summary.ClosedPositions = append(summary.ClosedPositions, rounded)
			realized = realized.Add(rounded.RealizedProfitLoss)
		}

		if res.Lot.IsOpen() {
			priceSymbol, _ := PriceSymbol(res.Symbol, quote)
			summary.Positions = append(summary.Positions, OpenPosition{
				Symbol:       res.Symbol,
				PriceSymbol:  priceSymbol,
				Quantity:     res.Lot.Quantity.Round(ledger.AmountScale),
				CostBasis:    res.Lot.CostBasis.Round(ledger.AmountScale),
				AveragePrice: res.Lot.AveragePrice().Round(ledger.AmountScale),
			})
		}
	}

	prices := s.fetchPrices(ctx, portfolioID, quote, summary.Positions)

	for i := range summary.Positions {
		pos := &summary.Positions[i]

		price, ok := prices[pos.PriceSymbol]
		if _, isQuote := PriceSymbol(pos.Symbol, quote); isQuote {
			price, ok = decimal.NewFromInt(1), true
		}

		if ok {
			pos.Price = price.Round(ledger.AmountScale)
			pos.PriceAvailable = true
			pos.MarketValue = pos.Quantity.Mul(pos.Price).Round(ledger.AmountScale)
		} else {
			// Valued at cost: quantity * average price is the cost basis
			pos.Price = pos.AveragePrice
			pos.MarketValue = pos.CostBasis
			summary.Unpriced = append(summary.Unpriced, pos.Symbol)

			unavailable := &domain.PriceUnavailableError{Symbol: pos.PriceSymbol}
			summary.Warnings = append(summary.Warnings, ledger.Warning{
				Code:    ledger.WarningPriceUnavailable,
				Symbol:  pos.Symbol,
				Message: unavailable.Error() + "; valued at average cost",
			})
		}
		pos.UnrealizedProfitLoss = pos.MarketValue.Sub(pos.CostBasis)

		summary.TotalInvested = summary.TotalInvested.Add(pos.CostBasis)
		summary.CurrentValue = summary.CurrentValue.Add(pos.MarketValue)
	}

	summary.UnrealizedProfitLoss = summary.CurrentValue.Sub(summary.TotalInvested)
	summary.RealizedProfitLoss = realized
	summary.ProfitLoss = summary.UnrealizedProfitLoss.Add(summary.RealizedProfitLoss)

	return summary
}

// fetchPrices batch-queries the oracle. Errors degrade to whatever partial
// result came back.
func (s *Service) fetchPrices(ctx context.Context, portfolioID, quote string, open []OpenPosition) map[string]decimal.Decimal {
	seen := make(map[string]bool)
	symbols := make([]string, 0, len(open))
	for _, pos := range open {
		if _, isQuote := PriceSymbol(pos.Symbol, quote); isQuote || seen[pos.PriceSymbol] {
			continue
		}
		seen[pos.PriceSymbol] = true
		symbols = append(symbols, pos.PriceSymbol)
	}
	if len(symbols) == 0 || s.oracle == nil {
		return map[string]decimal.Decimal{}
	}
	sort.Strings(symbols)

	prices, err := s.oracle.GetPrices(ctx, symbols)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("portfolio_id", portfolioID).
			Strs("symbols", symbols).
			Int("received", len(prices)).
			Msg("Price lookup failed, falling back to average cost for missing symbols")
	}
	if prices == nil {
		prices = map[string]decimal.Decimal{}
	}
	return prices
}

// writeBack stores closed positions and totals in one transaction
func (s *Service) writeBack(ctx context.Context, summary Summary, results []ledger.Result, at time.Time) error {
	return database.WithTransaction(s.ledgerDB, func(tx *sql.Tx) error {
		closed := s.closed.WithTx(tx)

		keep := make([]string, 0)
		for _, res := range results {
			if len(res.Closed) == 0 {
				continue
			}
			keep = append(keep, res.Symbol)
			if err := closed.ReplaceSymbol(ctx, summary.PortfolioID, res.Symbol, res.Closed); err != nil {
				return err
			}
		}

		if _, err := closed.PruneSymbols(ctx, summary.PortfolioID, keep); err != nil {
			return err
		}

		return s.portfolios.WithTx(tx).SaveSummary(ctx, summary, at)
	})
}

func (s *Service) emitRecomputed(summary Summary, elapsed time.Duration) {
	if s.eventManager == nil {
		return
	}

	s.eventManager.EmitTyped("portfolio", &events.PortfolioRecomputedData{
		PortfolioID:     summary.PortfolioID,
		TotalInvested:   summary.TotalInvested.String(),
		CurrentValue:    summary.CurrentValue.String(),
		ProfitLoss:      summary.ProfitLoss.String(),
		OpenPositions:   len(summary.Positions),
		ClosedPositions: len(summary.ClosedPositions),
		Unpriced:        len(summary.Unpriced),
		Warnings:        len(summary.Warnings),
		DurationMs:      elapsed.Milliseconds(),
	})

	if len(summary.Unpriced) > 0 {
		s.eventManager.EmitTyped("portfolio", &events.PriceUnavailableData{
			PortfolioID: summary.PortfolioID,
			Symbols:     summary.Unpriced,
		})
	}
}
