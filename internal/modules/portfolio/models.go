// Package portfolio recomputes portfolio totals from the trade and transfer
// history and keeps the stored summary and closed positions in sync with it.
package portfolio

import (
	"github.com/aristath/holdings/internal/modules/ledger"
	"github.com/shopspring/decimal"
)

// OpenPosition is a symbol with a non-zero lot after the replay
type OpenPosition struct {
	Symbol string `json:"symbol"`
	// PriceSymbol is the pair the oracle was asked for
	PriceSymbol          string          `json:"price_symbol"`
	Quantity             decimal.Decimal `json:"quantity"`
	CostBasis            decimal.Decimal `json:"cost_basis"`
	AveragePrice         decimal.Decimal `json:"average_price"`
	Price                decimal.Decimal `json:"price"`
	PriceAvailable       bool            `json:"price_available"`
	MarketValue          decimal.Decimal `json:"market_value"`
	UnrealizedProfitLoss decimal.Decimal `json:"unrealized_profit_loss"`
}

// Summary is the result of a recomputation.
//
// ProfitLoss always equals UnrealizedProfitLoss + RealizedProfitLoss exactly,
// and RealizedProfitLoss is the sum of ClosedPositions' realized P/L.
type Summary struct {
	PortfolioID          string                      `json:"portfolio_id"`
	QuoteAsset           string                      `json:"quote_asset"`
	TotalInvested        decimal.Decimal             `json:"total_invested"`
	CurrentValue         decimal.Decimal             `json:"current_value"`
	ProfitLoss           decimal.Decimal             `json:"profit_loss"`
	RealizedProfitLoss   decimal.Decimal             `json:"realized_profit_loss"`
	UnrealizedProfitLoss decimal.Decimal             `json:"unrealized_profit_loss"`
	Positions            []OpenPosition              `json:"positions"`
	ClosedPositions      []ledger.ClosedPositionData `json:"closed_positions"`
	Unpriced             []string                    `json:"unpriced"`
	Warnings             []ledger.Warning            `json:"warnings"`
}
