// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of an executed order
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// TransferType is the direction of an asset movement
type TransferType string

const (
	TransferDeposit    TransferType = "DEPOSIT"
	TransferWithdrawal TransferType = "WITHDRAWAL"
)

// Source tags where a trade or transfer record came from
type Source string

const (
	SourceManual       Source = "manual"
	SourceExchangeSync Source = "exchange-sync"
	SourceImport       Source = "import"
	// SourceHoldingSnapshot marks synthetic trades produced by a holdings resync.
	// They are replaced wholesale on every resync.
	SourceHoldingSnapshot Source = "holding-snapshot"
)

// IsValid reports whether the source is one of the known tags
func (s Source) IsValid() bool {
	switch s {
	case SourceManual, SourceExchangeSync, SourceImport, SourceHoldingSnapshot:
		return true
	}
	return false
}

// NormalizeSymbol upper-cases and trims a symbol or asset code
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Trade represents an executed order. Trades are immutable once recorded.
type Trade struct {
	ExecutedAt  time.Time       `json:"executed_at"`
	CreatedAt   time.Time       `json:"created_at"`
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Side        TradeSide       `json:"side"`
	Source      Source          `json:"source"`
	ExternalID  string          `json:"external_id,omitempty"`
	ID          int64           `json:"id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Fee         decimal.Decimal `json:"fee"`
}

// Validate checks the trade invariants before it is stored
func (t Trade) Validate() error {
	if NormalizeSymbol(t.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if t.Side != TradeSideBuy && t.Side != TradeSideSell {
		return fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidInput, t.Side)
	}
	if t.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	if t.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("%w: fee must not be negative", ErrInvalidInput)
	}
	if t.ExecutedAt.IsZero() {
		return fmt.Errorf("%w: executed_at is required", ErrInvalidInput)
	}
	if !t.Source.IsValid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, t.Source)
	}
	return nil
}

// Transfer represents a deposit or withdrawal of a single asset
type Transfer struct {
	ExecutedAt  time.Time       `json:"executed_at"`
	CreatedAt   time.Time       `json:"created_at"`
	PortfolioID string          `json:"portfolio_id"`
	Type        TransferType    `json:"type"`
	Asset       string          `json:"asset"`
	Source      Source          `json:"source"`
	ExternalID  string          `json:"external_id,omitempty"`
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	// KnownCostBasis is not populated by any current source; nil means a cost-free acquisition
	KnownCostBasis *decimal.Decimal `json:"known_cost_basis,omitempty"`
}

// Validate checks the transfer invariants before it is stored
func (t Transfer) Validate() error {
	if NormalizeSymbol(t.Asset) == "" {
		return fmt.Errorf("%w: asset is required", ErrInvalidInput)
	}
	if t.Type != TransferDeposit && t.Type != TransferWithdrawal {
		return fmt.Errorf("%w: type must be DEPOSIT or WITHDRAWAL, got %q", ErrInvalidInput, t.Type)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("%w: fee must not be negative", ErrInvalidInput)
	}
	if t.KnownCostBasis != nil && t.KnownCostBasis.IsNegative() {
		return fmt.Errorf("%w: known cost basis must not be negative", ErrInvalidInput)
	}
	if t.ExecutedAt.IsZero() {
		return fmt.Errorf("%w: executed_at is required", ErrInvalidInput)
	}
	if !t.Source.IsValid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, t.Source)
	}
	return nil
}

// HoldingSnapshot is one line of a balances snapshot used to resync synthetic trades
type HoldingSnapshot struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	AsOf     time.Time       `json:"as_of"`
}

// Portfolio is a named ledger in a single quote asset together with the totals
// of its latest recomputation.
type Portfolio struct {
	CreatedAt            time.Time       `json:"created_at"`
	RecomputedAt         *time.Time      `json:"recomputed_at,omitempty"`
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	QuoteAsset           string          `json:"quote_asset"`
	TotalInvested        decimal.Decimal `json:"total_invested"`
	CurrentValue         decimal.Decimal `json:"current_value"`
	ProfitLoss           decimal.Decimal `json:"profit_loss"`
	RealizedProfitLoss   decimal.Decimal `json:"realized_profit_loss"`
	UnrealizedProfitLoss decimal.Decimal `json:"unrealized_profit_loss"`
}

// Validate checks the fields required to create a portfolio
func (p Portfolio) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if NormalizeSymbol(p.QuoteAsset) == "" {
		return fmt.Errorf("%w: quote asset is required", ErrInvalidInput)
	}
	return nil
}
