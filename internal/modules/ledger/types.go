// Package ledger replays a symbol's trades and transfers into a weighted-average
// cost-basis lot and detects when the lot is fully liquidated.
//
// Everything in this package is pure: no I/O, no clocks, no globals. Given the same
// ordered events it always produces the same lot, closures and warnings.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// DustEpsilon is the quantity below which a lot is treated as empty.
var DustEpsilon = decimal.New(1, -8)

// Output scales for persisted values
const (
	AmountScale  int32 = 8
	PercentScale int32 = 2
)

var hundred = decimal.NewFromInt(100)

// EventKind is the type of a ledger event
type EventKind string

const (
	EventBuy        EventKind = "BUY"
	EventSell       EventKind = "SELL"
	EventDeposit    EventKind = "DEPOSIT"
	EventWithdrawal EventKind = "WITHDRAWAL"
)

// RefType identifies the record an event was derived from
type RefType string

const (
	RefTrade    RefType = "trade"
	RefTransfer RefType = "transfer"
)

// SourceRef points back to the stored record behind an event
type SourceRef struct {
	Type RefType `json:"type"`
	ID   int64   `json:"id"`
}

// AssetEvent is one step of a symbol's timeline. Built fresh on every recompute.
type AssetEvent struct {
	Timestamp time.Time           `json:"timestamp"`
	Kind      EventKind           `json:"kind"`
	Ref       SourceRef           `json:"ref"`
	Quantity  decimal.Decimal     `json:"quantity"`
	Price     decimal.NullDecimal `json:"price"`
	Fee       decimal.Decimal     `json:"fee"`
	// KnownCost is only meaningful on deposits
	KnownCost decimal.NullDecimal `json:"known_cost"`
}

// LotState is the open position for one symbol.
// Invariant: Quantity == 0 implies CostBasis == 0.
type LotState struct {
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	// Realized accumulates realized P/L of every sell in the replay, closed or not
	Realized decimal.Decimal `json:"realized"`
}

// AveragePrice is CostBasis/Quantity, or zero for an empty lot.
func (l LotState) AveragePrice() decimal.Decimal {
	if !l.Quantity.IsPositive() {
		return decimal.Zero
	}
	return l.CostBasis.Div(l.Quantity)
}

// IsOpen reports whether the lot still holds a quantity
func (l LotState) IsOpen() bool {
	return l.Quantity.IsPositive()
}

// ClosedPositionData summarizes one full acquisition→liquidation lifecycle.
type ClosedPositionData struct {
	OpenedAt                     time.Time           `json:"opened_at"`
	ClosedAt                     time.Time           `json:"closed_at"`
	Symbol                       string              `json:"symbol"`
	Cycle                        int                 `json:"cycle"`
	NumberOfTrades               int                 `json:"number_of_trades"`
	TotalBought                  decimal.Decimal     `json:"total_bought"`
	TotalSold                    decimal.Decimal     `json:"total_sold"`
	AverageBuyPrice              decimal.Decimal     `json:"average_buy_price"`
	AverageSellPrice             decimal.Decimal     `json:"average_sell_price"`
	TotalInvested                decimal.Decimal     `json:"total_invested"`
	TotalReceived                decimal.Decimal     `json:"total_received"`
	RealizedProfitLoss           decimal.Decimal     `json:"realized_profit_loss"`
	// Valid=false means undefined: the lot was acquired at zero cost
	RealizedProfitLossPercentage decimal.NullDecimal `json:"realized_profit_loss_percentage"`
}

// Rounded returns a copy at storage scale.
func (c ClosedPositionData) Rounded() ClosedPositionData {
	c.TotalBought = c.TotalBought.Round(AmountScale)
	c.TotalSold = c.TotalSold.Round(AmountScale)
	c.AverageBuyPrice = c.AverageBuyPrice.Round(AmountScale)
	c.AverageSellPrice = c.AverageSellPrice.Round(AmountScale)
	c.TotalInvested = c.TotalInvested.Round(AmountScale)
	c.TotalReceived = c.TotalReceived.Round(AmountScale)
	c.RealizedProfitLoss = c.RealizedProfitLoss.Round(AmountScale)
	if c.RealizedProfitLossPercentage.Valid {
		c.RealizedProfitLossPercentage.Decimal = c.RealizedProfitLossPercentage.Decimal.Round(PercentScale)
	}
	return c
}

// WarningCode classifies recoverable anomalies found during a replay
type WarningCode string

const (
	// WarningNegativeQuantity: a sell or withdrawal exceeded the recorded holding and was clamped
	WarningNegativeQuantity WarningCode = "negative_quantity"
	// WarningDegeneratePercentage: a lot closed with zero invested, percentage left undefined
	WarningDegeneratePercentage WarningCode = "degenerate_percentage"
	// WarningPriceUnavailable: valuation fell back to average cost
	WarningPriceUnavailable WarningCode = "price_unavailable"
)

// Warning is a recoverable anomaly attached to a symbol
type Warning struct {
	At      time.Time   `json:"at,omitempty"`
	Code    WarningCode `json:"code"`
	Symbol  string      `json:"symbol"`
	Message string      `json:"message"`
	Ref     *SourceRef  `json:"ref,omitempty"`
}

// Result is the outcome of replaying one symbol
type Result struct {
	Symbol   string               `json:"symbol"`
	Lot      LotState             `json:"lot"`
	Closed   []ClosedPositionData `json:"closed"`
	Warnings []Warning            `json:"warnings"`
}
