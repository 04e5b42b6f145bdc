package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// lotAccumulators track one lot lifecycle; they reset only when a sell closes the lot.
// A withdrawal that empties the holding keeps them, so a later deposit-back and
// sell still closes against the original investment.
type lotAccumulators struct {
	firstBuyAt    time.Time
	lastSellAt    time.Time
	totalBought   decimal.Decimal
	totalSold     decimal.Decimal
	totalInvested decimal.Decimal
	totalReceived decimal.Decimal
	tradeCount    int
}

func (a *lotAccumulators) markOpened(ts time.Time) {
	if a.firstBuyAt.IsZero() || ts.Before(a.firstBuyAt) {
		a.firstBuyAt = ts
	}
}

// replay is the running state machine for one symbol
type replay struct {
	symbol string
	lot    LotState
	acc    lotAccumulators
	cycle  int
	result Result
}

// Process folds an ordered event series into the final lot state, emitting a
// ClosedPositionData every time a lot is fully liquidated by a sell.
//
// Events must already be ordered (see BuildTimelines). Zero-quantity events are
// no-ops. Sells and withdrawals larger than the holding are clamped to zero and
// reported as WarningNegativeQuantity instead of producing negative state.
func Process(symbol string, events []AssetEvent) Result {
	r := &replay{
		symbol: symbol,
		lot: LotState{
			Quantity:  decimal.Zero,
			CostBasis: decimal.Zero,
			Realized:  decimal.Zero,
		},
		result: Result{
			Symbol:   symbol,
			Closed:   []ClosedPositionData{},
			Warnings: []Warning{},
		},
	}
	r.acc.reset()

	for _, ev := range events {
		r.apply(ev)
	}

	r.result.Lot = r.lot
	return r.result
}

func (a *lotAccumulators) reset() {
	*a = lotAccumulators{
		totalBought:   decimal.Zero,
		totalSold:     decimal.Zero,
		totalInvested: decimal.Zero,
		totalReceived: decimal.Zero,
	}
}

func (r *replay) apply(ev AssetEvent) {
	if ev.Quantity.IsZero() {
		return
	}

	switch ev.Kind {
	case EventBuy:
		r.buy(ev)
	case EventSell:
		r.sell(ev)
	case EventDeposit:
		r.deposit(ev)
	case EventWithdrawal:
		r.withdraw(ev)
	}
}

func (r *replay) buy(ev AssetEvent) {
	cost := ev.Quantity.Mul(ev.Price.Decimal).Add(ev.Fee)

	r.lot.CostBasis = r.lot.CostBasis.Add(cost)
	r.lot.Quantity = r.lot.Quantity.Add(ev.Quantity)

	r.acc.totalBought = r.acc.totalBought.Add(ev.Quantity)
	r.acc.totalInvested = r.acc.totalInvested.Add(cost)
	r.acc.tradeCount++
	r.acc.markOpened(ev.Timestamp)
}

func (r *replay) sell(ev AssetEvent) {
	costOfSold := r.removeCost(ev)
	proceeds := ev.Quantity.Mul(ev.Price.Decimal).Sub(ev.Fee)

	r.lot.Realized = r.lot.Realized.Add(proceeds.Sub(costOfSold))
	r.lot.Quantity = r.lot.Quantity.Sub(ev.Quantity)
	r.lot.CostBasis = r.lot.CostBasis.Sub(costOfSold)

	r.acc.totalSold = r.acc.totalSold.Add(ev.Quantity)
	r.acc.totalReceived = r.acc.totalReceived.Add(proceeds)
	r.acc.tradeCount++
	r.acc.lastSellAt = ev.Timestamp

	r.settle(true)
}

func (r *replay) deposit(ev AssetEvent) {
	r.lot.Quantity = r.lot.Quantity.Add(ev.Quantity)
	if ev.KnownCost.Valid {
		r.lot.CostBasis = r.lot.CostBasis.Add(ev.KnownCost.Decimal)
		r.acc.totalInvested = r.acc.totalInvested.Add(ev.KnownCost.Decimal)
	}

	r.acc.totalBought = r.acc.totalBought.Add(ev.Quantity)
	r.acc.markOpened(ev.Timestamp)
}

// withdraw moves custody out without disposing of economic interest: no realized P/L.
func (r *replay) withdraw(ev AssetEvent) {
	removed := r.removeCost(ev)

	r.lot.CostBasis = r.lot.CostBasis.Sub(removed)
	r.lot.Quantity = r.lot.Quantity.Sub(ev.Quantity)

	r.settle(false)
}

// removeCost returns the cost basis attributable to ev.Quantity at the current
// average price, capped at the remaining cost basis.
func (r *replay) removeCost(ev AssetEvent) decimal.Decimal {
	held := r.lot.Quantity
	if ev.Quantity.LessThan(held) {
		return r.lot.AveragePrice().Mul(ev.Quantity)
	}

	if excess := ev.Quantity.Sub(held); excess.GreaterThanOrEqual(DustEpsilon) {
		ref := ev.Ref
		r.result.Warnings = append(r.result.Warnings, Warning{
			At:     ev.Timestamp,
			Code:   WarningNegativeQuantity,
			Symbol: r.symbol,
			Message: fmt.Sprintf("%s of %s exceeds holding of %s; clamped to zero",
				ev.Kind, ev.Quantity.String(), held.String()),
			Ref: &ref,
		})
	}
	return r.lot.CostBasis
}

// settle applies the dust clamp after a decreasing transition and closes the lot
// when a sell emptied it.
func (r *replay) settle(afterSell bool) {
	if !r.lot.Quantity.LessThan(DustEpsilon) {
		return
	}

	r.lot.Quantity = decimal.Zero
	r.lot.CostBasis = decimal.Zero

	if afterSell && r.acc.totalBought.IsPositive() {
		r.result.Closed = append(r.result.Closed, r.close())
		r.acc.reset()
	}
}

func (r *replay) close() ClosedPositionData {
	r.cycle++
	acc := r.acc

	realized := acc.totalReceived.Sub(acc.totalInvested)

	closed := ClosedPositionData{
		Symbol:             r.symbol,
		Cycle:              r.cycle,
		OpenedAt:           acc.firstBuyAt,
		ClosedAt:           acc.lastSellAt,
		NumberOfTrades:     acc.tradeCount,
		TotalBought:        acc.totalBought,
		TotalSold:          acc.totalSold,
		AverageBuyPrice:    acc.totalInvested.Div(acc.totalBought),
		AverageSellPrice:   decimal.Zero,
		TotalInvested:      acc.totalInvested,
		TotalReceived:      acc.totalReceived,
		RealizedProfitLoss: realized,
	}

	if acc.totalSold.IsPositive() {
		closed.AverageSellPrice = acc.totalReceived.Div(acc.totalSold)
	}

	if acc.totalInvested.IsPositive() {
		closed.RealizedProfitLossPercentage = decimal.NewNullDecimal(realized.Div(acc.totalInvested).Mul(hundred))
	} else {
		r.result.Warnings = append(r.result.Warnings, Warning{
			At:      acc.lastSellAt,
			Code:    WarningDegeneratePercentage,
			Symbol:  r.symbol,
			Message: "lot closed with zero invested; realized percentage is undefined",
		})
	}

	return closed
}
