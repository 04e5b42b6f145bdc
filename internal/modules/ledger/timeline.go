package ledger

import (
	"sort"

	"github.com/aristath/holdings/internal/domain"
	"github.com/shopspring/decimal"
)

// BuildTimelines merges trades and transfers into one chronologically ordered
// event series per symbol.
//
// Trades are keyed by their pair symbol (BTCUSDT) and transfers by their asset
// (BTC); the two key spaces are never merged here. Events sharing a timestamp
// are ordered trades first, then by record ID, so replays are reproducible.
func BuildTimelines(trades []domain.Trade, transfers []domain.Transfer) map[string][]AssetEvent {
	timelines := make(map[string][]AssetEvent)

	for _, t := range trades {
		symbol := domain.NormalizeSymbol(t.Symbol)
		timelines[symbol] = append(timelines[symbol], tradeEvent(t))
	}

	for _, tr := range transfers {
		asset := domain.NormalizeSymbol(tr.Asset)
		timelines[asset] = append(timelines[asset], transferEvent(tr))
	}

	for symbol := range timelines {
		SortEvents(timelines[symbol])
	}

	return timelines
}

// SortEvents orders events in place by timestamp with a deterministic tie-break.
func SortEvents(events []AssetEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Ref.Type != b.Ref.Type {
			return a.Ref.Type == RefTrade
		}
		return a.Ref.ID < b.Ref.ID
	})
}

// Symbols returns the timeline keys in sorted order
func Symbols(timelines map[string][]AssetEvent) []string {
	symbols := make([]string, 0, len(timelines))
	for symbol := range timelines {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func tradeEvent(t domain.Trade) AssetEvent {
	kind := EventBuy
	if t.Side == domain.TradeSideSell {
		kind = EventSell
	}
	return AssetEvent{
		Timestamp: t.ExecutedAt,
		Kind:      kind,
		Ref:       SourceRef{Type: RefTrade, ID: t.ID},
		Quantity:  t.Quantity,
		Price:     decimal.NewNullDecimal(t.Price),
		Fee:       t.Fee,
	}
}

func transferEvent(tr domain.Transfer) AssetEvent {
	kind := EventDeposit
	if tr.Type == domain.TransferWithdrawal {
		kind = EventWithdrawal
	}
	ev := AssetEvent{
		Timestamp: tr.ExecutedAt,
		Kind:      kind,
		Ref:       SourceRef{Type: RefTransfer, ID: tr.ID},
		Quantity:  tr.Amount,
		Fee:       tr.Fee,
	}
	if tr.KnownCostBasis != nil {
		ev.KnownCost = decimal.NewNullDecimal(*tr.KnownCostBasis)
	}
	return ev
}
