package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle returns current market prices for priceable symbols (e.g. BTCUSDT).
// Partial results are allowed: a symbol missing from the map is unavailable right now.
// A non-nil error may accompany a partial map; callers should use whatever was returned.
type PriceOracle interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}
