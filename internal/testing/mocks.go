package testing

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockPriceOracle is a testify mock of domain.PriceOracle
type MockPriceOracle struct {
	mock.Mock
}

// GetPrices records the call and returns the configured prices
func (m *MockPriceOracle) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, symbols)
	var prices map[string]decimal.Decimal
	if v := args.Get(0); v != nil {
		prices = v.(map[string]decimal.Decimal)
	}
	return prices, args.Error(1)
}

// StaticPriceOracle serves a fixed price table and ignores unknown symbols
type StaticPriceOracle map[string]decimal.Decimal

// GetPrices returns the subset of the table matching symbols
func (o StaticPriceOracle) GetPrices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if p, ok := o[s]; ok {
			prices[s] = p
		}
	}
	return prices, nil
}
