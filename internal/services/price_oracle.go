// Package services holds cross-module services that sit between clients and modules.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/aristath/holdings/internal/domain"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CachedPriceOracle memoizes another oracle's answers for a short window.
//
// Back-to-back recomputes after a burst of trade writes then cost a single
// upstream lookup. Only resolved prices are cached; a missing symbol is asked
// for again next time.
type CachedPriceOracle struct {
	upstream domain.PriceOracle
	cache    *cache.Cache
	log      zerolog.Logger
}

var _ domain.PriceOracle = (*CachedPriceOracle)(nil)

// NewCachedPriceOracle wraps upstream with an in-process cache of the given TTL
func NewCachedPriceOracle(upstream domain.PriceOracle, ttl time.Duration, log zerolog.Logger) *CachedPriceOracle {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedPriceOracle{
		upstream: upstream,
		cache:    cache.New(ttl, 2*ttl),
		log:      log.With().Str("service", "price_oracle").Logger(),
	}
}

// GetPrices serves cached prices and asks upstream for the rest.
// Upstream errors are passed through alongside whatever was resolved.
func (o *CachedPriceOracle) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(symbols))

	var misses []string
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		if _, done := prices[symbol]; done {
			continue
		}
		if cached, ok := o.cache.Get(symbol); ok {
			prices[symbol] = cached.(decimal.Decimal)
			continue
		}
		misses = append(misses, symbol)
	}

	if len(misses) == 0 {
		return prices, nil
	}

	fetched, err := o.upstream.GetPrices(ctx, misses)
	for symbol, price := range fetched {
		o.cache.SetDefault(symbol, price)
		prices[symbol] = price
	}

	o.log.Debug().
		Int("requested", len(symbols)).
		Int("fetched", len(fetched)).
		Int("misses", len(misses)).
		Msg("Prices resolved")

	return prices, err
}

// Invalidate drops every cached price
func (o *CachedPriceOracle) Invalidate() {
	o.cache.Flush()
}
