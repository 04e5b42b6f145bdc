// Package binance fetches last traded prices from the Binance public ticker API.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aristath/holdings/internal/clientdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// maxBatchSymbols caps how many symbols go into one ticker request
const maxBatchSymbols = 100

// Config configures a Client
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit is the sustained requests per second; Burst the bucket size
	RateLimit float64
	Burst     int
	// CacheTTL is how long a fetched price counts as fresh in the persistent cache
	CacheTTL time.Duration
}

// Client for the Binance spot ticker endpoint
type Client struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	cacheRepo *clientdata.Repository
	cacheTTL  time.Duration
	log       zerolog.Logger
}

// NewClient creates a new Binance price client.
// cacheRepo is optional - if nil, caching is disabled
func NewClient(cfg Config, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = clientdata.TTLCurrentPrice
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		cacheRepo: cacheRepo,
		cacheTTL:  cfg.CacheTTL,
		log:       log.With().Str("client", "binance").Logger(),
	}
}

// cachedPrice is the structure stored in the cache
type cachedPrice struct {
	Price     string `msgpack:"price"`
	FetchedAt int64  `msgpack:"fetched_at"`
}

type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// APIError is a non-2xx response from Binance
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API returned status %d (code %d): %s", e.Status, e.Code, e.Message)
}

// isInvalidSymbol reports whether Binance rejected the request because of an unknown pair
func isInvalidSymbol(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest
}

// GetPrices returns the last price for every symbol it could resolve.
//
// Fresh cache entries are served without a request. Remaining symbols are fetched
// in batches; when Binance rejects a batch because one pair does not exist, the
// batch is retried symbol by symbol. If the API is unreachable, stale cache
// entries are used. Unknown pairs are simply absent from the result. The error
// is non-nil only when some symbols could not be resolved for transport reasons.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(symbols))

	var misses []string
	for _, symbol := range uniqueSymbols(symbols) {
		if price, ok := c.fromCache(symbol, true); ok {
			prices[symbol] = price
			continue
		}
		misses = append(misses, symbol)
	}

	if len(misses) == 0 {
		return prices, nil
	}

	var failures []string
	var lastErr error
	for start := 0; start < len(misses); start += maxBatchSymbols {
		end := start + maxBatchSymbols
		if end > len(misses) {
			end = len(misses)
		}
		chunk := misses[start:end]

		fetched, err := c.fetchChunk(ctx, chunk)
		for symbol, price := range fetched {
			prices[symbol] = price
			c.store(symbol, price)
		}
		if err != nil {
			lastErr = err
			for _, symbol := range chunk {
				if _, ok := prices[symbol]; ok {
					continue
				}
				if stale, ok := c.fromCache(symbol, false); ok {
					c.log.Warn().
						Err(err).
						Str("symbol", symbol).
						Str("price", stale.String()).
						Msg("API failed, using stale cached price")
					prices[symbol] = stale
					continue
				}
				failures = append(failures, symbol)
			}
		}
	}

	if len(failures) > 0 {
		return prices, fmt.Errorf("prices unavailable for %s: %w", strings.Join(failures, ","), lastErr)
	}
	return prices, nil
}

// fetchChunk asks for a batch and falls back to single lookups if the batch names an unknown pair
func (c *Client) fetchChunk(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	batch, err := c.fetchBatch(ctx, symbols)
	if err == nil {
		return batch, nil
	}
	if !isInvalidSymbol(err) {
		return nil, err
	}

	c.log.Debug().Err(err).Int("symbols", len(symbols)).Msg("Batch rejected, retrying per symbol")

	prices := make(map[string]decimal.Decimal, len(symbols))
	var lastErr error
	for _, symbol := range symbols {
		price, err := c.fetchOne(ctx, symbol)
		if err != nil {
			if isInvalidSymbol(err) {
				c.log.Debug().Str("symbol", symbol).Msg("Symbol not listed")
				continue
			}
			lastErr = err
			continue
		}
		prices[symbol] = price
	}
	return prices, lastErr
}

func (c *Client) fetchBatch(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	encoded, err := json.Marshal(symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to encode symbols: %w", err)
	}

	var tickers []tickerPrice
	if err := c.get(ctx, url.Values{"symbols": {string(encoded)}}, &tickers); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(tickers))
	for _, t := range tickers {
		prices[t.Symbol] = t.Price
	}
	return prices, nil
}

func (c *Client) fetchOne(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var ticker tickerPrice
	if err := c.get(ctx, url.Values{"symbol": {symbol}}, &ticker); err != nil {
		return decimal.Zero, err
	}
	return ticker.Price, nil
}

func (c *Client) get(ctx context.Context, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.baseURL + "/api/v3/ticker/price?" + query.Encode()
	c.log.Debug().Str("url", endpoint).Msg("Fetching prices")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) fromCache(symbol string, freshOnly bool) (decimal.Decimal, bool) {
	if c.cacheRepo == nil {
		return decimal.Zero, false
	}

	var cached cachedPrice
	var found bool
	var err error
	if freshOnly {
		found, err = c.cacheRepo.GetIfFresh(clientdata.TablePrices, symbol, &cached)
	} else {
		found, err = c.cacheRepo.Get(clientdata.TablePrices, symbol, &cached)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to read cached price")
		return decimal.Zero, false
	}
	if !found {
		return decimal.Zero, false
	}

	price, err := decimal.NewFromString(cached.Price)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

func (c *Client) store(symbol string, price decimal.Decimal) {
	if c.cacheRepo == nil {
		return
	}
	cached := cachedPrice{Price: price.String(), FetchedAt: time.Now().Unix()}
	if err := c.cacheRepo.Store(clientdata.TablePrices, symbol, cached, c.cacheTTL); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache price")
	}
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
