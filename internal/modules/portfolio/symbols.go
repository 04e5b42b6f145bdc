package portfolio

import (
	"strings"

	"github.com/aristath/holdings/internal/domain"
)

// DefaultQuote is used when neither the portfolio nor the configuration names one
const DefaultQuote = "USDT"

// quoteSuffixes are stripped from a symbol to find its base asset, longest first
var quoteSuffixes = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "EUR", "BTC", "ETH", "BNB"}

// BaseAsset strips one known quote suffix from symbol. A symbol that is
// nothing but a suffix (e.g. "BTC") is returned unchanged.
func BaseAsset(symbol string) string {
	symbol = domain.NormalizeSymbol(symbol)
	for _, suffix := range quoteSuffixes {
		if len(symbol) > len(suffix) && strings.HasSuffix(symbol, suffix) {
			return strings.TrimSuffix(symbol, suffix)
		}
	}
	return symbol
}

// PriceSymbol maps a ledger key to the pair to price it with.
// The second return is true when the base is the quote itself, which is worth exactly 1.
func PriceSymbol(symbol, quote string) (string, bool) {
	quote = domain.NormalizeSymbol(quote)
	if quote == "" {
		quote = DefaultQuote
	}

	base := BaseAsset(symbol)
	if base == quote {
		return quote, true
	}
	return base + quote, false
}
