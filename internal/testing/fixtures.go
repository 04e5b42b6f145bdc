package testing

import (
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/holdings/internal/domain"
	"github.com/shopspring/decimal"
)

// FixtureTime is the base timestamp used by fixtures
var FixtureTime = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

// Dec parses a decimal literal and panics on malformed input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// SeedPortfolio inserts a bare portfolio row so trades and transfers satisfy
// their foreign key.
func SeedPortfolio(t *testing.T, db *sql.DB, id, quote string) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO portfolios (id, name, quote_asset, created_at) VALUES (?, ?, ?, ?)`,
		id, "Test "+id, quote, FixtureTime.UnixMilli(),
	)
	if err != nil {
		t.Fatalf("Failed to seed portfolio %s: %v", id, err)
	}
}

// NewTrade returns a manual trade offset by minutes from FixtureTime
func NewTrade(portfolioID, symbol string, side domain.TradeSide, qty, price, fee string, minutes int) domain.Trade {
	return domain.Trade{
		PortfolioID: portfolioID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    Dec(qty),
		Price:       Dec(price),
		Fee:         Dec(fee),
		ExecutedAt:  FixtureTime.Add(time.Duration(minutes) * time.Minute),
		Source:      domain.SourceManual,
	}
}

// NewTransfer returns a manual transfer offset by minutes from FixtureTime
func NewTransfer(portfolioID, asset string, kind domain.TransferType, amount string, minutes int) domain.Transfer {
	return domain.Transfer{
		PortfolioID: portfolioID,
		Type:        kind,
		Asset:       asset,
		Amount:      Dec(amount),
		Fee:         decimal.Zero,
		ExecutedAt:  FixtureTime.Add(time.Duration(minutes) * time.Minute),
		Source:      domain.SourceManual,
	}
}
