package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/events"
	"github.com/aristath/holdings/internal/modules/ledger"
	"github.com/aristath/holdings/internal/modules/positions"
	"github.com/aristath/holdings/internal/modules/trading"
	"github.com/aristath/holdings/internal/modules/transfers"
	testutil "github.com/aristath/holdings/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db        *sql.DB
	service   *Service
	repo      *Repository
	trades    *trading.TradeRepository
	transfers *transfers.Repository
	closed    *positions.ClosedPositionRepository
	bus       *events.Bus
}

func newFixture(t *testing.T, oracle domain.PriceOracle) *fixture {
	t.Helper()
	log := zerolog.Nop()
	db := testutil.NewMemoryDB(t, "ledger")

	f := &fixture{
		db:        db,
		repo:      NewRepository(db, log),
		trades:    trading.NewTradeRepository(db, log),
		transfers: transfers.NewRepository(db, log),
		closed:    positions.NewClosedPositionRepository(db, log),
		bus:       events.NewBus(log),
	}
	f.service = NewService(db, f.repo, f.closed, f.trades, f.transfers, oracle,
		events.NewManager(f.bus, log), Options{PreferredQuote: "USDT", Workers: 2}, log)
	return f
}

func (f *fixture) portfolio(t *testing.T) string {
	t.Helper()
	p, err := f.service.Create(context.Background(), "main", "")
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) trade(t *testing.T, pid, symbol string, side domain.TradeSide, qty, price, fee string, minutes int) domain.Trade {
	t.Helper()
	stored, _, err := f.trades.Create(context.Background(), testutil.NewTrade(pid, symbol, side, qty, price, fee, minutes))
	require.NoError(t, err)
	return stored
}

func (f *fixture) transfer(t *testing.T, pid, asset string, kind domain.TransferType, amount string, minutes int) {
	t.Helper()
	_, _, err := f.transfers.Create(context.Background(), testutil.NewTransfer(pid, asset, kind, amount, minutes))
	require.NoError(t, err)
}

func assertDec(t *testing.T, expected string, actual decimal.Decimal, name string) {
	t.Helper()
	assert.True(t, testutil.Dec(expected).Equal(actual), "%s: expected %s, got %s", name, expected, actual.String())
}

func TestRecompute_ClosedAndOpenPositions(t *testing.T) {
	f := newFixture(t, testutil.StaticPriceOracle{"ETHUSDT": testutil.Dec("1500")})
	pid := f.portfolio(t)

	f.trade(t, pid, "BTCUSDT", domain.TradeSideBuy, "10", "100", "1", 0)
	f.trade(t, pid, "BTCUSDT", domain.TradeSideSell, "10", "150", "2", 10)
	f.trade(t, pid, "ETHUSDT", domain.TradeSideBuy, "2", "1000", "0", 20)

	summary, err := f.service.Recompute(context.Background(), pid)
	require.NoError(t, err)

	assertDec(t, "2000", summary.TotalInvested, "total invested")
	assertDec(t, "3000", summary.CurrentValue, "current value")
	assertDec(t, "1000", summary.UnrealizedProfitLoss, "unrealized")
	assertDec(t, "497", summary.RealizedProfitLoss, "realized")
	assertDec(t, "1497", summary.ProfitLoss, "profit/loss")
	assert.Empty(t, summary.Unpriced)

	require.Len(t, summary.Positions, 1)
	eth := summary.Positions[0]
	assert.Equal(t, "ETHUSDT", eth.Symbol)
	assert.True(t, eth.PriceAvailable)
	assertDec(t, "1000", eth.AveragePrice, "eth average")
	assertDec(t, "1000", eth.UnrealizedProfitLoss, "eth unrealized")

	require.Len(t, summary.ClosedPositions, 1)
	assertDec(t, "49.65", summary.ClosedPositions[0].RealizedProfitLossPercentage.Decimal, "percentage")

	stored, err := f.closed.GetByPortfolio(context.Background(), pid)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assertDec(t, "1001", stored[0].TotalInvested, "stored invested")
	assertDec(t, "1498", stored[0].TotalReceived, "stored received")

	p, err := f.repo.GetByID(context.Background(), pid)
	require.NoError(t, err)
	assertDec(t, "2000", p.TotalInvested, "persisted invested")
	assertDec(t, "3000", p.CurrentValue, "persisted value")
	assertDec(t, "1497", p.ProfitLoss, "persisted profit/loss")
	assertDec(t, "497", p.RealizedProfitLoss, "persisted realized")
	require.NotNil(t, p.RecomputedAt)
}

func TestRecompute_Idempotent(t *testing.T) {
	f := newFixture(t, testutil.StaticPriceOracle{"SOLUSDT": testutil.Dec("33.3333333333")})
	pid := f.portfolio(t)

	f.trade(t, pid, "SOLUSDT", domain.TradeSideBuy, "3", "20.123456789", "0.01", 0)
	f.trade(t, pid, "SOLUSDT", domain.TradeSideSell, "1.5", "25", "0.01", 5)
	f.trade(t, pid, "ADAUSDT", domain.TradeSideBuy, "100", "0.5", "0", 10)
	f.trade(t, pid, "ADAUSDT", domain.TradeSideSell, "100", "0.45", "0", 15)
	f.transfer(t, pid, "SOL", domain.TransferDeposit, "1", 20)

	first, err := f.service.Recompute(context.Background(), pid)
	require.NoError(t, err)
	storedFirst, err := f.closed.GetByPortfolio(context.Background(), pid)
	require.NoError(t, err)

	second, err := f.service.Recompute(context.Background(), pid)
	require.NoError(t, err)
	storedSecond, err := f.closed.GetByPortfolio(context.Background(), pid)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Equal(t, len(storedFirst), len(storedSecond))
	for i := range storedFirst {
		// Row ids change on delete-then-insert; every stored value must not.
		storedFirst[i].ID, storedSecond[i].ID = 0, 0
		assert.Equal(t, storedFirst[i], storedSecond[i])
	}
}

func TestRecompute_Conservation(t *testing.T) {
	f := newFixture(t, testutil.StaticPriceOracle{
		"BTCUSDT": testutil.Dec("61234.56789"),
		"ETHUSDT": testutil.Dec("2999.99"),
	})
	pid := f.portfolio(t)

	f.trade(t, pid, "BTCUSDT", domain.TradeSideBuy, "0.3", "45000.17", "1.3", 0)
	f.trade(t, pid, "BTCUSDT", domain.TradeSideSell, "0.1", "50000", "0.7", 1)
	f.trade(t, pid, "ETHUSDT", domain.TradeSideBuy, "1.7", "1800", "0.9", 2)
	f.trade(t, pid, "ETHUSDT", domain.TradeSideSell, "1.7", "1700", "0.9", 3)
	f.trade(t, pid, "ETHUSDT", domain.TradeSideBuy, "0.25", "2100", "0.1", 4)
	f.trade(t, pid, "XRPUSDT", domain.TradeSideBuy, "1000", "0.3333333", "0.05", 5)
	f.trade(t, pid, "XRPUSDT", domain.TradeSideSell, "1000", "0.61", "0.05", 6)
	f.transfer(t, pid, "BTC", domain.TransferDeposit, "0.05", 7)
	f.transfer(t, pid, "BTC", domain.TransferWithdrawal, "0.01", 8)

	summary, err := f.service.Recompute(context.Background(), pid)
	require.NoError(t, err)

	stored, err := f.closed.GetByPortfolio(context.Background(), pid)
	require.NoError(t, err)

	storedRealized := decimal.Zero
	for _, c := range stored {
		storedRealized = storedRealized.Add(c.RealizedProfitLoss)
	}

	assert.True(t, summary.ProfitLoss.Equal(summary.UnrealizedProfitLoss.Add(storedRealized)),
		"profit/loss %s != unrealized %s + realized %s", summary.ProfitLoss, summary.UnrealizedProfitLoss, storedRealized)
	assert.True(t, summary.RealizedProfitLoss.Equal(storedRealized))
	assert.True(t, summary.UnrealizedProfitLoss.Equal(summary.CurrentValue.Sub(summary.TotalInvested)))
}

func TestRecompute_PriceFallbackToAverageCost(t *testing.T) {
	oracle := new(testutil.MockPriceOracle)
	oracle.On("GetPrices", mock.Anything, []string{"BTCUSDT", "DOGEUSDT"}).
		Return(map[string]decimal.Decimal{"BTCUSDT": testutil.Dec("200")}, errors.New("DOGEUSDT: timeout")).
		Once()

	f := newFixture(t, oracle)
	pid := f.portfolio(t)

	var unavailable *events.Event
	f.bus.Subscribe(events.PriceUnavailable, func(e *events.Event) { unavailable = e })

	f.trade(t, pid, "BTCUSDT", domain.TradeSideBuy, "1", "100", "0", 0)
	f.trade(t, pid, "DOGEUSDT", domain.TradeSideBuy, "1000", "0.1", "0", 1)

	summary, err := f.service.Recompute(context.Background(), pid)
	require.NoError(t, err)
	oracle.AssertExpectations(t)

	assert.Equal(t, []string{"DOGEUSDT"}, summary.Unpriced)
	assertDec(t, "200", summary.TotalInvested, "invested")
	assertDec(t, "300", summary.CurrentValue, "value with doge at cost")
	assertDec(t, "100", summary.ProfitLoss, "profit/loss")

	var doge OpenPosition
	for _, p := range summary.Positions {
		if p.Symbol == "DOGEUSDT" {
			doge = p
		}
	}
	assert.False(t, doge.PriceAvailable)
	assertDec(t, "0.1", doge.Price, "doge fallback price")
	assertDec(t, "0", doge.UnrealizedProfitLoss, "doge unrealized")

	var codes []ledger.WarningCode
	for _, w := range summary.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, ledger.WarningPriceUnavailable)

	require.NotNil(t, unavailable)
	assert.Equal(t, pid, unavailable.Data["portfolio_id"])
}

func TestRecompute_TransfersAndQuoteAsset(t *testing.T) {
	oracle := new(testutil.MockPriceOracle)
	oracle.On("GetPrices", mock.Anything, []string{"BTCUSDT"}).
		Return(map[string]decimal.Decimal{"BTCUSDT": testutil.Dec("50000")}, nil)

	f := newFixture(t, oracle)
	pid := f.portfolio(t)

	f.transfer(t, pid, "BTC", domain.TransferDeposit, "0.1", 0)
	f.transfer(t, pid, "USDT", domain.TransferDeposit, "250", 1)

	summary, err := f.service.Recompute(context.Background(), pid)
	require.NoError(t, err)
	oracle.AssertExpectations(t)

	require.Len(t, summary.Positions, 2)
	btc, usdt := summary.Positions[0], summary.Positions[1]
	assert.Equal(t, "BTC", btc.Symbol)
	assert.Equal(t, "BTCUSDT", btc.PriceSymbol)
	assertDec(t, "5000", btc.MarketValue, "btc value")
	assert.Equal(t, "USDT", usdt.Symbol)
	assertDec(t, "1", usdt.Price, "quote asset price")
	assertDec(t, "250", usdt.MarketValue, "usdt value")

	// Deposits without known cost carry no invested amount
	assertDec(t, "0", summary.TotalInvested, "invested")
	assertDec(t, "5250", summary.ProfitLoss, "profit/loss")
}

func TestRecompute_ZeroCostDepositDisposal(t *testing.T) {
	f := newFixture(t, testutil.StaticPriceOracle{})
	pid := f.portfolio(t)

	f.transfer(t, pid, "SOL", domain.TransferDeposit, "5", 0)
	// Sells of an asset key land in the same ledger as its deposits
	f.trade(t, pid, "SOL", domain.TradeSideSell, "5", "200", "0", 1)

	summary, err := f.service.Recompute(context.Background(), pid)
	require.NoError(t, err)

	require.Len(t, summary.ClosedPositions, 1)
	assert.False(t, summary.ClosedPositions[0].RealizedProfitLossPercentage.Valid)
	assertDec(t, "1000", summary.RealizedProfitLoss, "realized")

	stored, err := f.closed.GetByPortfolio(context.Background(), pid)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].RealizedProfitLossPercentage.Valid)
}

func TestRecompute_PrunesClosuresThatNoLongerExist(t *testing.T) {
	f := newFixture(t, testutil.StaticPriceOracle{"BTCUSDT": testutil.Dec("100")})
	pid := f.portfolio(t)
	ctx := context.Background()

	f.trade(t, pid, "BTCUSDT", domain.TradeSideBuy, "1", "100", "0", 0)
	sell := f.trade(t, pid, "BTCUSDT", domain.TradeSideSell, "1", "120", "0", 1)

	_, err := f.service.Recompute(ctx, pid)
	require.NoError(t, err)
	stored, err := f.closed.GetByPortfolio(ctx, pid)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	require.NoError(t, f.trades.Delete(ctx, pid, sell.ID))

	summary, err := f.service.Recompute(ctx, pid)
	require.NoError(t, err)
	assert.Empty(t, summary.ClosedPositions)
	assertDec(t, "0", summary.RealizedProfitLoss, "realized")

	stored, err = f.closed.GetByPortfolio(ctx, pid)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRecompute_EmptyPortfolio(t *testing.T) {
	oracle := new(testutil.MockPriceOracle)
	f := newFixture(t, oracle)
	pid := f.portfolio(t)

	summary, err := f.service.Recompute(context.Background(), pid)
	require.NoError(t, err)

	assert.True(t, summary.CurrentValue.IsZero())
	assert.True(t, summary.ProfitLoss.IsZero())
	assert.NotNil(t, summary.Positions)
	oracle.AssertNotCalled(t, "GetPrices", mock.Anything, mock.Anything)
}

func TestRecompute_PortfolioNotFound(t *testing.T) {
	f := newFixture(t, testutil.StaticPriceOracle{})

	_, err := f.service.Recompute(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

func TestRecompute_EmitsEvent(t *testing.T) {
	f := newFixture(t, testutil.StaticPriceOracle{"BTCUSDT": testutil.Dec("150")})
	pid := f.portfolio(t)
	f.trade(t, pid, "BTCUSDT", domain.TradeSideBuy, "2", "100", "0", 0)

	var got *events.Event
	f.bus.Subscribe(events.PortfolioRecomputed, func(e *events.Event) { got = e })

	_, err := f.service.Recompute(context.Background(), pid)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, pid, got.Data["portfolio_id"])
	assert.Equal(t, "300", got.Data["current_value"])
	assert.Equal(t, float64(1), got.Data["open_positions"])
}

func TestRecompute_ConcurrentCallsSerialize(t *testing.T) {
	f := newFixture(t, testutil.StaticPriceOracle{"BTCUSDT": testutil.Dec("150")})
	pid := f.portfolio(t)
	f.trade(t, pid, "BTCUSDT", domain.TradeSideBuy, "2", "100", "0", 0)
	f.trade(t, pid, "BTCUSDT", domain.TradeSideSell, "2", "110", "0", 1)
	f.trade(t, pid, "BTCUSDT", domain.TradeSideBuy, "1", "100", "0", 2)

	var wg sync.WaitGroup
	summaries := make([]Summary, 8)
	errs := make([]error, 8)
	for i := range summaries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i], errs[i] = f.service.Recompute(context.Background(), pid)
		}(i)
	}
	wg.Wait()

	for i := range summaries {
		require.NoError(t, errs[i])
		assert.Equal(t, summaries[0], summaries[i])
	}

	stored, err := f.closed.GetByPortfolio(context.Background(), pid)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, 0, f.service.locks.Len())
}

func TestCreate_DefaultsQuote(t *testing.T) {
	f := newFixture(t, testutil.StaticPriceOracle{})

	p, err := f.service.Create(context.Background(), "spot", "")
	require.NoError(t, err)
	assert.Equal(t, "USDT", p.QuoteAsset)

	p, err = f.service.Create(context.Background(), "euro", "eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.QuoteAsset)

	_, err = f.service.Create(context.Background(), " ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	list, err := f.service.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
