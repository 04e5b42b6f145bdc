package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/events"
	testutil "github.com/aristath/holdings/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock Trade Repository for testing

type mockTradeRepository struct {
	trades      []domain.Trade
	createErr   error
	replaceErr  error
	duplicates  map[string]bool
	createCalls int
	replaced    []domain.Trade
}

func newMockTradeRepository() *mockTradeRepository {
	return &mockTradeRepository{
		trades:     make([]domain.Trade, 0),
		duplicates: make(map[string]bool),
	}
}

func (m *mockTradeRepository) Create(_ context.Context, trade domain.Trade) (domain.Trade, bool, error) {
	m.createCalls++
	if m.createErr != nil {
		return domain.Trade{}, false, m.createErr
	}
	if trade.ExternalID != "" && m.duplicates[trade.ExternalID] {
		return trade, false, nil
	}
	trade.ID = int64(len(m.trades) + 1)
	m.trades = append(m.trades, trade)
	if trade.ExternalID != "" {
		m.duplicates[trade.ExternalID] = true
	}
	return trade, true, nil
}

func (m *mockTradeRepository) GetByPortfolio(_ context.Context, portfolioID string) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, tr := range m.trades {
		if tr.PortfolioID == portfolioID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (m *mockTradeRepository) Delete(_ context.Context, _ string, id int64) error {
	for i, tr := range m.trades {
		if tr.ID == id {
			m.trades = append(m.trades[:i], m.trades[i+1:]...)
			return nil
		}
	}
	return domain.ErrTradeNotFound
}

func (m *mockTradeRepository) ReplaceBySource(_ context.Context, _ string, _ domain.Source, trades []domain.Trade) (int64, error) {
	if m.replaceErr != nil {
		return 0, m.replaceErr
	}
	removed := int64(len(m.replaced))
	m.replaced = trades
	return removed, nil
}

type stubPortfolios map[string]bool

func (s stubPortfolios) GetByID(_ context.Context, id string) (*domain.Portfolio, error) {
	if !s[id] {
		return nil, domain.ErrPortfolioNotFound
	}
	return &domain.Portfolio{ID: id, Name: id, QuoteAsset: "USDT"}, nil
}

func newTestService(repo TradeRepositoryInterface) (*TradingService, *events.Bus) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	bus := events.NewBus(log)
	return NewTradingService(repo, stubPortfolios{"p1": true}, events.NewManager(bus, log), log), bus
}

func TestRecordTrade_EmitsEvent(t *testing.T) {
	repo := newMockTradeRepository()
	service, bus := newTestService(repo)

	var got []*events.Event
	bus.Subscribe(events.TradeRecorded, func(e *events.Event) { got = append(got, e) })

	trade := testutil.NewTrade("p1", "BTCUSDT", domain.TradeSideBuy, "1", "100", "0", 0)
	trade.Source = ""
	stored, created, err := service.RecordTrade(context.Background(), trade)

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.SourceManual, stored.Source, "source defaults to manual")
	require.Len(t, got, 1)
	assert.Equal(t, "BTCUSDT", got[0].Data["symbol"])
	assert.Equal(t, "p1", got[0].Data["portfolio_id"])
}

func TestRecordTrade_DuplicateIsReported(t *testing.T) {
	repo := newMockTradeRepository()
	service, bus := newTestService(repo)

	var got []*events.Event
	bus.Subscribe(events.TradeRecorded, func(e *events.Event) { got = append(got, e) })

	trade := testutil.NewTrade("p1", "BTCUSDT", domain.TradeSideBuy, "1", "100", "0", 0)
	trade.ExternalID = "x-1"

	_, created, err := service.RecordTrade(context.Background(), trade)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = service.RecordTrade(context.Background(), trade)
	require.NoError(t, err)
	assert.False(t, created)

	require.Len(t, got, 2)
	assert.Equal(t, true, got[1].Data["duplicate"])
	assert.Len(t, repo.trades, 1)
}

func TestRecordTrade_UnknownPortfolio(t *testing.T) {
	repo := newMockTradeRepository()
	service, _ := newTestService(repo)

	_, _, err := service.RecordTrade(context.Background(), testutil.NewTrade("nope", "BTCUSDT", domain.TradeSideBuy, "1", "1", "0", 0))

	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
	assert.Equal(t, 0, repo.createCalls)
}

func TestRecordTrade_RejectsSnapshotSource(t *testing.T) {
	repo := newMockTradeRepository()
	service, _ := newTestService(repo)

	trade := testutil.NewTrade("p1", "BTCUSDT", domain.TradeSideBuy, "1", "1", "0", 0)
	trade.Source = domain.SourceHoldingSnapshot

	_, _, err := service.RecordTrade(context.Background(), trade)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, repo.createCalls)
}

func TestRecordTrade_RepositoryError(t *testing.T) {
	repo := newMockTradeRepository()
	repo.createErr = errors.New("database locked")
	service, bus := newTestService(repo)

	emitted := 0
	bus.Subscribe(events.TradeRecorded, func(*events.Event) { emitted++ })

	_, _, err := service.RecordTrade(context.Background(), testutil.NewTrade("p1", "BTCUSDT", domain.TradeSideBuy, "1", "1", "0", 0))
	assert.Error(t, err)
	assert.Equal(t, 0, emitted)
}

func TestDeleteTrade(t *testing.T) {
	repo := newMockTradeRepository()
	service, bus := newTestService(repo)

	deleted := 0
	bus.Subscribe(events.TradeDeleted, func(*events.Event) { deleted++ })

	stored, _, err := service.RecordTrade(context.Background(), testutil.NewTrade("p1", "BTCUSDT", domain.TradeSideBuy, "1", "1", "0", 0))
	require.NoError(t, err)

	require.NoError(t, service.DeleteTrade(context.Background(), "p1", stored.ID))
	assert.ErrorIs(t, service.DeleteTrade(context.Background(), "p1", stored.ID), domain.ErrTradeNotFound)
	assert.Equal(t, 1, deleted)
}

func TestResyncHoldings_BuildsSyntheticBuys(t *testing.T) {
	repo := newMockTradeRepository()
	service, bus := newTestService(repo)

	var got *events.Event
	bus.Subscribe(events.HoldingsResynced, func(e *events.Event) { got = e })

	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	result, err := service.ResyncHoldings(context.Background(), "p1", []domain.HoldingSnapshot{
		{Symbol: "BTCUSDT", Quantity: testutil.Dec("0.5"), Price: testutil.Dec("60000"), AsOf: asOf},
		{Symbol: "DOGEUSDT", Quantity: testutil.Dec("0"), Price: testutil.Dec("0.1"), AsOf: asOf},
		{Symbol: "ETHUSDT", Quantity: testutil.Dec("2"), Price: testutil.Dec("3000")},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	require.Len(t, repo.replaced, 2)

	btc := repo.replaced[0]
	assert.Equal(t, domain.TradeSideBuy, btc.Side)
	assert.Equal(t, domain.SourceHoldingSnapshot, btc.Source)
	assert.Equal(t, asOf, btc.ExecutedAt)
	assert.False(t, repo.replaced[1].ExecutedAt.IsZero(), "missing as-of defaults to now")

	require.NotNil(t, got)
	assert.Equal(t, float64(2), got.Data["inserted"])
}

func TestResyncHoldings_Errors(t *testing.T) {
	repo := newMockTradeRepository()
	service, _ := newTestService(repo)

	_, err := service.ResyncHoldings(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)

	repo.replaceErr = errors.New("constraint failed")
	_, err = service.ResyncHoldings(context.Background(), "p1", nil)
	assert.ErrorContains(t, err, "failed to resync holdings")
}
