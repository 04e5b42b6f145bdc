package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/modules/ledger"
	testutil "github.com/aristath/holdings/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	portfolios map[string]bool
	trades     []domain.Trade
	transfers  []domain.Transfer
	err        error
}

func (f *fakeHistory) GetByID(_ context.Context, id string) (*domain.Portfolio, error) {
	if !f.portfolios[id] {
		return nil, domain.ErrPortfolioNotFound
	}
	return &domain.Portfolio{ID: id}, nil
}

type tradeLoader struct{ *fakeHistory }

func (l tradeLoader) GetByPortfolio(context.Context, string) ([]domain.Trade, error) {
	return l.trades, l.err
}

type transferLoader struct{ *fakeHistory }

func (l transferLoader) GetByPortfolio(context.Context, string) ([]domain.Transfer, error) {
	return l.transfers, nil
}

func newRouter(h *fakeHistory) http.Handler {
	handler := NewHandler(h, tradeLoader{h}, transferLoader{h}, zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/portfolios/{id}", handler.RegisterRoutes)
	return r
}

func roundTripHistory() *fakeHistory {
	return &fakeHistory{
		portfolios: map[string]bool{"p1": true},
		trades: []domain.Trade{
			testutil.NewTrade("p1", "BTCUSDT", domain.TradeSideBuy, "1", "100", "0", 0),
			testutil.NewTrade("p1", "BTCUSDT", domain.TradeSideSell, "1", "150", "0", 10),
			testutil.NewTrade("p1", "ETHUSDT", domain.TradeSideBuy, "2", "50", "0", 5),
		},
		transfers: []domain.Transfer{
			testutil.NewTransfer("p1", "usdt", domain.TransferDeposit, "500", 0),
		},
	}
}

func TestHandleGetLedger_ReplaysEverySymbol(t *testing.T) {
	router := newRouter(roundTripHistory())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/p1/ledger", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var replays []SymbolReplay
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replays))
	require.Len(t, replays, 3)

	assert.Equal(t, "BTCUSDT", replays[0].Symbol)
	assert.Equal(t, "ETHUSDT", replays[1].Symbol)
	assert.Equal(t, "USDT", replays[2].Symbol)

	btc := replays[0]
	assert.Len(t, btc.Events, 2)
	assert.True(t, btc.Lot.Quantity.IsZero())
	require.Len(t, btc.Closed, 1)
	assert.Equal(t, "50", btc.Closed[0].RealizedProfitLoss.String())

	eth := replays[1]
	assert.Empty(t, eth.Closed)
	assert.Equal(t, "2", eth.Lot.Quantity.String())
	assert.Equal(t, ledger.EventBuy, eth.Events[0].Kind)
}

func TestHandleGetSymbolLedger(t *testing.T) {
	router := newRouter(roundTripHistory())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/p1/ledger/ethusdt", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var replay SymbolReplay
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replay))
	assert.Equal(t, "ETHUSDT", replay.Symbol)
	assert.Equal(t, "100", replay.Lot.CostBasis.String())

	// An open lot with nothing to report serializes empty arrays, not null
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.JSONEq(t, `[]`, string(raw["closed"]))
	assert.JSONEq(t, `[]`, string(raw["warnings"]))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/p1/ledger/SOLUSDT", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetLedger_Errors(t *testing.T) {
	h := roundTripHistory()
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/missing/ledger", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.err = errors.New("disk I/O error")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/p1/ledger", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk")
}
