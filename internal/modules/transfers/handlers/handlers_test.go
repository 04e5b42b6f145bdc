package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/holdings/internal/domain"
	"github.com/aristath/holdings/internal/modules/portfolio"
	testutil "github.com/aristath/holdings/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockTransferService struct {
	mock.Mock
}

func (m *mockTransferService) RecordTransfer(ctx context.Context, transfer domain.Transfer) (domain.Transfer, bool, error) {
	args := m.Called(ctx, transfer)
	return args.Get(0).(domain.Transfer), args.Bool(1), args.Error(2)
}

func (m *mockTransferService) ListTransfers(ctx context.Context, portfolioID string) ([]domain.Transfer, error) {
	args := m.Called(ctx, portfolioID)
	list, _ := args.Get(0).([]domain.Transfer)
	return list, args.Error(1)
}

func (m *mockTransferService) DeleteTransfer(ctx context.Context, portfolioID string, id int64) error {
	return m.Called(ctx, portfolioID, id).Error(0)
}

type countingRecomputer struct {
	calls int
}

func (c *countingRecomputer) Recompute(_ context.Context, id string) (portfolio.Summary, error) {
	c.calls++
	return portfolio.Summary{PortfolioID: id}, nil
}

func serve(service TransferService, recomputer Recomputer, method, path, body string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Route("/portfolios/{id}", NewHandler(service, recomputer, zerolog.Nop()).RegisterRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHandleRecord_DepositWithKnownCost(t *testing.T) {
	service := new(mockTransferService)
	service.On("RecordTransfer", mock.Anything, mock.MatchedBy(func(tr domain.Transfer) bool {
		return tr.PortfolioID == "p1" &&
			tr.Type == domain.TransferDeposit &&
			tr.KnownCostBasis != nil &&
			tr.KnownCostBasis.Equal(testutil.Dec("150")) &&
			!tr.ExecutedAt.IsZero()
	})).Return(domain.Transfer{ID: 4, PortfolioID: "p1"}, true, nil)

	recomputer := &countingRecomputer{}
	rec := serve(service, recomputer, http.MethodPost, "/portfolios/p1/transfers/",
		`{"type":"DEPOSIT","asset":"ETH","amount":"1","known_cost_basis":"150"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, recomputer.calls)
	assert.Contains(t, rec.Body.String(), `"portfolio_id":"p1"`)
	service.AssertExpectations(t)
}

func TestHandleRecord_Errors(t *testing.T) {
	service := new(mockTransferService)
	service.On("RecordTransfer", mock.Anything, mock.Anything).Return(domain.Transfer{}, false, domain.ErrInvalidInput)

	recomputer := &countingRecomputer{}
	rec := serve(service, recomputer, http.MethodPost, "/portfolios/p1/transfers/", `{"type":"SIDEWAYS"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, recomputer.calls)

	rec = serve(service, recomputer, http.MethodPost, "/portfolios/p1/transfers/", `[`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListAndDelete(t *testing.T) {
	service := new(mockTransferService)
	service.On("ListTransfers", mock.Anything, "p1").Return([]domain.Transfer{{ID: 1}}, nil)
	service.On("ListTransfers", mock.Anything, "nope").Return(nil, domain.ErrPortfolioNotFound)
	service.On("DeleteTransfer", mock.Anything, "p1", int64(1)).Return(nil)
	service.On("DeleteTransfer", mock.Anything, "p1", int64(2)).Return(domain.ErrTransferNotFound)

	rec := serve(service, nil, http.MethodGet, "/portfolios/p1/transfers/", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(service, nil, http.MethodGet, "/portfolios/nope/transfers/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(service, nil, http.MethodDelete, "/portfolios/p1/transfers/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":1`)

	rec = serve(service, nil, http.MethodDelete, "/portfolios/p1/transfers/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
