package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/holdings/internal/config"
	"github.com/aristath/holdings/internal/di"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	ticker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"3000"}]`))
	}))
	t.Cleanup(ticker.Close)

	cfg := &config.Config{
		DataDir:        t.TempDir(),
		Port:           8080,
		PreferredQuote: "USDT",
		LedgerWorkers:  2,
		Price: &config.PriceConfig{
			APIURL:         ticker.URL,
			RequestTimeout: time.Second,
			CacheTTL:       time.Second,
			PersistTTL:     time.Minute,
			RateLimit:      100,
			RateBurst:      10,
		},
	}

	container, jobs, err := di.Wire(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return New(Config{Log: zerolog.Nop(), Port: cfg.Port, DevMode: true, Container: container, Jobs: jobs}).Handler()
}

func call(t *testing.T, h http.Handler, method, path, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	var out map[string]json.RawMessage
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestServer_TradeFlow(t *testing.T) {
	h := newTestServer(t)

	status, created := call(t, h, http.MethodPost, "/api/portfolios", `{"name":"Spot"}`)
	require.Equal(t, http.StatusCreated, status)
	var id string
	require.NoError(t, json.Unmarshal(created["id"], &id))

	status, body := call(t, h, http.MethodPost, "/api/portfolios/"+id+"/trades",
		`{"symbol":"BTC","side":"BUY","quantity":"1","price":"2000","executed_at":"2024-01-15T09:30:00Z"}`)
	require.Equal(t, http.StatusCreated, status)

	var summary struct {
		TotalInvested string   `json:"total_invested"`
		CurrentValue  string   `json:"current_value"`
		ProfitLoss    string   `json:"profit_loss"`
		Unpriced      []string `json:"unpriced"`
	}
	require.NoError(t, json.Unmarshal(body["summary"], &summary))
	assert.Equal(t, "2000", summary.TotalInvested)
	assert.Equal(t, "3000", summary.CurrentValue)
	assert.Equal(t, "1000", summary.ProfitLoss)
	assert.Empty(t, summary.Unpriced)

	status, _ = call(t, h, http.MethodGet, "/api/portfolios/"+id, "")
	assert.Equal(t, http.StatusOK, status)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/portfolios/"+id+"/ledger", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var replays []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replays))
	require.Len(t, replays, 1)
	assert.Contains(t, string(replays[0]["events"]), `"BUY"`)

	status, _ = call(t, h, http.MethodGet, "/api/portfolios/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(t)

	status, body := call(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"healthy"`, string(body["status"]))
}

func TestServer_SystemRoutes(t *testing.T) {
	h := newTestServer(t)

	status, body := call(t, h, http.MethodGet, "/api/system/databases", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body["databases"]), "ledger")

	status, body = call(t, h, http.MethodGet, "/api/system/stats", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "uptime_seconds")

	status, body = call(t, h, http.MethodGet, "/api/system/backups", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `false`, string(body["enabled"]))

	status, _ = call(t, h, http.MethodPost, "/api/system/jobs/client_data_cleanup", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, h, http.MethodPost, "/api/system/jobs/check_wal_checkpoints", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, h, http.MethodPost, "/api/system/jobs/reboot", "")
	assert.Equal(t, http.StatusNotFound, status)
}
