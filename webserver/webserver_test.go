package webserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctcbalance/accounts"
	"ctcbalance/ctcclient"
	"ctcbalance/storage"
)

func testServer(t *testing.T) (*WebServer, *storage.Storage) {
	t.Helper()

	s, err := storage.InitStorage(t.TempDir(), "mainnet")
	require.NoError(t, err)
	t.Cleanup(s.Close)

	status := &ctcclient.ChainStatus{URL: "ws://node"}
	status.SetHead(1234)

	ws := New(Args{
		Store:    s,
		Accounts: []accounts.TrackedAccount{{Name: "alice", Address: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"}},
		Status:   status,
		BindAddr: DEFAULT_BIND_ADDR,
		BindPort: DEFAULT_BIND_PORT,
	})

	return ws, s
}

func get(t *testing.T, ws *WebServer, path string, out interface{}) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}

	return rec.Code
}

func TestHealth(t *testing.T) {

	ws, s := testServer(t)

	var body map[string]interface{}
	require.Equal(t, http.StatusOK, get(t, ws, "/api/health", &body))
	assert.Equal(t, true, body["ok"])
	assert.Nil(t, body["lastRun"])

	chain := body["chain"].(map[string]interface{})
	assert.Equal(t, float64(1234), chain["head"])

	_, err := s.RecordRun(storage.RunSummary{Accounts: 1, Dates: 2})
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, get(t, ws, "/api/health", &body))
	run := body["lastRun"].(map[string]interface{})
	assert.Equal(t, float64(2), run["dates"])
}

func TestAccounts(t *testing.T) {

	ws, _ := testServer(t)

	var body struct {
		Accounts []accounts.TrackedAccount `json:"accounts"`
	}
	require.Equal(t, http.StatusOK, get(t, ws, "/api/accounts", &body))
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "alice", body.Accounts[0].Name)
}

func TestBalancesDateFilter(t *testing.T) {

	ws, s := testServer(t)

	for _, d := range []string{"2024-09-01", "2024-09-02", "2024-09-03"} {
		require.NoError(t, s.SaveBalances(d, map[string]decimal.Decimal{"alice": decimal.NewFromInt(10)}))
	}

	var body struct {
		Dates    []string                     `json:"dates"`
		Balances map[string]map[string]string `json:"balances"`
	}
	require.Equal(t, http.StatusOK, get(t, ws, "/api/balances?from=2024-09-02", &body))
	assert.Equal(t, []string{"2024-09-02", "2024-09-03"}, body.Dates)
	assert.Equal(t, "10", body.Balances["2024-09-03"]["alice"])

	assert.Equal(t, http.StatusBadRequest, get(t, ws, "/api/balances?to=yesterday", nil))
}

func TestRewards(t *testing.T) {

	ws, s := testServer(t)

	require.NoError(t, s.SaveRewards("2024-09-01", "era", map[string]decimal.Decimal{"alice": decimal.RequireFromString("1.5")}))
	require.NoError(t, s.SaveRewards("2024-09-02", "scan", map[string]decimal.Decimal{"alice": decimal.RequireFromString("0.25")}))

	var all struct {
		Dates   []string          `json:"dates"`
		Methods map[string]string `json:"methods"`
	}
	require.Equal(t, http.StatusOK, get(t, ws, "/api/rewards", &all))
	assert.Equal(t, []string{"2024-09-01", "2024-09-02"}, all.Dates)
	assert.Equal(t, "scan", all.Methods["2024-09-02"])

	var one struct {
		Account string            `json:"account"`
		Rewards map[string]string `json:"rewards"`
		Total   string            `json:"total"`
	}
	require.Equal(t, http.StatusOK, get(t, ws, "/api/rewards/alice", &one))
	assert.Equal(t, "alice", one.Account)
	assert.Len(t, one.Rewards, 2)
	assert.Equal(t, "1.75", one.Total)

	assert.Equal(t, http.StatusNotFound, get(t, ws, "/api/rewards/mallory", nil))
}

func TestMetricsEndpoint(t *testing.T) {

	ws, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
