// internal/api/api_integration_test.go
package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herdvest-agent/internal/api"
	"herdvest-agent/internal/api/handler"
	"herdvest-agent/internal/config"
	"herdvest-agent/internal/executor"
	"herdvest-agent/internal/network"
	"herdvest-agent/internal/provider/providertest"
	"herdvest-agent/internal/service"
	"herdvest-agent/internal/store"
	"herdvest-agent/internal/util"
	"herdvest-agent/internal/wallet"
	"herdvest-agent/pkg/kv"
)

const testAccount = "0xFa3m3r0000000000000000000000000000000001"

type testEnv struct {
	server  *httptest.Server
	fake    *providertest.Fake
	records store.RecordStore
}

// newTestEnv wires the full component stack behind the surface router,
// with the wallet provider scripted.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := providertest.NewFake()
	fake.HandleResult("eth_requestAccounts", `["`+testAccount+`"]`)
	fake.HandleResult("eth_chainId", `"0x413"`)
	fake.HandleResult("eth_getTransactionReceipt", `{"status":"0x1"}`)
	fake.HandleResult("wallet_watchAsset", `true`)

	kvStore, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })

	logger := util.GetLogger()
	chain := config.ChainDescriptor{ChainID: 1043, Name: "Primordial BlockDAG Testnet", CurrencySymbol: "BDAG", CurrencyDecimals: 18}
	session := wallet.NewSession(fake, time.Hour, logger)
	guard := network.NewGuard(fake, chain, logger)
	exec := executor.NewExecutor(fake, 10*time.Millisecond, logger)
	t.Cleanup(exec.Close)
	records := store.NewRecordStore(kvStore, time.Hour, logger)
	ledger := service.NewLedger(fake, "0xC0n7rac7000000000000000000000000000000aa")
	svc := service.NewContractService(session, guard, exec, records, ledger,
		service.NewRoleView(ledger, logger), "HVST", logger)

	server := httptest.NewServer(api.NewRouter(handler.NewHandler(svc, records, session, guard, logger), logger))
	t.Cleanup(server.Close)
	return &testEnv{server: server, fake: fake, records: records}
}

func (e *testEnv) makeRequest(t *testing.T, method, path string, body io.Reader) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, string(respBody)
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	resp, body := e.makeRequest(t, "POST", "/session/connect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
}

func (e *testEnv) seedListing(t *testing.T, shares int64, price string) int64 {
	t.Helper()
	listing, err := e.records.CreateAsset(context.Background(), store.AssetDraft{
		Owner:         testAccount,
		Category:      "CATTLE",
		LivestockType: "Angus",
		TotalShares:   shares,
		PricePerShare: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return listing.ID
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.makeRequest(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.makeRequest(t, "GET", "/session", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"connected":false`)

	env.connect(t)

	resp, body = env.makeRequest(t, "GET", "/session", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"connected":true`)
	assert.Contains(t, body, testAccount)
	assert.Contains(t, body, `"chain_id":1043`)

	resp, body = env.makeRequest(t, "POST", "/session/disconnect", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"connected":false`)
}

func TestListingsEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.fake.HandleResult("eth_sendTransaction", `"0xaaa1"`)
	env.fake.HandleResult("eth_call", `"0x1"`)

	t.Run("Create", func(t *testing.T) {
		requestBody := `{"category":"CATTLE","livestock_type":"Angus","total_shares":100,"price_per_share":"25.5","details":{"health_status":"Vaccinated","age_months":18}}`
		resp, body := env.makeRequest(t, "POST", "/listings", strings.NewReader(requestBody))
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Contains(t, body, `"tx_ref":"0xaaa1"`)
		assert.Contains(t, body, `"available_shares":100`)
	})

	t.Run("List", func(t *testing.T) {
		resp, body := env.makeRequest(t, "GET", "/listings?owner="+testAccount, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"category":"CATTLE"`)

		resp, body = env.makeRequest(t, "GET", "/listings?owner=0x0000000000000000000000000000000000000000", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"data":[]`)
	})

	t.Run("InvalidShares", func(t *testing.T) {
		requestBody := `{"category":"CATTLE","total_shares":0,"price_per_share":"25.5"}`
		resp, body := env.makeRequest(t, "POST", "/listings", strings.NewReader(requestBody))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, util.ErrInvalidShares.Error())
	})

	t.Run("StatusUpdate", func(t *testing.T) {
		id := env.seedListing(t, 10, "5")
		resp, body := env.makeRequest(t, "PUT", fmt.Sprintf("/listings/%d/status", id), strings.NewReader(`{"status":"VERIFIED"}`))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"is_verified":true`)

		resp, _ = env.makeRequest(t, "PUT", "/listings/99999/status", strings.NewReader(`{"status":"VERIFIED"}`))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("AdjustShares", func(t *testing.T) {
		id := env.seedListing(t, 10, "5")
		resp, _ := env.makeRequest(t, "PUT", fmt.Sprintf("/listings/%d/shares", id), strings.NewReader(`{"available_shares":4}`))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := env.makeRequest(t, "PUT", fmt.Sprintf("/listings/%d/shares", id), strings.NewReader(`{"available_shares":11}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, util.ErrInvalidInput.Error())
	})

	t.Run("Deactivate", func(t *testing.T) {
		id := env.seedListing(t, 10, "5")
		resp, _ := env.makeRequest(t, "DELETE", fmt.Sprintf("/listings/%d", id), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := env.makeRequest(t, "GET", fmt.Sprintf("/listings?active=true&owner=%s", testAccount), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotContains(t, body, fmt.Sprintf(`"id":%d`, id))
	})
}

func TestInvestmentsEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.fake.HandleResult("eth_sendTransaction", `"0xbbb1"`)
	listingID := env.seedListing(t, 100, "10")

	t.Run("Invest", func(t *testing.T) {
		requestBody := fmt.Sprintf(`{"listing_id":%d,"shares":30}`, listingID)
		resp, body := env.makeRequest(t, "POST", "/investments", strings.NewReader(requestBody))
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Contains(t, body, `"tx_ref":"0xbbb1"`)
		assert.Contains(t, body, `"shares":30`)
	})

	t.Run("Oversold", func(t *testing.T) {
		requestBody := fmt.Sprintf(`{"listing_id":%d,"shares":71}`, listingID)
		resp, body := env.makeRequest(t, "POST", "/investments", strings.NewReader(requestBody))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Contains(t, body, util.ErrOversold.Error())
	})

	t.Run("ListByInvestor", func(t *testing.T) {
		resp, body := env.makeRequest(t, "GET", "/investments?investor="+testAccount, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, fmt.Sprintf(`"listing_id":%d`, listingID))
	})

	t.Run("Withdraw", func(t *testing.T) {
		investments, err := env.records.ListInvestments(context.Background(), store.InvestmentFilter{Investor: testAccount})
		require.NoError(t, err)
		require.NotEmpty(t, investments)

		requestBody := `{"shares":10}`
		resp, _ := env.makeRequest(t, "POST", fmt.Sprintf("/investments/%d/withdraw", investments[0].ID), strings.NewReader(requestBody))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := env.makeRequest(t, "GET", fmt.Sprintf("/listings?owner=%s", testAccount), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"available_shares":80`)
	})
}

func TestOperationsRequireConnection(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.makeRequest(t, "POST", "/listings", strings.NewReader(`{"category":"CATTLE","total_shares":10,"price_per_share":"5"}`))
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.Contains(t, body, util.ErrNotConnected.Error())

	resp, _ = env.makeRequest(t, "GET", "/roles", nil)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	resp, _ = env.makeRequest(t, "POST", "/funds/claim", nil)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestRolesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.fake.HandleResult("eth_call", `true`)

	resp, body := env.makeRequest(t, "GET", "/roles", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"farmer":true`)
	assert.Contains(t, body, `"degraded":false`)

	resp, body = env.makeRequest(t, "POST", "/roles/request", strings.NewReader(`{"role":"ADMIN_ROLE"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, util.ErrInvalidInput.Error())
}

func TestNetworkSwitch(t *testing.T) {
	env := newTestEnv(t)
	env.fake.HandleResult("wallet_switchEthereumChain", `null`)

	resp, _ := env.makeRequest(t, "POST", "/network/switch", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.fake.Calls("wallet_switchEthereumChain"))
}

func TestStreamPushesRecordChanges(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	type frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	readFrame := func() frame {
		var f frame
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	// Initial priming: one records frame, one session frame.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[readFrame().Type] = true
	}
	assert.True(t, seen["records"])
	assert.True(t, seen["session"])

	// Any record mutation pushes a fresh snapshot.
	env.seedListing(t, 10, "5")
	f := readFrame()
	assert.Equal(t, "records", f.Type)
	assert.Contains(t, string(f.Data), `"category":"CATTLE"`)
}
