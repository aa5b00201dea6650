// internal/provider/client_test.go
package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"herdvest-agent/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler func(req rpcRequest) rpcResponse) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := handler(req)
		resp.ID = req.ID
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "", util.GetLogger())
}

func TestRequestSuccess(t *testing.T) {
	client := newTestProvider(t, func(req rpcRequest) rpcResponse {
		assert.Equal(t, "eth_chainId", req.Method)
		return rpcResponse{Result: json.RawMessage(`"0x413"`)}
	})

	raw, err := client.Request(context.Background(), "eth_chainId", nil)
	require.NoError(t, err)

	s, err := DecodeString(raw)
	require.NoError(t, err)
	assert.Equal(t, "0x413", s)
}

func TestRequestProviderErrorIsStructured(t *testing.T) {
	client := newTestProvider(t, func(req rpcRequest) rpcResponse {
		return rpcResponse{Error: &RPCError{Code: CodeUserRejected, Message: "User rejected the request."}}
	})

	_, err := client.Request(context.Background(), "eth_requestAccounts", nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUserRejected))
	assert.False(t, IsCode(err, CodeUnrecognizedChain))
	assert.Contains(t, err.Error(), "User rejected")
}

func TestRequestWithoutProviderURL(t *testing.T) {
	client := NewHTTPClient("", "", util.GetLogger())

	_, err := client.Request(context.Background(), "eth_accounts", nil)
	assert.ErrorIs(t, err, util.ErrNotInstalled)
	assert.False(t, client.Installed(context.Background()))
}

func TestRequestTransportFailure(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "", util.GetLogger())

	_, err := client.Request(context.Background(), "eth_accounts", nil)
	assert.ErrorIs(t, err, util.ErrNetworkFailure)
}

func TestInstalledProbe(t *testing.T) {
	client := newTestProvider(t, func(req rpcRequest) rpcResponse {
		return rpcResponse{Result: json.RawMessage(`"herdvest-test/1.0"`)}
	})
	assert.True(t, client.Installed(context.Background()))
}

func TestHexToInt64(t *testing.T) {
	v, err := HexToInt64("0x413")
	require.NoError(t, err)
	assert.Equal(t, int64(1043), v)

	v, err = HexToInt64("1043")
	require.NoError(t, err)
	assert.Equal(t, int64(1043), v)

	_, err = HexToInt64("0xzz")
	assert.Error(t, err)

	assert.Equal(t, "0x413", Int64ToHex(1043))
}
