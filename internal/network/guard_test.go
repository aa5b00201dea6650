// internal/network/guard_test.go
package network

import (
	"context"
	"encoding/json"
	"testing"

	"herdvest-agent/internal/config"
	"herdvest-agent/internal/provider"
	"herdvest-agent/internal/provider/providertest"
	"herdvest-agent/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChain = config.ChainDescriptor{
	ChainID:          1043,
	Name:             "Primordial BlockDAG Testnet",
	CurrencySymbol:   "BDAG",
	CurrencyDecimals: 18,
	RPCURL:           "https://rpc.primordial.example",
	ExplorerURL:      "https://explorer.primordial.example",
}

func TestIsCorrectNetwork(t *testing.T) {
	guard := NewGuard(providertest.NewFake(), testChain, util.GetLogger())

	assert.True(t, guard.IsCorrectNetwork(1043))
	assert.False(t, guard.IsCorrectNetwork(1))
	assert.False(t, guard.IsCorrectNetwork(0))
}

func TestSwitchNetworkSuccess(t *testing.T) {
	fake := providertest.NewFake()
	fake.HandleResult("wallet_switchEthereumChain", `null`)
	guard := NewGuard(fake, testChain, util.GetLogger())

	require.NoError(t, guard.SwitchNetwork(context.Background()))
	assert.Equal(t, 1, fake.Calls("wallet_switchEthereumChain"))
	assert.Equal(t, 0, fake.Calls("wallet_addEthereumChain"))
}

func TestSwitchNetworkAddsUnknownChain(t *testing.T) {
	fake := providertest.NewFake()
	added := false
	fake.Handle("wallet_switchEthereumChain", func(any) (json.RawMessage, error) {
		if !added {
			return nil, &provider.RPCError{Code: provider.CodeUnrecognizedChain, Message: "Unrecognized chain ID."}
		}
		return json.RawMessage(`null`), nil
	})
	fake.Handle("wallet_addEthereumChain", func(params any) (json.RawMessage, error) {
		added = true
		// The add request must carry the full descriptor.
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"0x413"`)
		assert.Contains(t, string(raw), testChain.Name)
		assert.Contains(t, string(raw), testChain.RPCURL)
		assert.Contains(t, string(raw), testChain.ExplorerURL)
		return json.RawMessage(`null`), nil
	})
	guard := NewGuard(fake, testChain, util.GetLogger())

	require.NoError(t, guard.SwitchNetwork(context.Background()))
	assert.Equal(t, 2, fake.Calls("wallet_switchEthereumChain"))
	assert.Equal(t, 1, fake.Calls("wallet_addEthereumChain"))
}

func TestSwitchNetworkUserRejected(t *testing.T) {
	fake := providertest.NewFake()
	fake.HandleError("wallet_switchEthereumChain", provider.CodeUserRejected, "User rejected the request.")
	guard := NewGuard(fake, testChain, util.GetLogger())

	err := guard.SwitchNetwork(context.Background())
	assert.ErrorIs(t, err, util.ErrUserRejected)
	// Never auto-retried.
	assert.Equal(t, 1, fake.Calls("wallet_switchEthereumChain"))
}

func TestSwitchNetworkUnsupportedWallet(t *testing.T) {
	fake := providertest.NewFake()
	fake.HandleError("wallet_switchEthereumChain", provider.CodeUnsupportedMethod, "Method not supported.")
	guard := NewGuard(fake, testChain, util.GetLogger())

	err := guard.SwitchNetwork(context.Background())
	assert.ErrorIs(t, err, util.ErrUnsupportedWallet)
}

func TestSwitchNetworkAddDeclined(t *testing.T) {
	fake := providertest.NewFake()
	fake.HandleError("wallet_switchEthereumChain", provider.CodeUnrecognizedChain, "Unrecognized chain ID.")
	fake.HandleError("wallet_addEthereumChain", provider.CodeUserRejected, "User rejected the request.")
	guard := NewGuard(fake, testChain, util.GetLogger())

	err := guard.SwitchNetwork(context.Background())
	assert.ErrorIs(t, err, util.ErrUserRejected)
}
