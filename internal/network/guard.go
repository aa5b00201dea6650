// internal/network/guard.go
package network

import (
	"context"
	"fmt"
	"log/slog"

	"herdvest-agent/internal/config"
	"herdvest-agent/internal/provider"
	"herdvest-agent/internal/util"
)

// Guard compares the active network against the one required network and
// drives wallet-mediated switch/add-network requests. Switch failures are
// reported to the caller and never retried automatically.
type Guard struct {
	provider provider.Client
	chain    config.ChainDescriptor
	logger   *slog.Logger
}

// NewGuard creates a Guard for the required chain.
func NewGuard(p provider.Client, chain config.ChainDescriptor, logger *slog.Logger) *Guard {
	return &Guard{provider: p, chain: chain, logger: logger}
}

// IsCorrectNetwork reports whether chainID matches the required chain.
func (g *Guard) IsCorrectNetwork(chainID int64) bool {
	return chainID == g.chain.ChainID
}

// RequiredChain returns the required network descriptor.
func (g *Guard) RequiredChain() config.ChainDescriptor {
	return g.chain
}

type switchParams struct {
	ChainID string `json:"chainId"`
}

type addChainParams struct {
	ChainID        string         `json:"chainId"`
	ChainName      string         `json:"chainName"`
	NativeCurrency nativeCurrency `json:"nativeCurrency"`
	RPCURLs        []string       `json:"rpcUrls"`
	ExplorerURLs   []string       `json:"blockExplorerUrls"`
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// SwitchNetwork asks the wallet to switch to the required chain. If the
// wallet does not know the chain it falls back to an add-chain request
// carrying the full descriptor, then retries the switch once.
func (g *Guard) SwitchNetwork(ctx context.Context) error {
	err := g.requestSwitch(ctx)
	if err == nil {
		return nil
	}
	if !provider.IsCode(err, provider.CodeUnrecognizedChain) {
		return g.mapSwitchError(err)
	}

	g.logger.Info("chain unknown to wallet, requesting add", "chain_id", g.chain.ChainID)
	if _, err := g.provider.Request(ctx, "wallet_addEthereumChain", []addChainParams{{
		ChainID:   provider.Int64ToHex(g.chain.ChainID),
		ChainName: g.chain.Name,
		NativeCurrency: nativeCurrency{
			Name:     g.chain.CurrencySymbol,
			Symbol:   g.chain.CurrencySymbol,
			Decimals: g.chain.CurrencyDecimals,
		},
		RPCURLs:      []string{g.chain.RPCURL},
		ExplorerURLs: []string{g.chain.ExplorerURL},
	}}); err != nil {
		return g.mapSwitchError(err)
	}
	if err := g.requestSwitch(ctx); err != nil {
		return g.mapSwitchError(err)
	}
	return nil
}

func (g *Guard) requestSwitch(ctx context.Context) error {
	_, err := g.provider.Request(ctx, "wallet_switchEthereumChain", []switchParams{{
		ChainID: provider.Int64ToHex(g.chain.ChainID),
	}})
	return err
}

func (g *Guard) mapSwitchError(err error) error {
	switch {
	case provider.IsCode(err, provider.CodeUserRejected):
		return fmt.Errorf("%w: %v", util.ErrUserRejected, err)
	case provider.IsCode(err, provider.CodeUnsupportedMethod):
		return fmt.Errorf("%w: %v", util.ErrUnsupportedWallet, err)
	default:
		return err
	}
}
