// internal/service/ledger.go
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"herdvest-agent/internal/domain"
	"herdvest-agent/internal/executor"
	"herdvest-agent/internal/provider"
	"herdvest-agent/internal/util"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point scaling factor the contract expects:
// decimal amounts are scaled by 10^6 to the token's smallest unit before
// submission.
const TokenDecimals = 6

// Role identifiers the contract's access control understands.
const (
	RoleFarmer   = "FARMER_ROLE"
	RoleInvestor = "INVESTOR_ROLE"
	RoleAdmin    = "ADMIN_ROLE"
)

// toBaseUnits scales a decimal amount to the token's smallest unit.
func toBaseUnits(d decimal.Decimal) string {
	return d.Shift(TokenDecimals).Truncate(0).String()
}

// Ledger shapes calls against the deployed contract. Write entry points
// become executor calls; read-only queries go straight to the provider.
type Ledger struct {
	provider provider.Client
	contract string
}

// NewLedger creates a Ledger bound to one contract address.
func NewLedger(p provider.Client, contract string) *Ledger {
	return &Ledger{provider: p, contract: contract}
}

type ethCallParams struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

func callData(function string, args ...any) string {
	data, _ := json.Marshal(struct {
		Function string `json:"function"`
		Args     []any  `json:"args,omitempty"`
	}{function, args})
	return string(data)
}

func (l *Ledger) read(ctx context.Context, function string, args ...any) (json.RawMessage, error) {
	return l.provider.Request(ctx, "eth_call", []ethCallParams{{To: l.contract, Data: callData(function, args...)}})
}

// HasRole queries the contract's access control for an address.
func (l *Ledger) HasRole(ctx context.Context, role, address string) (bool, error) {
	raw, err := l.read(ctx, "hasRole", role, address)
	if err != nil {
		return false, err
	}
	var granted bool
	if err := json.Unmarshal(raw, &granted); err != nil {
		return false, fmt.Errorf("%w: malformed hasRole result: %v", util.ErrNetworkFailure, err)
	}
	return granted, nil
}

// ListingCounter returns the ledger's current listing counter, which is
// the ledger-assigned identifier of the most recently created listing.
func (l *Ledger) ListingCounter(ctx context.Context) (int64, error) {
	raw, err := l.read(ctx, "listingCounter")
	if err != nil {
		return 0, err
	}
	s, err := provider.DecodeString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", util.ErrNetworkFailure, err)
	}
	counter, err := provider.HexToInt64(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", util.ErrNetworkFailure, err)
	}
	return counter, nil
}

// CreateListingCall shapes the createListing write entry point.
func (l *Ledger) CreateListingCall(totalShares int64, pricePerShare decimal.Decimal, category, livestockType string, details domain.LivestockDetails) executor.Call {
	return executor.Call{
		To:       l.contract,
		Function: "createListing",
		Args:     []any{totalShares, toBaseUnits(pricePerShare), category, livestockType, details},
	}
}

// InvestCall shapes the invest write entry point. The payment travels as
// the transaction value; maxPricePerShare is the contract's slippage
// guard.
func (l *Ledger) InvestCall(listingID, shares int64, maxPricePerShare, payment decimal.Decimal) executor.Call {
	return executor.Call{
		To:       l.contract,
		Function: "invest",
		Args:     []any{listingID, shares, toBaseUnits(maxPricePerShare)},
		Value:    toBaseUnits(payment),
	}
}

// RequestRoleCall shapes the requestRole write entry point.
func (l *Ledger) RequestRoleCall(role string) executor.Call {
	return executor.Call{To: l.contract, Function: "requestRole", Args: []any{role}}
}

// ClaimFundsCall shapes the claimFunds write entry point.
func (l *Ledger) ClaimFundsCall() executor.Call {
	return executor.Call{To: l.contract, Function: "claimFunds"}
}

type watchAssetOptions struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type watchAssetParams struct {
	Type    string            `json:"type"`
	Options watchAssetOptions `json:"options"`
}

// WatchAsset asks the wallet to track the share token. Optional provider
// capability; callers treat failure as non-fatal.
func (l *Ledger) WatchAsset(ctx context.Context, symbol string) error {
	_, err := l.provider.Request(ctx, "wallet_watchAsset", watchAssetParams{
		Type:    "ERC20",
		Options: watchAssetOptions{Address: l.contract, Symbol: symbol, Decimals: TokenDecimals},
	})
	return err
}
