// internal/domain/investment.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Investment represents a user's purchased share stake in one AssetListing.
type Investment struct {
	ID         int64           `json:"id"`
	ListingID  int64           `json:"listing_id"` // local listing identifier
	Investor   string          `json:"investor"`
	Shares     int64           `json:"shares"` // invariant: > 0
	AmountPaid decimal.Decimal `json:"amount_paid"`
	TxRef      string          `json:"tx_ref"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewInvestment creates an Investment record for a submitted purchase.
func NewInvestment(id, listingID int64, investor string, shares int64, amountPaid decimal.Decimal, txRef string) Investment {
	return Investment{
		ID:         id,
		ListingID:  listingID,
		Investor:   investor,
		Shares:     shares,
		AmountPaid: amountPaid,
		TxRef:      txRef,
		CreatedAt:  time.Now().UTC(),
	}
}
