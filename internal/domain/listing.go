// internal/domain/listing.go
package domain

import (
	"time"

	"github.com/shopspring/decimal" // For precise monetary calculations
)

// VerificationStatus defines the admin verification state of a listing.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "PENDING"
	StatusVerified VerificationStatus = "VERIFIED"
	StatusRejected VerificationStatus = "REJECTED"
)

// LivestockDetails carries the free-form detail record attached to a listing.
type LivestockDetails struct {
	HealthStatus string `json:"health_status"`
	AgeMonths    int    `json:"age_months"`
	InsuranceRef string `json:"insurance_ref"`
}

// AssetListing represents a tokenized real-world asset open for investment.
// The ID is assigned locally when the listing is optimistically created;
// LedgerID is attached once the create transaction confirms on chain.
type AssetListing struct {
	ID              int64              `json:"id"`
	LedgerID        *int64             `json:"ledger_id,omitempty"`
	Owner           string             `json:"owner"`
	Category        string             `json:"category"`
	LivestockType   string             `json:"livestock_type"`
	TotalShares     int64              `json:"total_shares"`
	AvailableShares int64              `json:"available_shares"` // invariant: <= TotalShares
	PricePerShare   decimal.Decimal    `json:"price_per_share"`
	Status          VerificationStatus `json:"status"`
	IsVerified      bool               `json:"is_verified"` // derived: Status == StatusVerified
	IsActive        bool               `json:"is_active"`
	CreatedAt       time.Time          `json:"created_at"`
	Details         LivestockDetails   `json:"details"`
}

// NewAssetListing creates a listing in its initial optimistic state:
// pending verification, fully available, active.
func NewAssetListing(id int64, owner, category, livestockType string, totalShares int64, pricePerShare decimal.Decimal, details LivestockDetails) AssetListing {
	return AssetListing{
		ID:              id,
		Owner:           owner,
		Category:        category,
		LivestockType:   livestockType,
		TotalShares:     totalShares,
		AvailableShares: totalShares,
		PricePerShare:   pricePerShare,
		Status:          StatusPending,
		IsVerified:      false,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
		Details:         details,
	}
}
