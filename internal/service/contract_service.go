// internal/service/contract_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"herdvest-agent/internal/domain"
	"herdvest-agent/internal/executor"
	"herdvest-agent/internal/network"
	"herdvest-agent/internal/store"
	"herdvest-agent/internal/util"
	"herdvest-agent/internal/wallet"

	"github.com/shopspring/decimal"
)

// CreateListingInput is the caller-supplied part of a create-listing
// operation.
type CreateListingInput struct {
	Category      string                  `json:"category"`
	LivestockType string                  `json:"livestock_type"`
	TotalShares   int64                   `json:"total_shares"`
	PricePerShare decimal.Decimal         `json:"price_per_share"`
	Details       domain.LivestockDetails `json:"details"`
}

// InvestInput is the caller-supplied part of an invest operation.
// ListingID is the local listing identifier; MaxPricePerShare defaults to
// the listing's current price when zero.
type InvestInput struct {
	ListingID        int64           `json:"listing_id"`
	Shares           int64           `json:"shares"`
	MaxPricePerShare decimal.Decimal `json:"max_price_per_share"`
}

// OperationOutcome is the structured result of a submitted operation. The
// attached record is the optimistic one; it already reflects the intended
// end state and is rolled back if the transaction fails.
type OperationOutcome struct {
	TxRef      string               `json:"tx_ref"`
	Listing    *domain.AssetListing `json:"listing,omitempty"`
	Investment *domain.Investment   `json:"investment,omitempty"`
	Kind       domain.OperationKind `json:"kind"`
}

// ContractService composes the wallet session, network guard, transaction
// executor, and record store into the domain operations a UI surface
// calls. Every operation checks the session and network before touching
// the wallet, applies the optimistic store mutation on submission, and
// compensates on rejection or failure.
type ContractService interface {
	CreateListing(ctx context.Context, input CreateListingInput) (*OperationOutcome, error)
	Invest(ctx context.Context, input InvestInput) (*OperationOutcome, error)
	RequestRole(ctx context.Context, role string) (*OperationOutcome, error)
	ClaimFunds(ctx context.Context) (*OperationOutcome, error)
	Roles(ctx context.Context) (RoleFlags, error)
	// Reconcile refreshes ledger-derived state after a period where local
	// state may have drifted (e.g. a disconnect during an in-flight
	// transaction).
	Reconcile(ctx context.Context) error
}

type contractService struct {
	session wallet.Session
	guard   *network.Guard
	exec    executor.Executor
	records store.RecordStore
	ledger  *Ledger
	roles   *RoleView
	logger  *slog.Logger

	tokenSymbol    string
	registerToken  sync.Once
	mu             sync.Mutex
	connected      bool
	needsReconcile bool
}

// NewContractService wires the facade and hooks it into session changes
// for post-disconnect reconciliation.
func NewContractService(
	session wallet.Session,
	guard *network.Guard,
	exec executor.Executor,
	records store.RecordStore,
	ledger *Ledger,
	roles *RoleView,
	tokenSymbol string,
	logger *slog.Logger,
) ContractService {
	s := &contractService{
		session:     session,
		guard:       guard,
		exec:        exec,
		records:     records,
		ledger:      ledger,
		roles:       roles,
		tokenSymbol: tokenSymbol,
		logger:      logger,
		connected:   session.Snapshot().Connected,
	}
	session.Subscribe(s.onSessionChange)
	return s
}

// onSessionChange tracks connect/disconnect transitions. A disconnect
// while a transaction is in flight invalidates optimistic local state: the
// transaction may still confirm on chain, so the next connect triggers a
// deferred ledger read instead of a rollback.
func (s *contractService) onSessionChange(state domain.SessionState) {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = state.Connected
	if wasConnected && !state.Connected && s.exec.State().Phase.InFlight() {
		s.needsReconcile = true
	}
	reconcileNow := !wasConnected && state.Connected && s.needsReconcile
	if reconcileNow {
		s.needsReconcile = false
	}
	s.mu.Unlock()

	if !state.Connected {
		s.roles.Invalidate()
	}
	if reconcileNow {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.Reconcile(ctx); err != nil {
				s.logger.Warn("post-reconnect reconciliation failed", "error", err)
			}
		}()
	}
}

// precheck enforces the shared preconditions: connected session, correct
// network. Network mismatches fail before the executor is ever called.
func (s *contractService) precheck() (domain.SessionState, error) {
	snap := s.session.Snapshot()
	if !snap.Connected {
		return snap, util.ErrNotConnected
	}
	if !s.guard.IsCorrectNetwork(snap.ChainID) {
		return snap, fmt.Errorf("%w: on chain %d, need %d", util.ErrWrongNetwork, snap.ChainID, s.guard.RequiredChain().ChainID)
	}
	return snap, nil
}

func (s *contractService) CreateListing(ctx context.Context, input CreateListingInput) (*OperationOutcome, error) {
	snap, err := s.precheck()
	if err != nil {
		return nil, err
	}
	// Validation failures reject before any wallet interaction.
	if input.TotalShares <= 0 {
		return nil, util.ErrInvalidShares
	}
	if input.PricePerShare.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: price per share must be positive", util.ErrInvalidInput)
	}
	if input.Category == "" {
		return nil, fmt.Errorf("%w: category is required", util.ErrInvalidInput)
	}

	call := s.ledger.CreateListingCall(input.TotalShares, input.PricePerShare, input.Category, input.LivestockType, input.Details)
	txRef, err := s.exec.Execute(ctx, domain.OpCreateAsset, snap.Account, call)
	if err != nil {
		return nil, err
	}

	listing, err := s.records.CreateAsset(ctx, store.AssetDraft{
		Owner:         snap.Account,
		Category:      input.Category,
		LivestockType: input.LivestockType,
		TotalShares:   input.TotalShares,
		PricePerShare: input.PricePerShare,
		Details:       input.Details,
	})
	if err != nil {
		// The transaction is already submitted; only the optimistic local
		// record is missing. Reconciliation picks it up later.
		s.logger.Error("optimistic listing write failed after submission", "tx_ref", txRef, "error", err)
		return nil, err
	}

	go s.finishCreate(txRef, listing.ID)
	return &OperationOutcome{TxRef: txRef, Listing: &listing, Kind: domain.OpCreateAsset}, nil
}

// finishCreate observes the create transaction to its terminal phase:
// confirmed attaches the ledger-assigned id, rejected/failed rolls the
// optimistic listing back.
func (s *contractService) finishCreate(txRef string, listingID int64) {
	ch, err := s.exec.Watch(txRef)
	if err != nil {
		s.logger.Error("cannot watch create transaction", "tx_ref", txRef, "error", err)
		return
	}
	for phase := range ch {
		switch phase {
		case domain.PhaseConfirmed:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			ledgerID, err := s.ledger.ListingCounter(ctx)
			if err == nil {
				if err := s.records.AttachLedgerID(ctx, listingID, ledgerID); err != nil {
					s.logger.Warn("failed to attach ledger id", "listing_id", listingID, "error", err)
				}
			} else {
				s.logger.Warn("listing counter read failed after confirmation", "error", err)
			}
			cancel()
		case domain.PhaseRejected, domain.PhaseFailed:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := s.records.RemoveAsset(ctx, listingID); err != nil {
				s.logger.Error("failed to roll back optimistic listing", "listing_id", listingID, "error", err)
			}
			cancel()
		}
	}
}

func (s *contractService) Invest(ctx context.Context, input InvestInput) (*OperationOutcome, error) {
	snap, err := s.precheck()
	if err != nil {
		return nil, err
	}
	if input.Shares <= 0 {
		return nil, util.ErrInvalidShares
	}

	listings, err := s.records.ListAssets(ctx, store.AssetFilter{})
	if err != nil {
		return nil, err
	}
	var listing *domain.AssetListing
	for i := range listings {
		if listings[i].ID == input.ListingID {
			listing = &listings[i]
			break
		}
	}
	if listing == nil || !listing.IsActive {
		return nil, fmt.Errorf("%w: listing %d", util.ErrNotFound, input.ListingID)
	}
	// Fail fast before the wallet prompt; the store re-validates inside
	// the durable write span.
	if input.Shares > listing.AvailableShares {
		return nil, util.ErrOversold
	}

	maxPrice := input.MaxPricePerShare
	if maxPrice.IsZero() {
		maxPrice = listing.PricePerShare
	}
	payment := listing.PricePerShare.Mul(decimal.NewFromInt(input.Shares))

	ledgerListingID := listing.ID
	if listing.LedgerID != nil {
		ledgerListingID = *listing.LedgerID
	}
	call := s.ledger.InvestCall(ledgerListingID, input.Shares, maxPrice, payment)
	txRef, err := s.exec.Execute(ctx, domain.OpInvest, snap.Account, call)
	if err != nil {
		return nil, err
	}

	investment, err := s.records.RecordInvestment(ctx, store.InvestmentDraft{
		ListingID: listing.ID,
		Investor:  snap.Account,
		Shares:    input.Shares,
		TxRef:     txRef,
	})
	if err != nil {
		s.logger.Error("optimistic investment write failed after submission", "tx_ref", txRef, "error", err)
		return nil, err
	}

	go s.finishInvest(txRef, investment.ID)
	return &OperationOutcome{TxRef: txRef, Investment: &investment, Kind: domain.OpInvest}, nil
}

// finishInvest observes the invest transaction. On confirmation the
// optimistic record already reflects the end state, so nothing is written;
// on rejection/failure the record and the listing's decremented shares are
// restored.
func (s *contractService) finishInvest(txRef string, investmentID int64) {
	ch, err := s.exec.Watch(txRef)
	if err != nil {
		s.logger.Error("cannot watch invest transaction", "tx_ref", txRef, "error", err)
		return
	}
	for phase := range ch {
		switch phase {
		case domain.PhaseConfirmed:
			s.registerToken.Do(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.ledger.WatchAsset(ctx, s.tokenSymbol); err != nil {
					s.logger.Info("wallet declined token registration", "error", err)
				}
			})
		case domain.PhaseRejected, domain.PhaseFailed:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := s.records.RemoveInvestment(ctx, investmentID); err != nil {
				s.logger.Error("failed to roll back optimistic investment", "investment_id", investmentID, "error", err)
			}
			cancel()
		}
	}
}

func (s *contractService) RequestRole(ctx context.Context, role string) (*OperationOutcome, error) {
	snap, err := s.precheck()
	if err != nil {
		return nil, err
	}
	switch role {
	case RoleFarmer, RoleInvestor:
	default:
		return nil, fmt.Errorf("%w: role %q cannot be requested", util.ErrInvalidInput, role)
	}

	txRef, err := s.exec.Execute(ctx, domain.OpRequestRole, snap.Account, s.ledger.RequestRoleCall(role))
	if err != nil {
		return nil, err
	}

	go func() {
		ch, err := s.exec.Watch(txRef)
		if err != nil {
			return
		}
		for phase := range ch {
			if phase == domain.PhaseConfirmed {
				s.roles.Invalidate()
			}
		}
	}()
	return &OperationOutcome{TxRef: txRef, Kind: domain.OpRequestRole}, nil
}

func (s *contractService) ClaimFunds(ctx context.Context) (*OperationOutcome, error) {
	snap, err := s.precheck()
	if err != nil {
		return nil, err
	}
	txRef, err := s.exec.Execute(ctx, domain.OpClaimFunds, snap.Account, s.ledger.ClaimFundsCall())
	if err != nil {
		return nil, err
	}
	return &OperationOutcome{TxRef: txRef, Kind: domain.OpClaimFunds}, nil
}

func (s *contractService) Roles(ctx context.Context) (RoleFlags, error) {
	snap := s.session.Snapshot()
	if !snap.Connected {
		return RoleFlags{}, util.ErrNotConnected
	}
	return s.roles.Roles(ctx, snap.Account, snap.ChainID), nil
}

func (s *contractService) Reconcile(ctx context.Context) error {
	s.roles.Invalidate()

	counter, err := s.ledger.ListingCounter(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: listing counter read failed: %w", err)
	}

	listings, err := s.records.ListAssets(ctx, store.AssetFilter{})
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	confirmed := 0
	for _, l := range listings {
		if l.LedgerID != nil {
			confirmed++
		}
	}
	s.logger.Info("reconciliation complete",
		"ledger_listing_counter", counter,
		"local_listings", len(listings),
		"local_confirmed", confirmed)
	return nil
}
