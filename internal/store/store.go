// internal/store/store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"herdvest-agent/internal/domain"
	"herdvest-agent/internal/util"
	"herdvest-agent/pkg/kv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Durable store namespaces. Each holds a serialized ordered sequence of
// entity records shared with every agent process on the same profile.
const (
	NamespaceAssets      = "userAssets"
	NamespaceInvestments = "userInvestments"
)

// watchPollInterval is how often the cross-process change backstop polls
// namespace versions.
const watchPollInterval = time.Second

// Snapshot is the full current state handed to subscribers.
type Snapshot struct {
	Assets      []domain.AssetListing `json:"assets"`
	Investments []domain.Investment   `json:"investments"`
}

// AssetFilter narrows ListAssets results. Zero value matches everything.
type AssetFilter struct {
	Owner      string
	Status     domain.VerificationStatus
	ActiveOnly bool
}

// InvestmentFilter narrows ListInvestments results.
type InvestmentFilter struct {
	Investor  string
	ListingID int64
}

// AssetDraft is the caller-supplied part of a new listing.
type AssetDraft struct {
	Owner         string
	Category      string
	LivestockType string
	TotalShares   int64
	PricePerShare decimal.Decimal
	Details       domain.LivestockDetails
}

// InvestmentDraft is the caller-supplied part of a new investment.
type InvestmentDraft struct {
	ListingID int64
	Investor  string
	Shares    int64
	TxRef     string
}

// RecordStore is the cross-surface synchronization core. It is the sole
// writer to the durable namespaces; every other component holds at most a
// read snapshot plus these mutation entry points. Consistency across
// processes is eventual, last-writer-wins per namespace; quantity
// adjustments re-validate inside the durable read-modify-write span.
type RecordStore interface {
	ListAssets(ctx context.Context, filter AssetFilter) ([]domain.AssetListing, error)
	ListInvestments(ctx context.Context, filter InvestmentFilter) ([]domain.Investment, error)
	Snapshot(ctx context.Context) (Snapshot, error)

	CreateAsset(ctx context.Context, draft AssetDraft) (domain.AssetListing, error)
	RecordInvestment(ctx context.Context, draft InvestmentDraft) (domain.Investment, error)
	SetAssetStatus(ctx context.Context, id int64, status domain.VerificationStatus) (domain.AssetListing, error)
	DeactivateAsset(ctx context.Context, id int64) error
	AdjustAvailableShares(ctx context.Context, id, newAvailable int64) error
	AttachLedgerID(ctx context.Context, id, ledgerID int64) error
	WithdrawInvestment(ctx context.Context, id, shares int64) error

	// RemoveAsset and RemoveInvestment are the compensation entry points
	// used to roll back an optimistic mutation whose transaction failed.
	RemoveAsset(ctx context.Context, id int64) error
	RemoveInvestment(ctx context.Context, id int64) error

	// Subscribe registers fn to receive the full snapshot on every local
	// mutation, every observed cross-process change, and every
	// reconciliation tick. The returned function unsubscribes.
	Subscribe(fn func(Snapshot)) func()
	// Run drives cross-process watching and the reconciliation ticker
	// until ctx is canceled.
	Run(ctx context.Context)
}

type recordStore struct {
	kv                *kv.Store
	logger            *slog.Logger
	reconcileInterval time.Duration

	mu   sync.Mutex
	subs map[uuid.UUID]func(Snapshot)
	seen map[string]int64 // namespace versions already broadcast locally
}

// NewRecordStore creates the record store over an opened kv store.
func NewRecordStore(store *kv.Store, reconcileInterval time.Duration, logger *slog.Logger) RecordStore {
	return &recordStore{
		kv:                store,
		logger:            logger,
		reconcileInterval: reconcileInterval,
		subs:              make(map[uuid.UUID]func(Snapshot)),
		seen:              make(map[string]int64),
	}
}

func decodeAssets(raw []byte) ([]domain.AssetListing, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var assets []domain.AssetListing
	if err := json.Unmarshal(raw, &assets); err != nil {
		return nil, fmt.Errorf("corrupt %s namespace: %w", NamespaceAssets, err)
	}
	return assets, nil
}

func decodeInvestments(raw []byte) ([]domain.Investment, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var investments []domain.Investment
	if err := json.Unmarshal(raw, &investments); err != nil {
		return nil, fmt.Errorf("corrupt %s namespace: %w", NamespaceInvestments, err)
	}
	return investments, nil
}

func putJSON(tx kv.Txn, namespace string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s namespace: %w", namespace, err)
	}
	return tx.Put(namespace, raw)
}

// nextID assigns a locally-unique monotonic identifier. Deriving it from
// the clock keeps ids from colliding across concurrent agent processes;
// bumping past the current maximum survives clock skew between them.
func nextID(maxExisting int64) int64 {
	id := time.Now().UnixMicro()
	if id <= maxExisting {
		id = maxExisting + 1
	}
	return id
}

func (s *recordStore) ListAssets(ctx context.Context, filter AssetFilter) ([]domain.AssetListing, error) {
	raw, _, err := s.kv.Get(ctx, NamespaceAssets)
	if err != nil {
		return nil, err
	}
	assets, err := decodeAssets(raw)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AssetListing, 0, len(assets))
	for _, a := range assets {
		if filter.Owner != "" && a.Owner != filter.Owner {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.ActiveOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *recordStore) ListInvestments(ctx context.Context, filter InvestmentFilter) ([]domain.Investment, error) {
	raw, _, err := s.kv.Get(ctx, NamespaceInvestments)
	if err != nil {
		return nil, err
	}
	investments, err := decodeInvestments(raw)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Investment, 0, len(investments))
	for _, inv := range investments {
		if filter.Investor != "" && inv.Investor != filter.Investor {
			continue
		}
		if filter.ListingID != 0 && inv.ListingID != filter.ListingID {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *recordStore) Snapshot(ctx context.Context) (Snapshot, error) {
	assets, err := s.ListAssets(ctx, AssetFilter{})
	if err != nil {
		return Snapshot{}, err
	}
	investments, err := s.ListInvestments(ctx, InvestmentFilter{})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Assets: assets, Investments: investments}, nil
}

func (s *recordStore) CreateAsset(ctx context.Context, draft AssetDraft) (domain.AssetListing, error) {
	if draft.TotalShares <= 0 {
		return domain.AssetListing{}, util.ErrInvalidShares
	}
	if draft.PricePerShare.LessThanOrEqual(decimal.Zero) {
		return domain.AssetListing{}, fmt.Errorf("%w: price per share must be positive", util.ErrInvalidInput)
	}
	if draft.Owner == "" || draft.Category == "" {
		return domain.AssetListing{}, fmt.Errorf("%w: owner and category are required", util.ErrInvalidInput)
	}

	var created domain.AssetListing
	err := s.kv.Update(ctx, func(tx kv.Txn) error {
		raw, err := tx.Get(NamespaceAssets)
		if err != nil {
			return err
		}
		assets, err := decodeAssets(raw)
		if err != nil {
			return err
		}
		var maxID int64
		for _, a := range assets {
			if a.ID > maxID {
				maxID = a.ID
			}
		}
		created = domain.NewAssetListing(nextID(maxID), draft.Owner, draft.Category, draft.LivestockType,
			draft.TotalShares, draft.PricePerShare, draft.Details)
		return putJSON(tx, NamespaceAssets, append(assets, created))
	})
	if err != nil {
		return domain.AssetListing{}, err
	}
	s.broadcast(ctx)
	return created, nil
}

func (s *recordStore) RecordInvestment(ctx context.Context, draft InvestmentDraft) (domain.Investment, error) {
	if draft.Shares <= 0 {
		return domain.Investment{}, util.ErrInvalidShares
	}

	var created domain.Investment
	err := s.kv.Update(ctx, func(tx kv.Txn) error {
		raw, err := tx.Get(NamespaceAssets)
		if err != nil {
			return err
		}
		assets, err := decodeAssets(raw)
		if err != nil {
			return err
		}
		idx := -1
		for i, a := range assets {
			if a.ID == draft.ListingID {
				idx = i
				break
			}
		}
		if idx < 0 || !assets[idx].IsActive {
			return fmt.Errorf("%w: listing %d", util.ErrNotFound, draft.ListingID)
		}
		// The availableShares check happens here, inside the same durable
		// span as the decrement: a concurrent purchase from another
		// process cannot slip between the read and the write.
		if draft.Shares > assets[idx].AvailableShares {
			return util.ErrOversold
		}
		assets[idx].AvailableShares -= draft.Shares

		invRaw, err := tx.Get(NamespaceInvestments)
		if err != nil {
			return err
		}
		investments, err := decodeInvestments(invRaw)
		if err != nil {
			return err
		}
		var maxID int64
		for _, inv := range investments {
			if inv.ID > maxID {
				maxID = inv.ID
			}
		}
		amount := assets[idx].PricePerShare.Mul(decimal.NewFromInt(draft.Shares))
		created = domain.NewInvestment(nextID(maxID), assets[idx].ID, draft.Investor, draft.Shares, amount, draft.TxRef)

		if err := putJSON(tx, NamespaceAssets, assets); err != nil {
			return err
		}
		return putJSON(tx, NamespaceInvestments, append(investments, created))
	})
	if err != nil {
		return domain.Investment{}, err
	}
	s.broadcast(ctx)
	return created, nil
}

// mutateAsset applies fn to the listing with the given id inside one
// durable transaction.
func (s *recordStore) mutateAsset(ctx context.Context, id int64, fn func(a *domain.AssetListing) error) (domain.AssetListing, error) {
	var updated domain.AssetListing
	err := s.kv.Update(ctx, func(tx kv.Txn) error {
		raw, err := tx.Get(NamespaceAssets)
		if err != nil {
			return err
		}
		assets, err := decodeAssets(raw)
		if err != nil {
			return err
		}
		for i := range assets {
			if assets[i].ID == id {
				if err := fn(&assets[i]); err != nil {
					return err
				}
				updated = assets[i]
				return putJSON(tx, NamespaceAssets, assets)
			}
		}
		return fmt.Errorf("%w: listing %d", util.ErrNotFound, id)
	})
	if err != nil {
		return domain.AssetListing{}, err
	}
	s.broadcast(ctx)
	return updated, nil
}

func (s *recordStore) SetAssetStatus(ctx context.Context, id int64, status domain.VerificationStatus) (domain.AssetListing, error) {
	switch status {
	case domain.StatusPending, domain.StatusVerified, domain.StatusRejected:
	default:
		return domain.AssetListing{}, fmt.Errorf("%w: unknown status %q", util.ErrInvalidInput, status)
	}
	return s.mutateAsset(ctx, id, func(a *domain.AssetListing) error {
		a.Status = status
		a.IsVerified = status == domain.StatusVerified
		return nil
	})
}

// DeactivateAsset soft-deletes a listing. Listings are never hard-deleted
// outside the optimistic-rollback path.
func (s *recordStore) DeactivateAsset(ctx context.Context, id int64) error {
	_, err := s.mutateAsset(ctx, id, func(a *domain.AssetListing) error {
		a.IsActive = false
		return nil
	})
	return err
}

// AdjustAvailableShares is the explicit admin correction path; it is the
// only way availableShares may increase outside a withdrawal.
func (s *recordStore) AdjustAvailableShares(ctx context.Context, id, newAvailable int64) error {
	_, err := s.mutateAsset(ctx, id, func(a *domain.AssetListing) error {
		if newAvailable < 0 || newAvailable > a.TotalShares {
			return fmt.Errorf("%w: available shares must be within [0, %d]", util.ErrInvalidInput, a.TotalShares)
		}
		a.AvailableShares = newAvailable
		return nil
	})
	return err
}

// AttachLedgerID records the ledger-assigned identifier once a create
// transaction confirms. Local ids are never rewritten.
func (s *recordStore) AttachLedgerID(ctx context.Context, id, ledgerID int64) error {
	_, err := s.mutateAsset(ctx, id, func(a *domain.AssetListing) error {
		a.LedgerID = &ledgerID
		return nil
	})
	return err
}

func (s *recordStore) WithdrawInvestment(ctx context.Context, id, shares int64) error {
	if shares <= 0 {
		return util.ErrInvalidShares
	}
	err := s.kv.Update(ctx, func(tx kv.Txn) error {
		invRaw, err := tx.Get(NamespaceInvestments)
		if err != nil {
			return err
		}
		investments, err := decodeInvestments(invRaw)
		if err != nil {
			return err
		}
		idx := -1
		for i, inv := range investments {
			if inv.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: investment %d", util.ErrNotFound, id)
		}
		if shares > investments[idx].Shares {
			return fmt.Errorf("%w: cannot withdraw %d of %d shares", util.ErrInvalidInput, shares, investments[idx].Shares)
		}

		raw, err := tx.Get(NamespaceAssets)
		if err != nil {
			return err
		}
		assets, err := decodeAssets(raw)
		if err != nil {
			return err
		}
		for i := range assets {
			if assets[i].ID == investments[idx].ListingID {
				assets[i].AvailableShares += shares
				break
			}
		}

		investments[idx].Shares -= shares
		if investments[idx].Shares == 0 {
			investments = append(investments[:idx], investments[idx+1:]...)
		} else {
			perShare := investments[idx].AmountPaid.Div(decimal.NewFromInt(investments[idx].Shares + shares))
			investments[idx].AmountPaid = perShare.Mul(decimal.NewFromInt(investments[idx].Shares))
		}

		if err := putJSON(tx, NamespaceAssets, assets); err != nil {
			return err
		}
		return putJSON(tx, NamespaceInvestments, investments)
	})
	if err != nil {
		return err
	}
	s.broadcast(ctx)
	return nil
}

func (s *recordStore) RemoveAsset(ctx context.Context, id int64) error {
	err := s.kv.Update(ctx, func(tx kv.Txn) error {
		raw, err := tx.Get(NamespaceAssets)
		if err != nil {
			return err
		}
		assets, err := decodeAssets(raw)
		if err != nil {
			return err
		}
		for i := range assets {
			if assets[i].ID == id {
				return putJSON(tx, NamespaceAssets, append(assets[:i], assets[i+1:]...))
			}
		}
		return fmt.Errorf("%w: listing %d", util.ErrNotFound, id)
	})
	if err != nil {
		return err
	}
	s.broadcast(ctx)
	return nil
}

// RemoveInvestment deletes an investment record and restores the shares it
// held back onto the listing, as one logical unit.
func (s *recordStore) RemoveInvestment(ctx context.Context, id int64) error {
	err := s.kv.Update(ctx, func(tx kv.Txn) error {
		invRaw, err := tx.Get(NamespaceInvestments)
		if err != nil {
			return err
		}
		investments, err := decodeInvestments(invRaw)
		if err != nil {
			return err
		}
		idx := -1
		for i, inv := range investments {
			if inv.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: investment %d", util.ErrNotFound, id)
		}

		raw, err := tx.Get(NamespaceAssets)
		if err != nil {
			return err
		}
		assets, err := decodeAssets(raw)
		if err != nil {
			return err
		}
		for i := range assets {
			if assets[i].ID == investments[idx].ListingID {
				assets[i].AvailableShares += investments[idx].Shares
				break
			}
		}

		if err := putJSON(tx, NamespaceAssets, assets); err != nil {
			return err
		}
		return putJSON(tx, NamespaceInvestments, append(investments[:idx], investments[idx+1:]...))
	})
	if err != nil {
		return err
	}
	s.broadcast(ctx)
	return nil
}

func (s *recordStore) Subscribe(fn func(Snapshot)) func() {
	id := uuid.New()
	s.mu.Lock()
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// broadcast fans the current snapshot out to every subscriber and records
// the namespace versions it reflects, so the cross-process watcher does
// not re-announce this store's own writes.
func (s *recordStore) broadcast(ctx context.Context) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Error("failed to build store snapshot", "error", err)
		return
	}
	versions, err := s.kv.Versions(ctx, []string{NamespaceAssets, NamespaceInvestments})
	if err != nil {
		s.logger.Warn("failed to read namespace versions", "error", err)
	}

	s.mu.Lock()
	for ns, v := range versions {
		if v > s.seen[ns] {
			s.seen[ns] = v
		}
	}
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *recordStore) alreadySeen(namespace string, version int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return version <= s.seen[namespace]
}

func (s *recordStore) Run(ctx context.Context) {
	namespaces := []string{NamespaceAssets, NamespaceInvestments}
	initial, err := s.kv.Versions(ctx, namespaces)
	if err != nil {
		s.logger.Error("failed to read initial namespace versions", "error", err)
		initial = map[string]int64{}
	}
	s.mu.Lock()
	for ns, v := range initial {
		if v > s.seen[ns] {
			s.seen[ns] = v
		}
	}
	s.mu.Unlock()

	events := s.kv.Watch(ctx, namespaces, initial, watchPollInterval)
	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s.alreadySeen(ev.Namespace, ev.Version) {
				continue
			}
			s.broadcast(ctx)
		case <-ticker.C:
			// Reconciliation tick: mask any missed cross-process
			// notification within one period.
			s.broadcast(ctx)
		}
	}
}
