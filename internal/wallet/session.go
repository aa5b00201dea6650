// internal/wallet/session.go
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"herdvest-agent/internal/domain"
	"herdvest-agent/internal/provider"
	"herdvest-agent/internal/util"

	"github.com/google/uuid"
)

// Session owns the process-wide wallet session state. All mutation flows
// through one apply entry point, so provider push events and the poll
// backstop can never interleave into a half-updated snapshot.
type Session interface {
	DetectProvider(ctx context.Context) bool
	// Connect prompts the wallet for authorization and suspends until the
	// user approves or dismisses.
	Connect(ctx context.Context) (domain.SessionState, error)
	// Disconnect clears session state immediately; idempotent.
	Disconnect()
	Snapshot() domain.SessionState
	// Subscribe registers fn to be called with every new snapshot. The
	// returned function removes the subscription.
	Subscribe(fn func(domain.SessionState)) func()
	// Run consumes provider push events, with a bounded-interval poll as a
	// correctness backstop. It blocks until ctx is canceled.
	Run(ctx context.Context)
}

type session struct {
	provider     provider.Client
	logger       *slog.Logger
	pollInterval time.Duration

	mu    sync.RWMutex
	state domain.SessionState
	subs  map[uuid.UUID]func(domain.SessionState)
}

// NewSession creates the single Session instance shared by all surfaces.
func NewSession(p provider.Client, pollInterval time.Duration, logger *slog.Logger) Session {
	return &session{
		provider:     p,
		logger:       logger,
		pollInterval: pollInterval,
		subs:         make(map[uuid.UUID]func(domain.SessionState)),
	}
}

func (s *session) DetectProvider(ctx context.Context) bool {
	return s.provider.Installed(ctx)
}

func (s *session) Snapshot() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *session) Subscribe(fn func(domain.SessionState)) func() {
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

// apply mutates the session state atomically and notifies subscribers with
// the complete new snapshot. A mutation that leaves the state unchanged
// notifies nobody, which keeps Disconnect idempotent.
func (s *session) apply(mutate func(*domain.SessionState)) domain.SessionState {
	s.mu.Lock()
	next := s.state
	mutate(&next)
	changed := next != s.state
	s.state = next
	subs := make([]func(domain.SessionState), 0, len(s.subs))
	if changed {
		for _, fn := range s.subs {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

func (s *session) Connect(ctx context.Context) (domain.SessionState, error) {
	if !s.provider.Installed(ctx) {
		// Scenario: no provider. Report without mutating session state.
		return s.Snapshot(), util.ErrNotInstalled
	}

	s.apply(func(st *domain.SessionState) {
		st.Installed = true
		st.Connecting = true
		st.LastError = ""
	})

	state, err := s.requestSession(ctx)
	if err != nil {
		s.apply(func(st *domain.SessionState) {
			st.Connecting = false
			st.LastError = err.Error()
		})
		return s.Snapshot(), err
	}
	return state, nil
}

func (s *session) requestSession(ctx context.Context) (domain.SessionState, error) {
	raw, err := s.provider.Request(ctx, "eth_requestAccounts", nil)
	if err != nil {
		return domain.SessionState{}, mapConnectError(err)
	}
	accounts, err := provider.DecodeStrings(raw)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("%w: %v", util.ErrNetworkFailure, err)
	}
	if len(accounts) == 0 {
		return domain.SessionState{}, util.ErrConnectorUnavailable
	}

	chainRaw, err := s.provider.Request(ctx, "eth_chainId", nil)
	if err != nil {
		return domain.SessionState{}, mapConnectError(err)
	}
	chainHex, err := provider.DecodeString(chainRaw)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("%w: %v", util.ErrNetworkFailure, err)
	}
	chainID, err := provider.HexToInt64(chainHex)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("%w: %v", util.ErrNetworkFailure, err)
	}

	// Account and chain land in one atomic swap.
	state := s.apply(func(st *domain.SessionState) {
		st.Installed = true
		st.Connected = true
		st.Connecting = false
		st.Account = accounts[0]
		st.ChainID = chainID
		st.LastError = ""
	})
	s.logger.Info("wallet connected", "account", state.Account, "chain_id", state.ChainID)
	return state, nil
}

func mapConnectError(err error) error {
	switch {
	case provider.IsCode(err, provider.CodeUserRejected):
		return fmt.Errorf("%w: %v", util.ErrUserRejected, err)
	case provider.IsCode(err, provider.CodeUnsupportedMethod), provider.IsCode(err, provider.CodeUnauthorized):
		return fmt.Errorf("%w: %v", util.ErrConnectorUnavailable, err)
	default:
		return err
	}
}

func (s *session) Disconnect() {
	s.apply(func(st *domain.SessionState) {
		st.Connected = false
		st.Connecting = false
		st.Account = ""
		st.ChainID = 0
		st.LastError = ""
	})
}

func (s *session) Run(ctx context.Context) {
	events, err := s.provider.Events(ctx)
	if err != nil {
		s.logger.Warn("provider push events unavailable, poll only", "error", err)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil // stream died; the poll keeps the session fresh
				continue
			}
			s.handleEvent(ev)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *session) handleEvent(ev provider.Event) {
	switch ev.Name {
	case provider.EventAccountsChanged:
		var accounts []string
		if err := json.Unmarshal(ev.Data, &accounts); err != nil {
			s.logger.Warn("malformed accountsChanged event", "error", err)
			return
		}
		if len(accounts) == 0 {
			s.Disconnect()
			return
		}
		s.apply(func(st *domain.SessionState) {
			st.Account = accounts[0]
		})
	case provider.EventChainChanged:
		var chainHex string
		if err := json.Unmarshal(ev.Data, &chainHex); err != nil {
			s.logger.Warn("malformed chainChanged event", "error", err)
			return
		}
		chainID, err := provider.HexToInt64(chainHex)
		if err != nil {
			s.logger.Warn("malformed chainChanged event", "error", err)
			return
		}
		s.apply(func(st *domain.SessionState) {
			st.ChainID = chainID
		})
	case provider.EventDisconnect:
		s.Disconnect()
	}
}

// poll refreshes account and chain from the provider while connected. It
// feeds the same apply entry point as push events.
func (s *session) poll(ctx context.Context) {
	if !s.Snapshot().Connected {
		return
	}

	raw, err := s.provider.Request(ctx, "eth_accounts", nil)
	if err != nil {
		s.logger.Warn("session poll failed", "error", err)
		return
	}
	accounts, err := provider.DecodeStrings(raw)
	if err != nil {
		return
	}
	if len(accounts) == 0 {
		s.Disconnect()
		return
	}

	chainRaw, err := s.provider.Request(ctx, "eth_chainId", nil)
	if err != nil {
		return
	}
	chainHex, err := provider.DecodeString(chainRaw)
	if err != nil {
		return
	}
	chainID, err := provider.HexToInt64(chainHex)
	if err != nil {
		return
	}

	s.apply(func(st *domain.SessionState) {
		st.Account = accounts[0]
		st.ChainID = chainID
	})
}
