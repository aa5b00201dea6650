// internal/executor/executor.go
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"herdvest-agent/internal/domain"
	"herdvest-agent/internal/provider"
	"herdvest-agent/internal/util"
)

// Call describes one write entry point on the ledger contract. Argument
// encoding is opaque to the executor; it forwards the encoded call to the
// wallet untouched.
type Call struct {
	To       string `json:"to"`
	Function string `json:"function"`
	Args     []any  `json:"args,omitempty"`
	Value    string `json:"value,omitempty"` // native value in base units, optional
}

// Executor drives one wallet-mediated transaction at a time through
// idle -> awaiting-wallet-approval -> submitted -> confirming ->
// confirmed | failed, with awaiting-wallet-approval -> rejected if the
// user declines the prompt. At most one operation may be in flight; a
// second Execute fails fast with ErrOperationInProgress.
//
// The executor does not re-check network correctness: the caller is the
// single source of truth for that decision.
type Executor interface {
	// Execute submits the call via the wallet. It returns the transaction
	// reference as soon as the wallet accepts; confirmation is observed
	// separately through Watch.
	Execute(ctx context.Context, kind domain.OperationKind, from string, call Call) (string, error)
	// Watch returns a finite sequence of phase transitions for a known
	// reference, starting from its current phase. It does not replay
	// history; the channel closes at a terminal phase.
	Watch(txRef string) (<-chan domain.TxPhase, error)
	// State returns the current in-flight transaction state snapshot.
	State() domain.TransactionState
	// Close stops background confirmation polling.
	Close()
}

type txExecutor struct {
	provider     provider.Client
	logger       *slog.Logger
	pollInterval time.Duration

	mu       sync.Mutex
	state    domain.TransactionState
	phases   map[string]domain.TxPhase
	watchers map[string][]chan domain.TxPhase

	done      chan struct{}
	closeOnce sync.Once
}

// NewExecutor creates a transaction executor that polls for receipts at
// the given interval.
func NewExecutor(p provider.Client, pollInterval time.Duration, logger *slog.Logger) Executor {
	return &txExecutor{
		provider:     p,
		logger:       logger,
		pollInterval: pollInterval,
		state:        domain.TransactionState{Phase: domain.PhaseIdle},
		phases:       make(map[string]domain.TxPhase),
		watchers:     make(map[string][]chan domain.TxPhase),
		done:         make(chan struct{}),
	}
}

func (e *txExecutor) State() domain.TransactionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *txExecutor) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

type txParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

func encodeCallData(call Call) string {
	data, _ := json.Marshal(struct {
		Function string `json:"function"`
		Args     []any  `json:"args,omitempty"`
	}{call.Function, call.Args})
	return string(data)
}

func (e *txExecutor) Execute(ctx context.Context, kind domain.OperationKind, from string, call Call) (string, error) {
	e.mu.Lock()
	if e.state.Phase.InFlight() {
		e.mu.Unlock()
		return "", util.ErrOperationInProgress
	}
	// Starting a new operation destroys the previous terminal state.
	e.state = domain.TransactionState{Kind: kind, Phase: domain.PhaseAwaitingApproval}
	e.mu.Unlock()

	raw, err := e.provider.Request(ctx, "eth_sendTransaction", []txParams{{
		From:  from,
		To:    call.To,
		Data:  encodeCallData(call),
		Value: call.Value,
	}})
	if err != nil {
		phase, mapped := mapExecuteError(err)
		e.mu.Lock()
		e.state.Phase = phase
		e.state.Error = mapped.Error()
		e.mu.Unlock()
		return "", mapped
	}

	txRef, err := provider.DecodeString(raw)
	if err != nil {
		mapped := fmt.Errorf("%w: %v", util.ErrNetworkFailure, err)
		e.mu.Lock()
		e.state.Phase = domain.PhaseFailed
		e.state.Error = mapped.Error()
		e.mu.Unlock()
		return "", mapped
	}

	e.setPhase(txRef, domain.PhaseSubmitted, "")
	go e.confirm(txRef)
	return txRef, nil
}

// mapExecuteError translates provider failures into the execution error
// taxonomy and the terminal phase each one lands in.
func mapExecuteError(err error) (domain.TxPhase, error) {
	switch {
	case provider.IsCode(err, provider.CodeUserRejected):
		return domain.PhaseRejected, fmt.Errorf("%w: %v", util.ErrUserRejected, err)
	case provider.IsCode(err, provider.CodeInsufficientFunds):
		return domain.PhaseFailed, fmt.Errorf("%w: %v", util.ErrInsufficientFunds, err)
	case provider.IsCode(err, provider.CodeExecutionReverted):
		return domain.PhaseFailed, fmt.Errorf("%w: %v", util.ErrReverted, err)
	case errors.Is(err, util.ErrNetworkFailure), errors.Is(err, util.ErrNotInstalled):
		return domain.PhaseFailed, err
	default:
		return domain.PhaseFailed, fmt.Errorf("%w: %v", util.ErrUnknown, err)
	}
}

// setPhase advances a reference's phase, mirrors it into the executor
// state, and fans the transition out to watchers. Terminal phases close
// the watcher channels.
func (e *txExecutor) setPhase(txRef string, phase domain.TxPhase, errMsg string) {
	e.mu.Lock()
	e.phases[txRef] = phase
	if e.state.TxRef == txRef || e.state.TxRef == "" {
		e.state.TxRef = txRef
		e.state.Phase = phase
		e.state.Error = errMsg
	}
	watchers := e.watchers[txRef]
	if phase.Terminal() {
		delete(e.watchers, txRef)
	}
	e.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- phase:
		default:
			// A watcher that stopped draining loses transitions rather
			// than blocking the executor.
		}
		if phase.Terminal() {
			close(ch)
		}
	}
}

func (e *txExecutor) Watch(txRef string) (<-chan domain.TxPhase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	phase, ok := e.phases[txRef]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction reference %s", util.ErrNotFound, txRef)
	}
	ch := make(chan domain.TxPhase, 8)
	ch <- phase
	if phase.Terminal() {
		close(ch)
		return ch, nil
	}
	e.watchers[txRef] = append(e.watchers[txRef], ch)
	return ch, nil
}

type receipt struct {
	Status       string `json:"status"`
	RevertReason string `json:"revertReason,omitempty"`
}

// confirm polls for the transaction receipt until a terminal outcome.
// Once the wallet accepted the transaction the protocol can only observe
// the outcome, never abort it, so polling continues across caller
// lifetimes and stops only at a receipt or executor close.
func (e *txExecutor) confirm(txRef string) {
	e.setPhase(txRef, domain.PhaseConfirming, "")

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.pollInterval*4)
		raw, err := e.provider.Request(ctx, "eth_getTransactionReceipt", []string{txRef})
		cancel()
		if err != nil {
			e.logger.Warn("receipt poll failed", "tx_ref", txRef, "error", err)
			continue
		}
		if len(raw) == 0 || string(raw) == "null" {
			continue // not mined yet
		}

		var r receipt
		if err := json.Unmarshal(raw, &r); err != nil {
			e.logger.Warn("malformed receipt", "tx_ref", txRef, "error", err)
			continue
		}
		status, err := provider.HexToInt64(r.Status)
		if err != nil {
			e.logger.Warn("malformed receipt status", "tx_ref", txRef, "error", err)
			continue
		}
		if status == 1 {
			e.setPhase(txRef, domain.PhaseConfirmed, "")
		} else {
			reason := r.RevertReason
			if reason == "" {
				reason = util.ErrReverted.Error()
			}
			e.setPhase(txRef, domain.PhaseFailed, reason)
		}
		return
	}
}
