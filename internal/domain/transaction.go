// internal/domain/transaction.go
package domain

// OperationKind identifies the domain operation a transaction performs.
type OperationKind string

const (
	OpCreateAsset OperationKind = "CREATE_ASSET"
	OpInvest      OperationKind = "INVEST"
	OpApprove     OperationKind = "APPROVE"
	OpClaimFunds  OperationKind = "CLAIM_FUNDS"
	OpRequestRole OperationKind = "REQUEST_ROLE"
)

// TxPhase is one step of a wallet-mediated transaction's lifecycle.
type TxPhase string

const (
	PhaseIdle             TxPhase = "IDLE"
	PhaseAwaitingApproval TxPhase = "AWAITING_WALLET_APPROVAL"
	PhaseSubmitted        TxPhase = "SUBMITTED"
	PhaseConfirming       TxPhase = "CONFIRMING"
	PhaseConfirmed        TxPhase = "CONFIRMED"
	PhaseRejected         TxPhase = "REJECTED"
	PhaseFailed           TxPhase = "FAILED"
)

// Terminal reports whether the phase ends the transaction lifecycle.
func (p TxPhase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseRejected || p == PhaseFailed
}

// InFlight reports whether the phase occupies the executor's single slot.
func (p TxPhase) InFlight() bool {
	return p == PhaseAwaitingApproval || p == PhaseSubmitted || p == PhaseConfirming
}

// TransactionState is the ephemeral state of one in-flight operation.
// It is owned exclusively by the executor driving the operation and is
// reset to idle when a new operation begins.
type TransactionState struct {
	Kind  OperationKind `json:"kind"`
	Phase TxPhase       `json:"phase"`
	TxRef string        `json:"tx_ref,omitempty"` // present once submitted
	Error string        `json:"error,omitempty"`  // present on rejected/failed
}
