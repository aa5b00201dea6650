// internal/util/errors.go
package util

import "errors"

// Common application-specific errors, grouped by the layer that raises them.
var (
	// Connection errors.
	ErrNotInstalled         = errors.New("wallet provider not installed")
	ErrNotConnected         = errors.New("wallet not connected")
	ErrConnectorUnavailable = errors.New("no compatible wallet connector registered")

	// Network errors.
	ErrWrongNetwork      = errors.New("connected to the wrong network")
	ErrUnsupportedWallet = errors.New("wallet does not support network switching")

	// Execution errors.
	ErrUserRejected        = errors.New("user rejected the request")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrReverted            = errors.New("execution reverted on chain")
	ErrNetworkFailure      = errors.New("network transport failure")
	ErrOperationInProgress = errors.New("another operation is already in progress")

	// Validation errors.
	ErrInvalidInput  = errors.New("invalid input provided")
	ErrInvalidShares = errors.New("share count must be positive")
	ErrOversold      = errors.New("not enough shares available")
	ErrNotFound      = errors.New("resource not found")

	ErrUnknown = errors.New("unknown error")
)

// IsError checks if the given error matches the target error.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
