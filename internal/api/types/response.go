// internal/api/types/response.go
package types

// APIResponse is the envelope every surface-facing endpoint returns.
// Failures are structured results, not opaque status codes: callers branch
// on Success and show Error as-is.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps a successful payload.
func OK(data any) APIResponse {
	return APIResponse{Success: true, Data: data}
}

// Fail wraps a failure message.
func Fail(message string) APIResponse {
	return APIResponse{Success: false, Error: message}
}
