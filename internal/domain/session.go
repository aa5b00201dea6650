// internal/domain/session.go
package domain

// SessionState is the process-wide wallet session snapshot shared by all
// surfaces. It is mutated only through the wallet session component; every
// consumer receives complete snapshots, never partial updates.
type SessionState struct {
	Installed  bool   `json:"installed"`
	Connected  bool   `json:"connected"`
	Connecting bool   `json:"connecting"`
	Account    string `json:"account,omitempty"`
	ChainID    int64  `json:"chain_id,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}
