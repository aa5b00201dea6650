// internal/service/roles.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// RoleFlags are the current user's authorization flags. Degraded marks
// flags served while the ledger could not be queried; degraded flags are
// always all-false and never cached.
type RoleFlags struct {
	Farmer   bool `json:"farmer"`
	Investor bool `json:"investor"`
	Admin    bool `json:"admin"`
	Degraded bool `json:"degraded"`
}

// RoleView derives authorization flags from ledger role checks. Results
// are cached per (account, chain) until invalidated by a session change or
// a confirmed role grant.
type RoleView struct {
	ledger *Ledger
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]RoleFlags
}

// NewRoleView creates a RoleView over the ledger.
func NewRoleView(ledger *Ledger, logger *slog.Logger) *RoleView {
	return &RoleView{
		ledger: ledger,
		logger: logger,
		cache:  make(map[string]RoleFlags),
	}
}

// Roles returns the flags for an account on a chain.
func (v *RoleView) Roles(ctx context.Context, account string, chainID int64) RoleFlags {
	key := fmt.Sprintf("%s@%d", account, chainID)
	v.mu.Lock()
	if flags, ok := v.cache[key]; ok {
		v.mu.Unlock()
		return flags
	}
	v.mu.Unlock()

	var flags RoleFlags
	for _, q := range []struct {
		role string
		dst  *bool
	}{
		{RoleFarmer, &flags.Farmer},
		{RoleInvestor, &flags.Investor},
		{RoleAdmin, &flags.Admin},
	} {
		granted, err := v.ledger.HasRole(ctx, q.role, account)
		if err != nil {
			v.logger.Warn("role query failed, serving degraded flags", "role", q.role, "error", err)
			return RoleFlags{Degraded: true}
		}
		*q.dst = granted
	}

	v.mu.Lock()
	v.cache[key] = flags
	v.mu.Unlock()
	return flags
}

// Invalidate drops all cached flags.
func (v *RoleView) Invalidate() {
	v.mu.Lock()
	v.cache = make(map[string]RoleFlags)
	v.mu.Unlock()
}
