/*
registry.go - Eligibility tier registry

PURPOSE:
  The registry decides which tier an account belongs to and what lifetime
  investment bounds that tier carries. The engine only consumes the
  interface; how eligibility is granted or revoked is the registry's
  business.

SHIPPED IMPLEMENTATION:
  MemoryRegistry holds a fixed tier set installed at construction and a
  manager-gated assignment map. One account has at most one tier.

SEE ALSO:
  - engine.go: resolves the buyer's tier on every purchase
*/
package sale

import (
	"context"
	"fmt"
	"sync"
)

// =============================================================================
// ELIGIBILITY REGISTRY - Interface consumed by the engine
// =============================================================================

type EligibilityRegistry interface {
	// TierOf returns the account's assigned tier, or ErrNoTier.
	TierOf(ctx context.Context, account Account) (TierNumber, error)

	// TierBounds returns the tier's existence flag and lifetime investment
	// bounds, or ErrTierNotFound.
	TierBounds(ctx context.Context, tier TierNumber) (TierBounds, error)
}

// =============================================================================
// MEMORY REGISTRY
// =============================================================================

// TierDef declares one tier at registry construction.
type TierDef struct {
	Tier      TierNumber
	MinAmount Amount
	MaxAmount Amount
}

// MemoryRegistry is an in-process EligibilityRegistry with a fixed tier set
// and manager-gated assignments.
type MemoryRegistry struct {
	mu          sync.RWMutex
	manager     Account
	bounds      map[TierNumber]TierBounds
	assignments map[Account]TierNumber
}

func NewMemoryRegistry(manager Account, tiers []TierDef) (*MemoryRegistry, error) {
	r := &MemoryRegistry{
		manager:     manager,
		bounds:      make(map[TierNumber]TierBounds, len(tiers)),
		assignments: make(map[Account]TierNumber),
	}
	for _, t := range tiers {
		if t.Tier <= 0 {
			return nil, fmt.Errorf("tier %d: %w", t.Tier, ErrInvalidTier)
		}
		if t.MaxAmount.LessThan(t.MinAmount) {
			return nil, fmt.Errorf("tier %d: max %s < min %s: %w",
				t.Tier, t.MaxAmount, t.MinAmount, ErrInvalidTier)
		}
		r.bounds[t.Tier] = TierBounds{Exists: true, MinAmount: t.MinAmount, MaxAmount: t.MaxAmount}
	}
	return r, nil
}

func (r *MemoryRegistry) TierOf(_ context.Context, account Account) (TierNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tier, ok := r.assignments[account]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", account, ErrNoTier)
	}
	return tier, nil
}

func (r *MemoryRegistry) TierBounds(_ context.Context, tier TierNumber) (TierBounds, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bounds[tier]
	if !ok {
		return TierBounds{}, fmt.Errorf("tier %d: %w", tier, ErrTierNotFound)
	}
	return b, nil
}

// GiveTier assigns a tier to an account. Manager only. Reassignment
// replaces the previous tier.
func (r *MemoryRegistry) GiveTier(_ context.Context, caller, account Account, tier TierNumber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.manager {
		return fmt.Errorf("caller %s: %w", caller, ErrUnauthorized)
	}
	if _, ok := r.bounds[tier]; !ok {
		return fmt.Errorf("tier %d: %w", tier, ErrInvalidTier)
	}
	r.assignments[account] = tier
	return nil
}

// RevokeTier removes an account's assignment. Manager only.
func (r *MemoryRegistry) RevokeTier(_ context.Context, caller, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.manager {
		return fmt.Errorf("caller %s: %w", caller, ErrUnauthorized)
	}
	delete(r.assignments, account)
	return nil
}
