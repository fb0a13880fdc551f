package sale

import (
	"context"
	"errors"
	"testing"
)

func newTestRegistry(t *testing.T) *MemoryRegistry {
	t.Helper()
	r, err := NewMemoryRegistry("mgr", []TierDef{
		{Tier: 1, MinAmount: NewAmount(10), MaxAmount: NewAmount(1000)},
		{Tier: 2, MinAmount: NewAmount(100), MaxAmount: NewAmount(50000)},
	})
	if err != nil {
		t.Fatalf("NewMemoryRegistry: %v", err)
	}
	return r
}

func TestMemoryRegistry_GiveAndResolveTier(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	// GIVEN: an unassigned account
	if _, err := r.TierOf(ctx, "ann"); !errors.Is(err, ErrNoTier) {
		t.Errorf("TierOf before assignment: got %v, want ErrNoTier", err)
	}

	// WHEN: the manager assigns a tier
	if err := r.GiveTier(ctx, "mgr", "ann", 1); err != nil {
		t.Fatalf("GiveTier: %v", err)
	}

	// THEN: the tier resolves and its bounds are readable
	tier, err := r.TierOf(ctx, "ann")
	if err != nil || tier != 1 {
		t.Errorf("TierOf = (%d, %v), want (1, nil)", tier, err)
	}
	b, err := r.TierBounds(ctx, 1)
	if err != nil || !b.Exists {
		t.Fatalf("TierBounds = (%+v, %v)", b, err)
	}
	if !b.MinAmount.Equal(NewAmount(10)) || !b.MaxAmount.Equal(NewAmount(1000)) {
		t.Errorf("bounds = [%s, %s], want [10, 1000]", b.MinAmount, b.MaxAmount)
	}
}

func TestMemoryRegistry_Reassignment_ReplacesTier(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	if err := r.GiveTier(ctx, "mgr", "ann", 1); err != nil {
		t.Fatalf("GiveTier: %v", err)
	}
	if err := r.GiveTier(ctx, "mgr", "ann", 2); err != nil {
		t.Fatalf("GiveTier reassignment: %v", err)
	}
	if tier, _ := r.TierOf(ctx, "ann"); tier != 2 {
		t.Errorf("tier after reassignment = %d, want 2", tier)
	}
}

func TestMemoryRegistry_RevokeTier(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	if err := r.GiveTier(ctx, "mgr", "ann", 1); err != nil {
		t.Fatalf("GiveTier: %v", err)
	}
	if err := r.RevokeTier(ctx, "mgr", "ann"); err != nil {
		t.Fatalf("RevokeTier: %v", err)
	}
	if _, err := r.TierOf(ctx, "ann"); !errors.Is(err, ErrNoTier) {
		t.Errorf("TierOf after revoke: got %v, want ErrNoTier", err)
	}
}

func TestMemoryRegistry_ManagerGate(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	if err := r.GiveTier(ctx, "stranger", "ann", 1); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("GiveTier by stranger: got %v, want ErrUnauthorized", err)
	}
	if err := r.RevokeTier(ctx, "stranger", "ann"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("RevokeTier by stranger: got %v, want ErrUnauthorized", err)
	}
}

func TestMemoryRegistry_UnknownTier(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	if err := r.GiveTier(ctx, "mgr", "ann", 9); !errors.Is(err, ErrInvalidTier) {
		t.Errorf("GiveTier unknown tier: got %v, want ErrInvalidTier", err)
	}
	if _, err := r.TierBounds(ctx, 9); !errors.Is(err, ErrTierNotFound) {
		t.Errorf("TierBounds unknown tier: got %v, want ErrTierNotFound", err)
	}
}

func TestNewMemoryRegistry_RejectsBadTierDefs(t *testing.T) {
	if _, err := NewMemoryRegistry("mgr", []TierDef{
		{Tier: 0, MinAmount: NewAmount(1), MaxAmount: NewAmount(2)},
	}); err == nil {
		t.Error("expected error for non-positive tier number")
	}
	if _, err := NewMemoryRegistry("mgr", []TierDef{
		{Tier: 1, MinAmount: NewAmount(5), MaxAmount: NewAmount(2)},
	}); err == nil {
		t.Error("expected error for max < min")
	}
}
