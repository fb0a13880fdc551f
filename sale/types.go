/*
Package sale implements a tiered, access-controlled asset-sale engine.

PURPOSE:
  Eligible participants exchange a payment asset for units of a sale asset.
  Each participant belongs to an eligibility tier; every tier has its own
  sale window, fee surcharge and sale quota, and the sale as a whole has a
  global quota. The engine validates each purchase, computes the
  fee-inclusive payment with exact integer truncation, and moves both assets
  atomically.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: an integer quantity of asset base units (decimal-backed)
  - Account / AssetID / TierNumber: type-safe identifiers
  - TierConfig: per-tier sale window, surcharge, quota and counters
  - GlobalState: the singleton sale-wide quota and counters
  - PurchaseRecord: the immutable event emitted per successful purchase

DESIGN PRINCIPLES:
  1. Exact arithmetic: decimal.Decimal holds integer base units; division
     always floors, never rounds. Downstream balance checks depend on the
     truncation bit-for-bit.
  2. Monotonic counters: Sold and PaymentReceived only ever grow.
  3. Type safety: Account, AssetID and TierNumber cannot be mixed up.

SEE ALSO:
  - engine.go:   the purchase state machine
  - pricing.go:  payment and fee computation
  - ledger.go:   asset ledger interface and store-backed implementation
  - registry.go: eligibility tier registry
*/
package sale

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Account identifies a participant, the receiving wallet, or the engine's
// own inventory holding.
type Account string

// AssetID identifies one of the two fungible assets handled by the engine.
type AssetID string

// TierNumber identifies an eligibility tier. Valid tiers are positive.
type TierNumber int

// =============================================================================
// AMOUNT - Integer quantity of asset base units
// =============================================================================

// Amount is a quantity of asset base units. The value is always a whole
// number; all arithmetic that could produce a fraction floors the result.
type Amount struct {
	Value decimal.Decimal
}

func NewAmount(v int64) Amount {
	return Amount{Value: decimal.NewFromInt(v)}
}

// ParseAmount parses a base-10 integer string into an Amount. Fractional
// values are rejected; base units are indivisible.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	if !d.IsInteger() {
		return Amount{}, fmt.Errorf("amount %s is not a whole number of base units: %w", s, ErrInvalidAmount)
	}
	return Amount{Value: d}, nil
}

// Units returns n whole asset units expressed in base units, i.e.
// n * 10^decimals. Mirrors how token amounts are quoted to users.
func Units(n int64, decimals int32) Amount {
	return Amount{Value: decimal.NewFromInt(n).Mul(decimal.New(1, decimals))}
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s)} }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) IsInteger() bool           { return a.Value.IsInteger() }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }

// FloorDiv divides a by b and truncates toward zero. Both operands are
// non-negative everywhere the engine uses this, so truncation is floor.
func (a Amount) FloorDiv(b decimal.Decimal) Amount {
	q, _ := a.Value.QuoRem(b, 0)
	return Amount{Value: q}
}

func (a Amount) String() string { return a.Value.String() }

// =============================================================================
// TIER STATE
// =============================================================================

// TierBounds is the registry-owned record for a tier: whether it exists and
// the [min, max] lifetime investment window, in payment-asset base units.
// The bound check applies to the fee-exclusive payment amount.
type TierBounds struct {
	Exists    bool
	MinAmount Amount
	MaxAmount Amount
}

// TierConfig is the engine-owned sale configuration and accounting for one
// tier. Start/Deadline/Fee/Quota are replaced by the manager via
// SetTierConfig; Sold and PaymentReceived are mutated only by Buy and
// survive configuration changes.
//
// INVARIANT: Sold <= Quota at all times.
type TierConfig struct {
	Tier     TierNumber
	Start    time.Time
	Deadline time.Time

	// Fee is the tier surcharge in parts-per-thousand. Zero means the
	// engine's base fee applies.
	Fee int64

	// Quota caps the sale-asset units sellable under this tier, across all
	// participants.
	Quota Amount

	Sold            Amount
	PaymentReceived Amount
}

// GlobalState is the singleton sale-wide quota and counters.
//
// INVARIANT: Sold <= Quota at all times.
type GlobalState struct {
	Quota           Amount
	Sold            Amount
	PaymentReceived Amount
}

// =============================================================================
// PURCHASE RECORD - Immutable event, one per successful purchase
// =============================================================================

type PurchaseRecord struct {
	ID                string
	Account           Account
	Tier              TierNumber
	SaleAmount        Amount
	Payment           Amount
	PaymentWithoutFee Amount
	At                time.Time
}

func newPurchaseID() string { return uuid.NewString() }

// PurchaseObserver receives each record after the purchase has committed.
type PurchaseObserver func(PurchaseRecord)

// =============================================================================
// CLOCK - Injectable time source for sale-window checks
// =============================================================================

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func SystemClock() Clock { return systemClock{} }

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock { return &FakeClock{now: t.UTC()} }

func (c *FakeClock) Now() time.Time            { return c.now }
func (c *FakeClock) SetNow(t time.Time)        { c.now = t.UTC() }
func (c *FakeClock) Advance(d time.Duration)   { c.now = c.now.Add(d) }
