/*
ledger.go - Fungible asset ledger

PURPOSE:
  The engine consumes two asset ledgers: one for the payment asset and one
  for the sale asset. The interface is the boundary the engine depends on;
  the store-backed Ledger below is the shipped implementation, so balance
  moves commit or roll back together with the engine's counters.

SEMANTICS:
  - Transfer moves from one balance to another; fails on shortfall.
  - TransferFrom is allowance-gated: the spender must have been granted
    allowance by the owner, and the allowance is reduced by the move.
  - Balances never go negative. Direct balance mutation is disallowed;
    every movement goes through a transfer primitive.

SEE ALSO:
  - store.go: where balances and allowances actually live
  - engine.go: the only caller that moves the inventory or receiver funds
*/
package sale

import (
	"context"
	"fmt"
)

// =============================================================================
// ASSET LEDGER - Interface consumed by the engine
// =============================================================================

// AssetLedger is a fungible balance ledger for a single asset.
type AssetLedger interface {
	// BalanceOf returns the account's balance; absent accounts hold zero.
	BalanceOf(ctx context.Context, account Account) (Amount, error)

	// Transfer moves amount from one account's own balance to another.
	Transfer(ctx context.Context, from, to Account, amount Amount) error

	// TransferFrom moves amount from owner to recipient on behalf of
	// spender, consuming spender's allowance from owner.
	TransferFrom(ctx context.Context, spender, owner, to Account, amount Amount) error

	// Approve grants spender the right to move up to amount out of owner's
	// balance. Replaces any previous allowance.
	Approve(ctx context.Context, owner, spender Account, amount Amount) error

	// Allowance returns the remaining amount spender may move from owner.
	Allowance(ctx context.Context, owner, spender Account) (Amount, error)

	// Mint credits freshly issued units to an account. Used to pre-fund
	// the engine's inventory and for dev/test seeding.
	Mint(ctx context.Context, to Account, amount Amount) error

	// Decimals returns the asset's configured precision.
	Decimals() int32
}

// =============================================================================
// LEDGER - Store-backed implementation
// =============================================================================

// Ledger implements AssetLedger on top of a Store. Binding a Ledger to a
// transactional store view makes its movements part of that transaction.
type Ledger struct {
	asset    AssetID
	decimals int32
	store    Store
}

func NewLedger(asset AssetID, decimals int32, store Store) *Ledger {
	return &Ledger{asset: asset, decimals: decimals, store: store}
}

// WithStore returns a ledger over the same asset bound to a different store,
// typically a transactional view inside TxStore.WithTx.
func (l *Ledger) WithStore(s Store) *Ledger {
	return &Ledger{asset: l.asset, decimals: l.decimals, store: s}
}

func (l *Ledger) Asset() AssetID  { return l.asset }
func (l *Ledger) Decimals() int32 { return l.decimals }

func (l *Ledger) BalanceOf(ctx context.Context, account Account) (Amount, error) {
	return l.store.Balance(ctx, l.asset, account)
}

func (l *Ledger) Transfer(ctx context.Context, from, to Account, amount Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("transfer of negative amount %s: %w", amount, ErrInvalidAmount)
	}
	return l.move(ctx, from, to, amount)
}

func (l *Ledger) TransferFrom(ctx context.Context, spender, owner, to Account, amount Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("transfer of negative amount %s: %w", amount, ErrInvalidAmount)
	}
	allowance, err := l.store.Allowance(ctx, l.asset, owner, spender)
	if err != nil {
		return err
	}
	if allowance.LessThan(amount) {
		return fmt.Errorf("spender %s allowance %s < %s: %w",
			spender, allowance, amount, ErrInsufficientAllowance)
	}
	if err := l.move(ctx, owner, to, amount); err != nil {
		return err
	}
	return l.store.SetAllowance(ctx, l.asset, owner, spender, allowance.Sub(amount))
}

func (l *Ledger) Approve(ctx context.Context, owner, spender Account, amount Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("approve of negative amount %s: %w", amount, ErrInvalidAmount)
	}
	return l.store.SetAllowance(ctx, l.asset, owner, spender, amount)
}

func (l *Ledger) Allowance(ctx context.Context, owner, spender Account) (Amount, error) {
	return l.store.Allowance(ctx, l.asset, owner, spender)
}

func (l *Ledger) Mint(ctx context.Context, to Account, amount Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("mint of negative amount %s: %w", amount, ErrInvalidAmount)
	}
	balance, err := l.store.Balance(ctx, l.asset, to)
	if err != nil {
		return err
	}
	return l.store.SetBalance(ctx, l.asset, to, balance.Add(amount))
}

func (l *Ledger) move(ctx context.Context, from, to Account, amount Amount) error {
	fromBal, err := l.store.Balance(ctx, l.asset, from)
	if err != nil {
		return err
	}
	if fromBal.LessThan(amount) {
		return fmt.Errorf("account %s balance %s < %s: %w",
			from, fromBal, amount, ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	toBal, err := l.store.Balance(ctx, l.asset, to)
	if err != nil {
		return err
	}
	if err := l.store.SetBalance(ctx, l.asset, from, fromBal.Sub(amount)); err != nil {
		return err
	}
	return l.store.SetBalance(ctx, l.asset, to, toBal.Add(amount))
}
