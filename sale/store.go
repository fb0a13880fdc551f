/*
store.go - Persistence interface for sale state

PURPOSE:
  Defines the interface between the engine and the database. Everything the
  engine mutates during a purchase lives behind this interface: asset
  balances, allowances, tier configurations, the global counters, the
  per-account contribution map, and the purchase log.

KEY INTERFACES:
  Store:   Read/write access to all sale state
  TxStore: Adds WithTx for atomic multi-write operations

ATOMICITY:
  Buy performs up to a dozen writes (two balance moves plus five counters
  plus the purchase log). TxStore.WithTx ensures all-or-nothing semantics:
  if the callback returns an error, none of its writes are visible.

PURCHASE LOG:
  Append-only. Records are never updated or deleted; the log exists for
  off-engine auditing and the read API.

IMPLEMENTATIONS:
  - sale/store/memory.go: in-memory, snapshot-rollback WithTx (tests/dev)
  - store/sqlite/sqlite.go: SQLite, WithTx via database transaction

SEE ALSO:
  - ledger.go: balance semantics layered on top of Balance/SetBalance
  - engine.go: runs every purchase inside WithTx
*/
package sale

import "context"

// Store persists all engine-owned state. Implementations return zero values
// (not errors) for absent balances, allowances and contributions; absent
// tier configs return ErrTierNotFound.
type Store interface {
	// Balances, per asset per account.
	Balance(ctx context.Context, asset AssetID, account Account) (Amount, error)
	SetBalance(ctx context.Context, asset AssetID, account Account, amount Amount) error

	// Allowances: how much spender may move out of owner's balance.
	Allowance(ctx context.Context, asset AssetID, owner, spender Account) (Amount, error)
	SetAllowance(ctx context.Context, asset AssetID, owner, spender Account, amount Amount) error

	// Tier sale configurations, one row per initialized tier.
	TierConfig(ctx context.Context, tier TierNumber) (TierConfig, error)
	PutTierConfig(ctx context.Context, cfg TierConfig) error
	ListTierConfigs(ctx context.Context) ([]TierConfig, error)

	// Global quota and counters (singleton row). An uninitialized store
	// returns a state with zero quota.
	GlobalState(ctx context.Context) (GlobalState, error)
	PutGlobalState(ctx context.Context, st GlobalState) error

	// Per-account cumulative fee-exclusive payment. Entries appear lazily
	// on first purchase; absent means zero.
	Contributed(ctx context.Context, account Account) (Amount, error)
	SetContributed(ctx context.Context, account Account, amount Amount) error

	// Purchase log. Append-only: no update, no delete.
	AppendPurchase(ctx context.Context, rec PurchaseRecord) error
	Purchases(ctx context.Context, account Account) ([]PurchaseRecord, error)
}

// TxStore wraps Store with transaction support.
//
// WithTx executes fn against a transactional view. If fn returns an error
// the transaction is rolled back and none of its writes are visible;
// otherwise it is committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
