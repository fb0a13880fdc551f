// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/sale-engine/sale"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	balances    map[balanceKey]sale.Amount
	allowances  map[allowanceKey]sale.Amount
	tiers       map[sale.TierNumber]sale.TierConfig
	global      sale.GlobalState
	hasGlobal   bool
	contributed map[sale.Account]sale.Amount
	purchases   []sale.PurchaseRecord
}

type balanceKey struct {
	Asset   sale.AssetID
	Account sale.Account
}

type allowanceKey struct {
	Asset   sale.AssetID
	Owner   sale.Account
	Spender sale.Account
}

func NewMemory() *Memory {
	return &Memory{
		balances:    make(map[balanceKey]sale.Amount),
		allowances:  make(map[allowanceKey]sale.Amount),
		tiers:       make(map[sale.TierNumber]sale.TierConfig),
		contributed: make(map[sale.Account]sale.Amount),
	}
}

func (m *Memory) Balance(_ context.Context, asset sale.AssetID, account sale.Account) (sale.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.amountOrZero(m.balances[balanceKey{asset, account}]), nil
}

func (m *Memory) SetBalance(_ context.Context, asset sale.AssetID, account sale.Account, amount sale.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey{asset, account}] = amount
	return nil
}

func (m *Memory) Allowance(_ context.Context, asset sale.AssetID, owner, spender sale.Account) (sale.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.amountOrZero(m.allowances[allowanceKey{asset, owner, spender}]), nil
}

func (m *Memory) SetAllowance(_ context.Context, asset sale.AssetID, owner, spender sale.Account, amount sale.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{asset, owner, spender}] = amount
	return nil
}

func (m *Memory) TierConfig(_ context.Context, tier sale.TierNumber) (sale.TierConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.tiers[tier]
	if !ok {
		return sale.TierConfig{}, fmt.Errorf("tier %d: %w", tier, sale.ErrTierNotFound)
	}
	return cfg, nil
}

func (m *Memory) PutTierConfig(_ context.Context, cfg sale.TierConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[cfg.Tier] = cfg
	return nil
}

func (m *Memory) ListTierConfigs(_ context.Context) ([]sale.TierConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]sale.TierConfig, 0, len(m.tiers))
	for _, cfg := range m.tiers {
		out = append(out, cfg)
	}
	return out, nil
}

func (m *Memory) GlobalState(_ context.Context) (sale.GlobalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasGlobal {
		return sale.GlobalState{
			Quota:           sale.ZeroAmount(),
			Sold:            sale.ZeroAmount(),
			PaymentReceived: sale.ZeroAmount(),
		}, nil
	}
	return m.global, nil
}

func (m *Memory) PutGlobalState(_ context.Context, st sale.GlobalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = st
	m.hasGlobal = true
	return nil
}

func (m *Memory) Contributed(_ context.Context, account sale.Account) (sale.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.amountOrZero(m.contributed[account]), nil
}

func (m *Memory) SetContributed(_ context.Context, account sale.Account, amount sale.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contributed[account] = amount
	return nil
}

// AppendPurchase records a purchase. Append-only.
func (m *Memory) AppendPurchase(_ context.Context, rec sale.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = append(m.purchases, rec)
	return nil
}

func (m *Memory) Purchases(_ context.Context, account sale.Account) ([]sale.PurchaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []sale.PurchaseRecord
	for _, rec := range m.purchases {
		if account == "" || rec.Account == account {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Zero-value Amounts carry a nil decimal; normalize so callers can do
// arithmetic on absent entries.
func (m *Memory) amountOrZero(a sale.Amount) sale.Amount {
	if a == (sale.Amount{}) {
		return sale.ZeroAmount()
	}
	return a
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. For the memory store this is
// simulated with a snapshot taken up front and restored on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(sale.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		balances:    make(map[balanceKey]sale.Amount, len(tm.balances)),
		allowances:  make(map[allowanceKey]sale.Amount, len(tm.allowances)),
		tiers:       make(map[sale.TierNumber]sale.TierConfig, len(tm.tiers)),
		global:      tm.global,
		hasGlobal:   tm.hasGlobal,
		contributed: make(map[sale.Account]sale.Amount, len(tm.contributed)),
		purchases:   append([]sale.PurchaseRecord{}, tm.purchases...),
	}
	for k, v := range tm.balances {
		s.balances[k] = v
	}
	for k, v := range tm.allowances {
		s.allowances[k] = v
	}
	for k, v := range tm.tiers {
		s.tiers[k] = v
	}
	for k, v := range tm.contributed {
		s.contributed[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.balances = s.balances
	tm.allowances = s.allowances
	tm.tiers = s.tiers
	tm.global = s.global
	tm.hasGlobal = s.hasGlobal
	tm.contributed = s.contributed
	tm.purchases = s.purchases
}

type memorySnapshot struct {
	balances    map[balanceKey]sale.Amount
	allowances  map[allowanceKey]sale.Amount
	tiers       map[sale.TierNumber]sale.TierConfig
	global      sale.GlobalState
	hasGlobal   bool
	contributed map[sale.Account]sale.Amount
	purchases   []sale.PurchaseRecord
}
