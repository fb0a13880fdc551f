/*
engine.go - The purchase state machine

PURPOSE:
  Engine is the only writer of sale state. Buy validates a purchase request
  against eligibility, the tier's sale window, the tier quota and the global
  quota, computes the fee-inclusive payment, moves both assets and updates
  every counter as one atomic operation.

VALIDATION ORDER (load-bearing - it decides which error a caller observes
when several conditions are violated at once):
  1. saleAmount a positive whole number            -> ErrInvalidAmount
  2. tier assigned and lifetime bounds respected   -> ErrQuotaExceeded
  3. now inside [start, deadline)                  -> ErrWindowClosed
  4. tier sold + amount <= tier quota              -> ErrTierCapReached
  5. global sold + amount <= global quota          -> ErrGlobalCapReached
  6. payment debit (allowance-gated)               -> ErrTransferFailed
  7. sale credit from inventory                    -> ErrTransferFailed

ATOMICITY:
  The whole purchase runs inside TxStore.WithTx. Balance moves, counter
  updates and the purchase log entry commit together or not at all; a
  failed call leaves zero observable side effects. An engine-level mutex
  serializes calls so no two purchases interleave reads and writes of the
  same counters.

SEE ALSO:
  - pricing.go: the truncation contract for payment amounts
  - store.go:   the transactional store the engine runs against
*/
package sale

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// INITIALIZATION
// =============================================================================

// InitParams is the once-only sale definition. The fixed tier list, the
// receiving account, the base fee, the unit price and the global quota are
// all set here; only the tier configurations, price and base fee can be
// changed afterward, and only by the manager.
type InitParams struct {
	Store    TxStore
	Registry EligibilityRegistry

	PaymentAsset    AssetID
	PaymentDecimals int32
	SaleAsset       AssetID
	SaleDecimals    int32

	// ReceivingAccount collects payments; InventoryAccount holds the
	// pre-funded sale-asset inventory and acts as the engine's identity
	// for allowance-gated debits.
	ReceivingAccount Account
	InventoryAccount Account
	Manager          Account

	// Price in hundredths of a payment unit per sale unit; BaseFee in
	// parts-per-thousand.
	Price   int64
	BaseFee int64

	GlobalQuota Amount

	// Tiers is the fixed tier set with initial windows, fees and quotas.
	// Counters are zeroed; tiers cannot be added or removed later.
	Tiers []TierConfig

	Clock  Clock
	Logger *zap.Logger
}

// Engine orchestrates purchases over a transactional store and two
// store-backed asset ledgers.
type Engine struct {
	mu sync.Mutex

	store    TxStore
	registry EligibilityRegistry
	payment  *Ledger
	sale     *Ledger

	receiver  Account
	inventory Account
	manager   Account

	pricing Pricing

	// fixed set of initialized tier numbers
	tiers map[TierNumber]struct{}

	clock     Clock
	log       *zap.Logger
	observers []PurchaseObserver
}

// NewEngine validates the sale definition and seeds the store. Reopening a
// store that already holds this sale keeps its counters; reopening with a
// different global quota fails with ErrAlreadyInitialized.
func NewEngine(p InitParams) (*Engine, error) {
	switch {
	case p.Store == nil:
		return nil, errors.New("sale: store is required")
	case p.Registry == nil:
		return nil, errors.New("sale: registry is required")
	case p.PaymentAsset == "" || p.SaleAsset == "":
		return nil, errors.New("sale: both asset ids are required")
	case p.PaymentAsset == p.SaleAsset:
		return nil, errors.New("sale: payment and sale asset must differ")
	case p.PaymentDecimals < 2:
		// the price formula divides by 10^(paymentDecimals-2)
		return nil, errors.New("sale: payment asset needs at least 2 decimals")
	case p.SaleDecimals < 0:
		return nil, errors.New("sale: negative sale asset decimals")
	case p.ReceivingAccount == "" || p.InventoryAccount == "" || p.Manager == "":
		return nil, errors.New("sale: receiving, inventory and manager accounts are required")
	case p.Price <= 0:
		return nil, errors.New("sale: price must be positive")
	case p.BaseFee < 0:
		return nil, errors.New("sale: negative base fee")
	case !p.GlobalQuota.IsPositive():
		return nil, errors.New("sale: global quota must be positive")
	case len(p.Tiers) == 0:
		return nil, errors.New("sale: at least one tier is required")
	}

	if p.Clock == nil {
		p.Clock = SystemClock()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	e := &Engine{
		store:     p.Store,
		registry:  p.Registry,
		receiver:  p.ReceivingAccount,
		inventory: p.InventoryAccount,
		manager:   p.Manager,
		pricing: Pricing{
			Price:           p.Price,
			BaseFee:         p.BaseFee,
			PaymentDecimals: p.PaymentDecimals,
			SaleDecimals:    p.SaleDecimals,
		},
		tiers: make(map[TierNumber]struct{}, len(p.Tiers)),
		clock: p.Clock,
		log:   p.Logger,
	}
	e.payment = NewLedger(p.PaymentAsset, p.PaymentDecimals, p.Store)
	e.sale = NewLedger(p.SaleAsset, p.SaleDecimals, p.Store)

	for _, cfg := range p.Tiers {
		if cfg.Tier <= 0 {
			return nil, fmt.Errorf("sale: tier %d: %w", cfg.Tier, ErrInvalidTier)
		}
		if _, dup := e.tiers[cfg.Tier]; dup {
			return nil, fmt.Errorf("sale: duplicate tier %d: %w", cfg.Tier, ErrInvalidTier)
		}
		if cfg.Quota.IsNegative() {
			return nil, fmt.Errorf("sale: tier %d negative quota: %w", cfg.Tier, ErrInvalidTier)
		}
		e.tiers[cfg.Tier] = struct{}{}
	}

	if err := e.seed(context.Background(), p); err != nil {
		return nil, err
	}
	return e, nil
}

// seed writes the global state and tier rows on first initialization, and
// leaves existing counters untouched on reopen.
func (e *Engine) seed(ctx context.Context, p InitParams) error {
	return e.store.WithTx(ctx, func(s Store) error {
		g, err := s.GlobalState(ctx)
		if err != nil {
			return err
		}
		switch {
		case g.Quota.IsZero():
			g = GlobalState{
				Quota:           p.GlobalQuota,
				Sold:            ZeroAmount(),
				PaymentReceived: ZeroAmount(),
			}
			if err := s.PutGlobalState(ctx, g); err != nil {
				return err
			}
		case !g.Quota.Equal(p.GlobalQuota):
			return fmt.Errorf("sale: store holds quota %s, params say %s: %w",
				g.Quota, p.GlobalQuota, ErrAlreadyInitialized)
		}

		for _, cfg := range p.Tiers {
			if _, err := s.TierConfig(ctx, cfg.Tier); err == nil {
				continue // reopen: keep stored window and counters
			} else if !errors.Is(err, ErrTierNotFound) {
				return err
			}
			cfg.Sold = ZeroAmount()
			cfg.PaymentReceived = ZeroAmount()
			if err := s.PutTierConfig(ctx, cfg); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// PURCHASE
// =============================================================================

// Buy exchanges payment asset for saleAmount units of the sale asset on
// behalf of account. On success exactly the computed payment moved to the
// receiving account, exactly saleAmount moved to the buyer, and all five
// counters updated. On any failure nothing moved and no counter changed.
func (e *Engine) Buy(ctx context.Context, account Account, saleAmount Amount) (*PurchaseRecord, error) {
	rec, err := e.buy(ctx, account, saleAmount)
	if err != nil {
		e.log.Debug("purchase rejected",
			zap.String("account", string(account)),
			zap.String("amount", saleAmount.String()),
			zap.Error(err))
		return nil, err
	}

	e.log.Info("purchase",
		zap.String("account", string(rec.Account)),
		zap.Int("tier", int(rec.Tier)),
		zap.String("sale_amount", rec.SaleAmount.String()),
		zap.String("payment", rec.Payment.String()))

	for _, obs := range e.observers {
		obs(*rec)
	}
	return rec, nil
}

func (e *Engine) buy(ctx context.Context, account Account, saleAmount Amount) (*PurchaseRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Base units are indivisible; a fractional amount would leak fractions
	// into balances and counters.
	if !saleAmount.IsPositive() || !saleAmount.IsInteger() {
		return nil, fmt.Errorf("sale amount %s: %w", saleAmount, ErrInvalidAmount)
	}

	var rec *PurchaseRecord
	err := e.store.WithTx(ctx, func(s Store) error {
		// Eligibility: the account needs a tier, and its lifetime
		// fee-exclusive contribution must stay inside the tier bounds.
		tier, err := e.registry.TierOf(ctx, account)
		if err != nil {
			if errors.Is(err, ErrNoTier) {
				return fmt.Errorf("account %s: %w", account, ErrQuotaExceeded)
			}
			return err
		}
		bounds, err := e.registry.TierBounds(ctx, tier)
		if err != nil {
			if errors.Is(err, ErrTierNotFound) {
				return fmt.Errorf("account %s tier %d: %w", account, tier, ErrQuotaExceeded)
			}
			return err
		}
		if !bounds.Exists {
			return fmt.Errorf("account %s tier %d: %w", account, tier, ErrQuotaExceeded)
		}

		paymentWithoutFee := e.pricing.PaymentWithoutFee(saleAmount)

		contributed, err := s.Contributed(ctx, account)
		if err != nil {
			return err
		}
		prospective := contributed.Add(paymentWithoutFee)
		if prospective.LessThan(bounds.MinAmount) || prospective.GreaterThan(bounds.MaxAmount) {
			return &BoundsError{
				Account:     account,
				Tier:        tier,
				Prospective: prospective,
				Min:         bounds.MinAmount,
				Max:         bounds.MaxAmount,
			}
		}

		// Sale window.
		cfg, err := s.TierConfig(ctx, tier)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		if now.Before(cfg.Start) || !now.Before(cfg.Deadline) {
			return fmt.Errorf("tier %d window [%s, %s) at %s: %w",
				tier, cfg.Start.Format(time.RFC3339), cfg.Deadline.Format(time.RFC3339),
				now.Format(time.RFC3339), ErrWindowClosed)
		}

		// Tier quota, then global quota.
		if cfg.Sold.Add(saleAmount).GreaterThan(cfg.Quota) {
			return &CapError{Tier: tier, Sold: cfg.Sold, Requested: saleAmount, Quota: cfg.Quota}
		}
		global, err := s.GlobalState(ctx)
		if err != nil {
			return err
		}
		if global.Sold.Add(saleAmount).GreaterThan(global.Quota) {
			return &CapError{Sold: global.Sold, Requested: saleAmount, Quota: global.Quota}
		}

		payment := e.pricing.ApplyFee(paymentWithoutFee, cfg.Fee)

		// Asset movement. Both transfers are inside the store transaction,
		// so a failure of either rolls back the other.
		payLedger := e.payment.WithStore(s)
		if err := payLedger.TransferFrom(ctx, e.inventory, account, e.receiver, payment); err != nil {
			return &TransferError{
				Asset: e.payment.Asset(), From: account, To: e.receiver,
				Amount: payment, Cause: err,
			}
		}
		saleLedger := e.sale.WithStore(s)
		if err := saleLedger.Transfer(ctx, e.inventory, account, saleAmount); err != nil {
			return &TransferError{
				Asset: e.sale.Asset(), From: e.inventory, To: account,
				Amount: saleAmount, Cause: err,
			}
		}

		// Counters, in order, same transaction.
		if err := s.SetContributed(ctx, account, prospective); err != nil {
			return err
		}
		cfg.Sold = cfg.Sold.Add(saleAmount)
		cfg.PaymentReceived = cfg.PaymentReceived.Add(payment)
		if err := s.PutTierConfig(ctx, cfg); err != nil {
			return err
		}
		global.Sold = global.Sold.Add(saleAmount)
		global.PaymentReceived = global.PaymentReceived.Add(payment)
		if err := s.PutGlobalState(ctx, global); err != nil {
			return err
		}

		rec = &PurchaseRecord{
			ID:                newPurchaseID(),
			Account:           account,
			Tier:              tier,
			SaleAmount:        saleAmount,
			Payment:           payment,
			PaymentWithoutFee: paymentWithoutFee,
			At:                now,
		}
		return s.AppendPurchase(ctx, *rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// =============================================================================
// ADMINISTRATION - manager capability required
// =============================================================================

// SetTierConfig replaces the window, fee and quota of an initialized tier.
// Sold and PaymentReceived are preserved, so the setter is safe mid-sale.
func (e *Engine) SetTierConfig(ctx context.Context, caller Account, tier TierNumber, start, deadline time.Time, fee int64, quota Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.manager {
		return fmt.Errorf("caller %s: %w", caller, ErrUnauthorized)
	}
	if _, ok := e.tiers[tier]; !ok {
		return fmt.Errorf("tier %d: %w", tier, ErrInvalidTier)
	}
	if fee < 0 || quota.IsNegative() {
		return fmt.Errorf("tier %d: negative fee or quota: %w", tier, ErrInvalidAmount)
	}

	return e.store.WithTx(ctx, func(s Store) error {
		cfg, err := s.TierConfig(ctx, tier)
		if err != nil {
			return err
		}
		cfg.Start = start
		cfg.Deadline = deadline
		cfg.Fee = fee
		cfg.Quota = quota
		return s.PutTierConfig(ctx, cfg)
	})
}

// SetPrice replaces the unit price for subsequent purchases.
func (e *Engine) SetPrice(caller Account, price int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.manager {
		return fmt.Errorf("caller %s: %w", caller, ErrUnauthorized)
	}
	if price <= 0 {
		return fmt.Errorf("price %d: %w", price, ErrInvalidAmount)
	}
	e.pricing.Price = price
	return nil
}

// SetBaseFee replaces the fallback surcharge for subsequent purchases.
func (e *Engine) SetBaseFee(caller Account, fee int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.manager {
		return fmt.Errorf("caller %s: %w", caller, ErrUnauthorized)
	}
	if fee < 0 {
		return fmt.Errorf("fee %d: %w", fee, ErrInvalidAmount)
	}
	e.pricing.BaseFee = fee
	return nil
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

// GetTierConfig returns the full tier record including counters.
func (e *Engine) GetTierConfig(ctx context.Context, tier TierNumber) (TierConfig, error) {
	return e.store.TierConfig(ctx, tier)
}

// TierConfigs returns every initialized tier record.
func (e *Engine) TierConfigs(ctx context.Context) ([]TierConfig, error) {
	return e.store.ListTierConfigs(ctx)
}

// GlobalSale returns the global quota and counters.
func (e *Engine) GlobalSale(ctx context.Context) (GlobalState, error) {
	return e.store.GlobalState(ctx)
}

// Contributed returns the account's lifetime fee-exclusive payment total.
func (e *Engine) Contributed(ctx context.Context, account Account) (Amount, error) {
	return e.store.Contributed(ctx, account)
}

// Purchases returns the purchase log, optionally filtered by account.
func (e *Engine) Purchases(ctx context.Context, account Account) ([]PurchaseRecord, error) {
	return e.store.Purchases(ctx, account)
}

func (e *Engine) Price() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pricing.Price
}

func (e *Engine) BaseFee() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pricing.BaseFee
}

func (e *Engine) PaymentLedger() *Ledger    { return e.payment }
func (e *Engine) Manager() Account          { return e.manager }
func (e *Engine) SaleLedger() *Ledger       { return e.sale }
func (e *Engine) ReceivingAccount() Account { return e.receiver }
func (e *Engine) InventoryAccount() Account { return e.inventory }
func (e *Engine) Registry() EligibilityRegistry { return e.registry }

// Subscribe registers an observer for successful purchases. Not safe to
// call concurrently with Buy; wire observers before serving traffic.
func (e *Engine) Subscribe(obs PurchaseObserver) {
	e.observers = append(e.observers, obs)
}
