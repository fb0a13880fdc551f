/*
errors.go - Centralized error taxonomy for the sale engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every rejected call carries exactly one of these classes; there are no
  partial successes and no internal retries.

ERROR CATEGORIES:
  1. Purchase validation - InvalidAmount, QuotaExceeded, WindowClosed,
     TierCapReached, GlobalCapReached
  2. Asset movement - TransferFailed (insufficient balance or allowance)
  3. Administration - Unauthorized, InvalidTier
  4. Lookup - TierNotFound, NoTier

USAGE:
  Callers branch with errors.Is():

    if errors.Is(err, sale.ErrTransferFailed) {
        // prompt the buyer to grant allowance
    }

SEE ALSO:
  - engine.go: the validation order that decides which class surfaces
*/
package sale

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when the requested sale amount is zero
	// or negative.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrQuotaExceeded is returned when the account has no tier, or the
	// purchase would push its lifetime fee-exclusive contribution outside
	// the tier's [min, max] bounds.
	ErrQuotaExceeded = errors.New("eligibility quota exceeded")

	// ErrWindowClosed is returned when the current time is outside the
	// tier's [start, deadline) sale window.
	ErrWindowClosed = errors.New("sale window closed")

	// ErrTierCapReached is returned when the purchase would exceed the
	// tier's cumulative sale quota.
	ErrTierCapReached = errors.New("tier sale quota reached")

	// ErrGlobalCapReached is returned when the purchase would exceed the
	// sale-wide quota.
	ErrGlobalCapReached = errors.New("global sale quota reached")

	// ErrTransferFailed is returned when an asset movement could not
	// complete. The engine never retries; retry is a fresh call.
	ErrTransferFailed = errors.New("asset transfer failed")

	// ErrUnauthorized is returned when an administrative call is made by a
	// caller without the manager capability.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTier is returned when an administrative call references a
	// tier number outside the fixed initialized set.
	ErrInvalidTier = errors.New("invalid tier")

	// ErrTierNotFound is returned on lookup of a tier record that does not
	// exist.
	ErrTierNotFound = errors.New("tier not found")

	// ErrNoTier is returned by the registry when an account has no tier
	// assigned. The engine folds this into ErrQuotaExceeded.
	ErrNoTier = errors.New("account has no tier")

	// ErrInsufficientBalance is the ledger-level shortfall error. The
	// engine surfaces it to buyers as ErrTransferFailed.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is the ledger-level allowance shortfall.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrAlreadyInitialized is returned when initialization runs twice
	// against a store that already holds a different sale definition.
	ErrAlreadyInitialized = errors.New("sale already initialized")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BoundsError reports a lifetime-investment bound violation.
type BoundsError struct {
	Account     Account
	Tier        TierNumber
	Prospective Amount
	Min         Amount
	Max         Amount
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("eligibility quota exceeded: account %s tier %d prospective %s outside [%s, %s]",
		e.Account, e.Tier, e.Prospective, e.Min, e.Max)
}

func (e *BoundsError) Unwrap() error { return ErrQuotaExceeded }

// CapError reports a tier or global quota violation.
type CapError struct {
	Tier      TierNumber // 0 for the global cap
	Sold      Amount
	Requested Amount
	Quota     Amount
}

func (e *CapError) Error() string {
	scope := "global"
	cause := ErrGlobalCapReached
	if e.Tier > 0 {
		scope = fmt.Sprintf("tier %d", e.Tier)
		cause = ErrTierCapReached
	}
	return fmt.Sprintf("%s: %s sold %s + requested %s > quota %s",
		cause, scope, e.Sold, e.Requested, e.Quota)
}

func (e *CapError) Unwrap() error {
	if e.Tier > 0 {
		return ErrTierCapReached
	}
	return ErrGlobalCapReached
}

// TransferError wraps a ledger failure with the movement that was attempted.
type TransferError struct {
	Asset  AssetID
	From   Account
	To     Account
	Amount Amount
	Cause  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("asset transfer failed: %s %s %s -> %s: %v",
		e.Amount, e.Asset, e.From, e.To, e.Cause)
}

// Unwrap exposes both the transfer-failure class and the ledger-level cause,
// so callers can match either with errors.Is.
func (e *TransferError) Unwrap() []error { return []error{ErrTransferFailed, e.Cause} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is a rejected purchase rather than
// an internal failure. Used by the API layer for status mapping.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrWindowClosed) ||
		errors.Is(err, ErrTierCapReached) ||
		errors.Is(err, ErrGlobalCapReached) ||
		errors.Is(err, ErrTransferFailed)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTierNotFound) || errors.Is(err, ErrNoTier)
}
