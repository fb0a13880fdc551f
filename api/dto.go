/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
  Amounts travel as base-10 integer strings so no precision is lost in JSON.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/sale-engine/sale"
)

// =============================================================================
// PURCHASE
// =============================================================================

type PurchaseRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"` // sale-asset base units
}

type PurchaseDTO struct {
	ID                string `json:"id"`
	Account           string `json:"account"`
	Tier              int    `json:"tier"`
	SaleAmount        string `json:"sale_amount"`
	Payment           string `json:"payment"`
	PaymentWithoutFee string `json:"payment_without_fee"`
	At                string `json:"at"`
}

func toPurchaseDTO(rec sale.PurchaseRecord) PurchaseDTO {
	return PurchaseDTO{
		ID:                rec.ID,
		Account:           string(rec.Account),
		Tier:              int(rec.Tier),
		SaleAmount:        rec.SaleAmount.String(),
		Payment:           rec.Payment.String(),
		PaymentWithoutFee: rec.PaymentWithoutFee.String(),
		At:                rec.At.Format(time.RFC3339Nano),
	}
}

// =============================================================================
// SALE STATE
// =============================================================================

type SaleStateDTO struct {
	Price           int64  `json:"price"`
	BaseFee         int64  `json:"base_fee"`
	GlobalQuota     string `json:"global_quota"`
	Sold            string `json:"sold"`
	PaymentReceived string `json:"payment_received"`
}

type TierConfigDTO struct {
	Tier            int    `json:"tier"`
	Start           string `json:"start"`
	Deadline        string `json:"deadline"`
	Fee             int64  `json:"fee"`
	Quota           string `json:"quota"`
	Sold            string `json:"sold"`
	PaymentReceived string `json:"payment_received"`
}

func toTierConfigDTO(cfg sale.TierConfig) TierConfigDTO {
	return TierConfigDTO{
		Tier:            int(cfg.Tier),
		Start:           cfg.Start.Format(time.RFC3339),
		Deadline:        cfg.Deadline.Format(time.RFC3339),
		Fee:             cfg.Fee,
		Quota:           cfg.Quota.String(),
		Sold:            cfg.Sold.String(),
		PaymentReceived: cfg.PaymentReceived.String(),
	}
}

type SetTierConfigRequest struct {
	Start    string `json:"start"`    // RFC3339
	Deadline string `json:"deadline"` // RFC3339
	Fee      int64  `json:"fee"`
	Quota    string `json:"quota"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	Account        string `json:"account"`
	Tier           *int   `json:"tier,omitempty"`
	PaymentBalance string `json:"payment_balance"`
	SaleBalance    string `json:"sale_balance"`
	Contributed    string `json:"contributed"`
	Allowance      string `json:"allowance"`
}

type ApproveRequest struct {
	Amount string `json:"amount"`
}

// =============================================================================
// ADMIN
// =============================================================================

type SetPriceRequest struct {
	Price int64 `json:"price"`
}

type SetFeeRequest struct {
	Fee int64 `json:"fee"`
}

type GrantTierRequest struct {
	Account string `json:"account"`
	Tier    int    `json:"tier"`
}

type MintRequest struct {
	Asset   string `json:"asset"` // "payment" or "sale"
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
