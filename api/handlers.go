/*
handlers.go - HTTP API handlers for the sale engine

PURPOSE:
  Exposes the purchase engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine, registry and ledgers.

ENDPOINTS:
  Purchases:
    POST   /api/purchases              Execute a purchase
    GET    /api/purchases?account=     Purchase log

  Sale state:
    GET    /api/sale                   Global quota, counters, price, fee
    GET    /api/tiers                  All tier configurations
    GET    /api/tiers/{n}              One tier configuration
    PUT    /api/tiers/{n}              Replace window/fee/quota (manager)

  Accounts:
    GET    /api/accounts/{id}          Balances, tier, contribution
    POST   /api/accounts/{id}/approve  Grant payment allowance to the engine

  Admin (manager capability via X-Manager-Account):
    POST   /api/admin/price            Set unit price
    POST   /api/admin/fee              Set base fee
    POST   /api/admin/tiers/grant      Assign a tier to an account
    POST   /api/admin/mint             Dev funding of either asset

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Seed a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with the taxonomy code and a status derived
  from the error class:
  - 400: invalid amount or malformed input
  - 403: missing manager capability
  - 404: unknown tier or account record
  - 409: quota, window, cap and transfer rejections
  - 500: internal errors

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/sale-engine/metrics"
	"github.com/warp/sale-engine/sale"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// TierGranter is the registry's administrative surface consumed by the API.
type TierGranter interface {
	GiveTier(ctx context.Context, caller, account sale.Account, tier sale.TierNumber) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *sale.Engine
	Granter TierGranter
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

func NewHandler(engine *sale.Engine, granter TierGranter, m *metrics.Metrics, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, Granter: granter, Metrics: m, Log: log}
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// Purchase executes a buy.
// POST /api/purchases
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "account is required", nil)
		return
	}
	amount, err := sale.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	rec, err := h.Engine.Buy(r.Context(), sale.Account(req.Account), amount)
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.RecordFailure(err)
		}
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPurchaseDTO(*rec))
}

// ListPurchases returns the purchase log, optionally filtered by account.
// GET /api/purchases?account=
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	account := sale.Account(r.URL.Query().Get("account"))

	recs, err := h.Engine.Purchases(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list purchases", err)
		return
	}

	dtos := make([]PurchaseDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toPurchaseDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SALE STATE HANDLERS
// =============================================================================

// GetSale returns the global sale state.
// GET /api/sale
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	st, err := h.Engine.GlobalSale(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load sale state", err)
		return
	}

	writeJSON(w, http.StatusOK, SaleStateDTO{
		Price:           h.Engine.Price(),
		BaseFee:         h.Engine.BaseFee(),
		GlobalQuota:     st.Quota.String(),
		Sold:            st.Sold.String(),
		PaymentReceived: st.PaymentReceived.String(),
	})
}

// ListTiers returns every tier configuration.
// GET /api/tiers
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.Engine.TierConfigs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tiers", err)
		return
	}

	dtos := make([]TierConfigDTO, len(cfgs))
	for i, cfg := range cfgs {
		dtos[i] = toTierConfigDTO(cfg)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTier returns one tier configuration.
// GET /api/tiers/{n}
func (h *Handler) GetTier(w http.ResponseWriter, r *http.Request) {
	tier, ok := tierParam(w, r)
	if !ok {
		return
	}

	cfg, err := h.Engine.GetTierConfig(r.Context(), tier)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTierConfigDTO(cfg))
}

// SetTier replaces a tier's window, fee and quota. Manager only.
// PUT /api/tiers/{n}
func (h *Handler) SetTier(w http.ResponseWriter, r *http.Request) {
	tier, ok := tierParam(w, r)
	if !ok {
		return
	}

	var req SetTierConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start (use RFC3339)", err)
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid deadline (use RFC3339)", err)
		return
	}
	quota, err := sale.ParseAmount(req.Quota)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quota", err)
		return
	}

	err = h.Engine.SetTierConfig(r.Context(), managerAccount(r), tier, start, deadline, req.Fee, quota)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	cfg, err := h.Engine.GetTierConfig(r.Context(), tier)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTierConfigDTO(cfg))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// GetAccount returns balances, allowance, contribution and tier.
// GET /api/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := sale.Account(chi.URLParam(r, "id"))

	paymentBal, err := h.Engine.PaymentLedger().BalanceOf(ctx, account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load balances", err)
		return
	}
	saleBal, err := h.Engine.SaleLedger().BalanceOf(ctx, account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load balances", err)
		return
	}
	contributed, err := h.Engine.Contributed(ctx, account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load contribution", err)
		return
	}
	allowance, err := h.Engine.PaymentLedger().Allowance(ctx, account, h.Engine.InventoryAccount())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load allowance", err)
		return
	}

	dto := AccountDTO{
		Account:        string(account),
		PaymentBalance: paymentBal.String(),
		SaleBalance:    saleBal.String(),
		Contributed:    contributed.String(),
		Allowance:      allowance.String(),
	}
	if tier, err := h.Engine.Registry().TierOf(ctx, account); err == nil {
		n := int(tier)
		dto.Tier = &n
	}
	writeJSON(w, http.StatusOK, dto)
}

// Approve grants the engine allowance over the account's payment balance.
// POST /api/accounts/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	account := sale.Account(chi.URLParam(r, "id"))

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := sale.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	err = h.Engine.PaymentLedger().Approve(r.Context(), account, h.Engine.InventoryAccount(), amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS - manager capability checked by the engine/registry
// =============================================================================

// SetPrice replaces the unit price.
// POST /api/admin/price
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req SetPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Engine.SetPrice(managerAccount(r), req.Price); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetBaseFee replaces the fallback surcharge.
// POST /api/admin/fee
func (h *Handler) SetBaseFee(w http.ResponseWriter, r *http.Request) {
	var req SetFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Engine.SetBaseFee(managerAccount(r), req.Fee); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GrantTier assigns a tier to an account in the registry.
// POST /api/admin/tiers/grant
func (h *Handler) GrantTier(w http.ResponseWriter, r *http.Request) {
	if h.Granter == nil {
		writeError(w, http.StatusNotImplemented, "Registry is not managed by this server", nil)
		return
	}

	var req GrantTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Granter.GiveTier(r.Context(), managerAccount(r), sale.Account(req.Account), sale.TierNumber(req.Tier))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Mint credits units of either asset to an account. Dev funding only.
// POST /api/admin/mint
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := sale.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	var ledger *sale.Ledger
	switch req.Asset {
	case "payment":
		ledger = h.Engine.PaymentLedger()
	case "sale":
		ledger = h.Engine.SaleLedger()
	default:
		writeError(w, http.StatusBadRequest, `asset must be "payment" or "sale"`, nil)
		return
	}

	if err := ledger.Mint(r.Context(), sale.Account(req.Account), amount); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// managerAccount identifies the administrative caller. The engine decides
// whether that account actually holds the manager capability.
func managerAccount(r *http.Request) sale.Account {
	return sale.Account(r.Header.Get("X-Manager-Account"))
}

func tierParam(w http.ResponseWriter, r *http.Request) (sale.TierNumber, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid tier number", err)
		return 0, false
	}
	return sale.TierNumber(n), true
}

// writeEngineError maps the error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sale.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, sale.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, sale.ErrInvalidTier), sale.IsNotFound(err):
		status = http.StatusNotFound
	case sale.IsClientError(err):
		status = http.StatusConflict
	}
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    errorCode(err),
		Details: err.Error(),
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, sale.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, sale.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, sale.ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, sale.ErrTierCapReached):
		return "tier_cap_reached"
	case errors.Is(err, sale.ErrGlobalCapReached):
		return "global_cap_reached"
	case errors.Is(err, sale.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, sale.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, sale.ErrInvalidTier):
		return "invalid_tier"
	// Buy folds ErrNoTier into ErrQuotaExceeded, so IsNotFound only fires
	// on the tier and account read endpoints.
	case sale.IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
