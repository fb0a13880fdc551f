/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Pre-built scenarios that seed the sale with realistic data for demos.
  Each scenario grants tiers, funds accounts with the payment asset,
  grants allowances and optionally performs a few purchases.

AVAILABLE SCENARIOS:
  fresh-sale:   Funded participants across tiers, no purchases yet
  active-sale:  Participants mid-sale with several completed purchases

NOTE:
  Scenarios mint assets. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: shared helpers and error mapping
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/sale-engine/sale"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-sale",
		Name:        "Fresh Sale",
		Description: "Participants across tiers funded and approved, nothing sold yet",
	},
	{
		ID:          "active-sale",
		Name:        "Active Sale",
		Description: "Participants funded with several purchases already completed",
	},
}

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds the selected scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-sale":
		err = h.loadFreshSale(r.Context())
	case "active-sale":
		err = h.loadActiveSale(r.Context())
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

type seedAccount struct {
	account sale.Account
	tier    sale.TierNumber
	funding int64 // whole payment units
}

var demoAccounts = []seedAccount{
	{"alice", 1, 5_000},
	{"bob", 1, 1_200},
	{"carol", 2, 20_000},
	{"dave", 3, 100_000},
}

func (h *Handler) loadFreshSale(ctx context.Context) error {
	payment := h.Engine.PaymentLedger()
	saleAsset := h.Engine.SaleLedger()

	// Inventory for the engine to sell out of.
	if err := saleAsset.Mint(ctx, h.Engine.InventoryAccount(), sale.Units(1_000_000, saleAsset.Decimals())); err != nil {
		return err
	}

	for _, a := range demoAccounts {
		if h.Granter != nil {
			// Scenario seeding acts with the manager capability.
			if err := h.Granter.GiveTier(ctx, h.managerForSeeding(), a.account, a.tier); err != nil {
				return err
			}
		}
		funding := sale.Units(a.funding, payment.Decimals())
		if err := payment.Mint(ctx, a.account, funding); err != nil {
			return err
		}
		if err := payment.Approve(ctx, a.account, h.Engine.InventoryAccount(), funding); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadActiveSale(ctx context.Context) error {
	if err := h.loadFreshSale(ctx); err != nil {
		return err
	}

	purchases := []struct {
		account sale.Account
		units   int64
	}{
		{"alice", 100},
		{"carol", 1_000},
		{"dave", 5_000},
	}
	for _, p := range purchases {
		amount := sale.Units(p.units, h.Engine.SaleLedger().Decimals())
		if _, err := h.Engine.Buy(ctx, p.account, amount); err != nil {
			return fmt.Errorf("seeding purchase for %s: %w", p.account, err)
		}
	}
	return nil
}

// managerForSeeding returns the account scenarios use for registry grants.
func (h *Handler) managerForSeeding() sale.Account {
	return h.Engine.Manager()
}
