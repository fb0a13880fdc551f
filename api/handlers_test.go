package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sale-engine/sale"
	memstore "github.com/warp/sale-engine/sale/store"
)

// =============================================================================
// TEST FIXTURE
// =============================================================================

const (
	testManager   = "manager"
	testTreasury  = "treasury"
	testInventory = "pool"
)

var testWindowStart = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

type apiFixture struct {
	t      *testing.T
	router http.Handler
	engine *sale.Engine
	clock  *sale.FakeClock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	registry, err := sale.NewMemoryRegistry(testManager, []sale.TierDef{
		{Tier: 1, MinAmount: sale.Units(10, 18), MaxAmount: sale.Units(5_000, 18)},
		{Tier: 2, MinAmount: sale.Units(100, 18), MaxAmount: sale.Units(50_000, 18)},
		{Tier: 3, MinAmount: sale.Units(1_000, 18), MaxAmount: sale.Units(500_000, 18)},
	})
	require.NoError(t, err)

	clock := sale.NewFakeClock(testWindowStart.Add(time.Hour))
	deadline := testWindowStart.Add(30 * 24 * time.Hour)

	engine, err := sale.NewEngine(sale.InitParams{
		Store:            memstore.NewTxMemory(),
		Registry:         registry,
		PaymentAsset:     "usd-token",
		PaymentDecimals:  18,
		SaleAsset:        "pool-token",
		SaleDecimals:     18,
		ReceivingAccount: testTreasury,
		InventoryAccount: testInventory,
		Manager:          testManager,
		Price:            100,
		BaseFee:          0,
		GlobalQuota:      sale.Units(150_000, 18),
		Tiers: []sale.TierConfig{
			{Tier: 1, Start: testWindowStart, Deadline: deadline, Quota: sale.Units(50_000, 18)},
			{Tier: 2, Start: testWindowStart, Deadline: deadline, Quota: sale.Units(50_000, 18)},
			{Tier: 3, Start: testWindowStart, Deadline: deadline, Quota: sale.Units(50_000, 18)},
		},
		Clock: clock,
	})
	require.NoError(t, err)

	h := NewHandler(engine, registry, nil, nil)
	return &apiFixture{
		t:      t,
		router: NewRouter(h, nil),
		engine: engine,
		clock:  clock,
	}
}

// do sends a JSON request through the router. A non-empty manager account is
// attached as the X-Manager-Account header.
func (f *apiFixture) do(method, path string, body any, manager string) *httptest.ResponseRecorder {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if manager != "" {
		req.Header.Set("X-Manager-Account", manager)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) decode(rec *httptest.ResponseRecorder, out any) {
	f.t.Helper()
	require.NoError(f.t, json.NewDecoder(rec.Body).Decode(out))
}

// seedBuyer grants a tier, funds the account and approves the engine, using
// the same admin endpoints a demo client would.
func (f *apiFixture) seedBuyer(account string, tier int, units int64) {
	f.t.Helper()

	rec := f.do(http.MethodPost, "/api/admin/tiers/grant",
		GrantTierRequest{Account: account, Tier: tier}, testManager)
	require.Equal(f.t, http.StatusNoContent, rec.Code, rec.Body.String())

	funding := sale.Units(units, 18).String()
	rec = f.do(http.MethodPost, "/api/admin/mint",
		MintRequest{Asset: "payment", Account: account, Amount: funding}, "")
	require.Equal(f.t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, fmt.Sprintf("/api/accounts/%s/approve", account),
		ApproveRequest{Amount: funding}, "")
	require.Equal(f.t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func (f *apiFixture) seedInventory(units int64) {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/admin/mint",
		MintRequest{Asset: "sale", Account: testInventory, Amount: sale.Units(units, 18).String()}, "")
	require.Equal(f.t, http.StatusNoContent, rec.Code, rec.Body.String())
}

// =============================================================================
// PURCHASE FLOW
// =============================================================================

func TestAPI_PurchaseFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.seedInventory(1_000_000)
	f.seedBuyer("alice", 2, 10_000)

	// WHEN: alice buys 500 sale units
	rec := f.do(http.MethodPost, "/api/purchases",
		PurchaseRequest{Account: "alice", Amount: sale.Units(500, 18).String()}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var purchase PurchaseDTO
	f.decode(rec, &purchase)
	assert.NotEmpty(t, purchase.ID)
	assert.Equal(t, "alice", purchase.Account)
	assert.Equal(t, 2, purchase.Tier)
	assert.Equal(t, sale.Units(500, 18).String(), purchase.SaleAmount)
	assert.Equal(t, sale.Units(500, 18).String(), purchase.Payment)

	// THEN: the sale state reflects the purchase
	rec = f.do(http.MethodGet, "/api/sale", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st SaleStateDTO
	f.decode(rec, &st)
	assert.Equal(t, sale.Units(500, 18).String(), st.Sold)
	assert.Equal(t, sale.Units(500, 18).String(), st.PaymentReceived)

	// AND: the account view shows the new balances and the granted tier
	rec = f.do(http.MethodGet, "/api/accounts/alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var acct AccountDTO
	f.decode(rec, &acct)
	require.NotNil(t, acct.Tier)
	assert.Equal(t, 2, *acct.Tier)
	assert.Equal(t, sale.Units(9_500, 18).String(), acct.PaymentBalance)
	assert.Equal(t, sale.Units(500, 18).String(), acct.SaleBalance)
	assert.Equal(t, sale.Units(500, 18).String(), acct.Contributed)

	// AND: the purchase log lists it
	rec = f.do(http.MethodGet, "/api/purchases?account=alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var log []PurchaseDTO
	f.decode(rec, &log)
	require.Len(t, log, 1)
	assert.Equal(t, purchase.ID, log[0].ID)
}

func TestAPI_Purchase_MalformedRequests(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/purchases", "not an object", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/purchases", PurchaseRequest{Amount: "100"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing account")

	rec = f.do(http.MethodPost, "/api/purchases", PurchaseRequest{Account: "alice", Amount: "ten"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "non-numeric amount")

	rec = f.do(http.MethodPost, "/api/purchases", PurchaseRequest{Account: "alice", Amount: "1.5"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "fractional amount")
}

func TestAPI_Purchase_ErrorStatusMapping(t *testing.T) {
	f := newAPIFixture(t)
	f.seedInventory(1_000_000)

	// Zero amount: 400 invalid_amount.
	rec := f.do(http.MethodPost, "/api/purchases",
		PurchaseRequest{Account: "alice", Amount: "0"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	f.decode(rec, &resp)
	assert.Equal(t, "invalid_amount", resp.Code)

	// No tier: 409 quota_exceeded.
	rec = f.do(http.MethodPost, "/api/purchases",
		PurchaseRequest{Account: "nobody", Amount: sale.Units(100, 18).String()}, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	resp = ErrorResponse{}
	f.decode(rec, &resp)
	assert.Equal(t, "quota_exceeded", resp.Code)

	// Funded and assigned but never approved: 409 transfer_failed.
	recGrant := f.do(http.MethodPost, "/api/admin/tiers/grant",
		GrantTierRequest{Account: "bob", Tier: 2}, testManager)
	require.Equal(t, http.StatusNoContent, recGrant.Code)
	recMint := f.do(http.MethodPost, "/api/admin/mint",
		MintRequest{Asset: "payment", Account: "bob", Amount: sale.Units(1_000, 18).String()}, "")
	require.Equal(t, http.StatusNoContent, recMint.Code)

	rec = f.do(http.MethodPost, "/api/purchases",
		PurchaseRequest{Account: "bob", Amount: sale.Units(500, 18).String()}, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	resp = ErrorResponse{}
	f.decode(rec, &resp)
	assert.Equal(t, "transfer_failed", resp.Code)
}

// =============================================================================
// TIER ENDPOINTS
// =============================================================================

func TestAPI_Tiers_ReadEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/tiers", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tiers []TierConfigDTO
	f.decode(rec, &tiers)
	assert.Len(t, tiers, 3)

	rec = f.do(http.MethodGet, "/api/tiers/2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tier TierConfigDTO
	f.decode(rec, &tier)
	assert.Equal(t, 2, tier.Tier)
	assert.Equal(t, sale.Units(50_000, 18).String(), tier.Quota)

	rec = f.do(http.MethodGet, "/api/tiers/9", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	f.decode(rec, &resp)
	assert.Equal(t, "not_found", resp.Code)

	rec = f.do(http.MethodGet, "/api/tiers/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_SetTier(t *testing.T) {
	f := newAPIFixture(t)

	body := SetTierConfigRequest{
		Start:    testWindowStart.Format(time.RFC3339),
		Deadline: testWindowStart.Add(48 * time.Hour).Format(time.RFC3339),
		Fee:      25,
		Quota:    sale.Units(10_000, 18).String(),
	}

	// Without the manager header the engine refuses.
	rec := f.do(http.MethodPut, "/api/tiers/2", body, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPut, "/api/tiers/2", body, testManager)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tier TierConfigDTO
	f.decode(rec, &tier)
	assert.Equal(t, int64(25), tier.Fee)
	assert.Equal(t, sale.Units(10_000, 18).String(), tier.Quota)
	assert.Equal(t, "0", tier.Sold)

	// Unknown tier number.
	rec = f.do(http.MethodPut, "/api/tiers/9", body, testManager)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func TestAPI_AdminPriceAndFee(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/admin/price", SetPriceRequest{Price: 210}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing manager header")

	rec = f.do(http.MethodPost, "/api/admin/price", SetPriceRequest{Price: 210}, testManager)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPost, "/api/admin/fee", SetFeeRequest{Fee: 30}, testManager)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/sale", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st SaleStateDTO
	f.decode(rec, &st)
	assert.Equal(t, int64(210), st.Price)
	assert.Equal(t, int64(30), st.BaseFee)
}

func TestAPI_AdminMint_RejectsUnknownAsset(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/admin/mint",
		MintRequest{Asset: "gold", Account: "alice", Amount: "1"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GrantTier_UnknownTier(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/admin/tiers/grant",
		GrantTierRequest{Account: "alice", Tier: 9}, testManager)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_Scenarios(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/scenarios", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ScenarioDTO
	f.decode(rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "fresh-sale", list[0].ID)

	rec = f.do(http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "fresh-sale"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The demo participants are funded, approved and assigned.
	rec = f.do(http.MethodGet, "/api/accounts/carol", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var acct AccountDTO
	f.decode(rec, &acct)
	require.NotNil(t, acct.Tier)
	assert.Equal(t, 2, *acct.Tier)
	assert.Equal(t, sale.Units(20_000, 18).String(), acct.PaymentBalance)
	assert.Equal(t, sale.Units(20_000, 18).String(), acct.Allowance)

	rec = f.do(http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "nope"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Scenarios_ActiveSale(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "active-sale"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/purchases", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var log []PurchaseDTO
	f.decode(rec, &log)
	assert.Len(t, log, 3)

	rec = f.do(http.MethodGet, "/api/sale", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st SaleStateDTO
	f.decode(rec, &st)
	assert.Equal(t, sale.Units(6_100, 18).String(), st.Sold)
}
