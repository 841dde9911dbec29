/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	shipments and carrier invoice uploads. Each scenario exercises one part
	of the reconciliation flow end to end.

AVAILABLE SCENARIOS:

	clean-match:      One ready item whose invoice equals the system actual
	rounding:         Invoice off by less than half a cent; auto-balances
	manual-shipment:  Hand-entered rates matched by PRO number
	mixed-batch:      Ready, review, exception, unmatched and unresolvable items

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create shipments in their native shapes
 3. Create the upload with extracted items and match results

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mixed-batch"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to scenarioLoader

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Upload and approval handlers
  - store/sqlite/sqlite.go: SaveShipment, Reset
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/ap-reconcile/rates"
	"github.com/warp/ap-reconcile/workflow"
)

// Seeder is the write surface scenarios need beyond the core stores.
type Seeder interface {
	SaveShipment(ctx context.Context, rec rates.ShipmentRecord) error
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "clean-match",
		Name:        "Clean Match",
		Description: "High-confidence item whose invoice equals the system actual cost",
	},
	{
		ID:          "rounding",
		Name:        "Rounding Variance",
		Description: "Invoice differs by 0.004; approval auto-balances and drafts the invoice",
	},
	{
		ID:          "manual-shipment",
		Name:        "Manual Shipment",
		Description: "Hand-entered rates, matched through the PRO number",
	},
	{
		ID:          "mixed-batch",
		Name:        "Mixed Batch",
		Description: "One upload covering every confidence band plus unresolvable items",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load := h.scenarioLoader(req.ScenarioID)
	if load == nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Seeder.Reset(ctx); err != nil {
		return err
	}
	if h.Controller != nil && h.Controller.Resolver != nil {
		h.Controller.Resolver.Flush()
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

func (h *Handler) scenarioLoader(id string) func(context.Context) error {
	switch id {
	case "clean-match":
		return h.loadCleanMatchScenario
	case "rounding":
		return h.loadRoundingScenario
	case "manual-shipment":
		return h.loadManualShipmentScenario
	case "mixed-batch":
		return h.loadMixedBatchScenario
	default:
		return nil
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadCleanMatchScenario(ctx context.Context) error {
	if err := h.Seeder.SaveShipment(ctx, apiShipment("shp-1001", "SHP-1001", "1Z1001")); err != nil {
		return err
	}
	return h.Uploads.SaveUpload(ctx, &workflow.Upload{
		ID:       "upload-clean",
		Carrier:  "Northern Haul",
		FileName: "northern-haul-0315.pdf",
		Items: []workflow.Item{
			scenarioItem("item-1", "1Z1001", "shp-1001", 0.97, "1250.00", "187.50"),
		},
	})
}

func (h *Handler) loadRoundingScenario(ctx context.Context) error {
	if err := h.Seeder.SaveShipment(ctx, apiShipment("shp-2001", "SHP-2001", "1Z2001")); err != nil {
		return err
	}
	return h.Uploads.SaveUpload(ctx, &workflow.Upload{
		ID:       "upload-rounding",
		Carrier:  "Northern Haul",
		FileName: "northern-haul-0316.pdf",
		Items: []workflow.Item{
			scenarioItem("item-1", "1Z2001", "shp-2001", 0.96, "1250.004", "187.50"),
		},
	})
}

func (h *Handler) loadManualShipmentScenario(ctx context.Context) error {
	rec := rates.ShipmentRecord{
		ID:              "shp-3001",
		ShipmentID:      "PRO-77812",
		CreationMethod:  rates.CreationManual,
		SelectedCarrier: "Prairie Freightways",
		ManualRates: []rates.ManualRate{
			{Carrier: "Prairie Freightways", Code: "FRT", ChargeName: "Linehaul", Cost: "640.00", Charge: "780.00"},
			{Carrier: "Prairie Freightways", Code: "ACC", ChargeName: "Liftgate", Cost: "75", Charge: "95"},
			{Carrier: "Prairie Freightways", Code: "GST", ChargeName: "GST", Cost: "35.75", Charge: "43.75"},
		},
		UpdatedAt: scenarioTime(),
	}
	if err := h.Seeder.SaveShipment(ctx, rec); err != nil {
		return err
	}

	item := workflow.Item{
		ID:        "item-1",
		ProNumber: "PRO-77812",
		Charges: []rates.InvoiceCharge{
			{Code: "FRT", Name: "Linehaul", Amount: decimal.RequireFromString("640.00")},
			{Code: "ACC", Name: "Liftgate", Amount: decimal.RequireFromString("75.00")},
			{Code: "GST", Name: "GST", Amount: decimal.RequireFromString("35.75")},
		},
		Match: &workflow.MatchResult{
			Confidence: 0.91,
			BestMatch:  &workflow.ShipmentRef{ShipmentID: "PRO-77812"},
		},
		Lifecycle: workflow.LifecyclePending,
	}
	return h.Uploads.SaveUpload(ctx, &workflow.Upload{
		ID:       "upload-manual",
		Carrier:  "Prairie Freightways",
		FileName: "prairie-inv-5521.csv",
		Items:    []workflow.Item{item},
	})
}

func (h *Handler) loadMixedBatchScenario(ctx context.Context) error {
	for _, rec := range []rates.ShipmentRecord{
		apiShipment("shp-4001", "SHP-4001", "1Z4001"),
		apiShipment("shp-4002", "SHP-4002", "1Z4002"),
		apiShipment("shp-4003", "SHP-4003", "1Z4003"),
		selectedRateShipment("shp-4004", "SHP-4004"),
	} {
		if err := h.Seeder.SaveShipment(ctx, rec); err != nil {
			return err
		}
	}

	unmatched := workflow.Item{
		ID:             "item-unmatched",
		TrackingNumber: "1Z4999",
		Charges:        []rates.InvoiceCharge{{Code: "FRT", Name: "Linehaul", Amount: decimal.RequireFromString("410")}},
		Lifecycle:      workflow.LifecyclePending,
	}
	unresolvable := workflow.Item{
		ID:             "item-unresolvable",
		TrackingNumber: "Z9",
		Charges:        []rates.InvoiceCharge{{Code: "FRT", Name: "Linehaul", Amount: decimal.RequireFromString("95")}},
		Match:          &workflow.MatchResult{Confidence: 0.88, ReviewRequired: true},
		Lifecycle:      workflow.LifecyclePending,
	}

	selected := scenarioItem("item-selected", "", "shp-4004", 0.95, "0", "0")
	selected.Charges = []rates.InvoiceCharge{
		{Code: "FRT", Name: "Base Freight", Amount: decimal.RequireFromString("880")},
		{Code: "FSC", Name: "Fuel Surcharge", Amount: decimal.RequireFromString("96.80")},
	}

	return h.Uploads.SaveUpload(ctx, &workflow.Upload{
		ID:       "upload-mixed",
		Carrier:  "Northern Haul",
		FileName: "northern-haul-0320.pdf",
		Items: []workflow.Item{
			scenarioItem("item-ready", "1Z4001", "shp-4001", 0.98, "1250.00", "187.50"),
			scenarioItem("item-review", "1Z4002", "shp-4002", 0.86, "1262.40", "187.50"),
			scenarioItem("item-exception", "1Z4003", "shp-4003", 0.41, "1100.00", "160.00"),
			selected,
			unmatched,
			unresolvable,
		},
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func scenarioTime() time.Time {
	return time.Date(2026, time.March, 14, 16, 30, 0, 0, time.UTC)
}

// apiShipment has a 1437.50 actual cost split across linehaul and fuel.
func apiShipment(key, businessID, tracking string) rates.ShipmentRecord {
	return rates.ShipmentRecord{
		ID:             key,
		ShipmentID:     businessID,
		TrackingNumber: tracking,
		CreationMethod: rates.CreationAPI,
		SelectedRate: &rates.SelectedRate{
			CarrierName: "Northern Haul",
			CarrierCode: "NHL",
			ServiceName: "LTL Standard",
		},
		UpdatedCharges: []rates.ChargeEntry{
			{Code: "FRT", Name: "Linehaul", QuotedCost: "1250.00", ActualCost: "1250.00", QuotedCharge: "1495.00", ActualCharge: "1495.00", Currency: "CAD"},
			{Code: "FSC", Name: "Fuel", QuotedCost: "187.50", ActualCost: "187.50", QuotedCharge: "224.25", ActualCharge: "224.25", Currency: "CAD"},
		},
		UpdatedAt: scenarioTime(),
	}
}

func selectedRateShipment(key, businessID string) rates.ShipmentRecord {
	return rates.ShipmentRecord{
		ID:             key,
		ShipmentID:     businessID,
		CreationMethod: rates.CreationQuote,
		SelectedRate: &rates.SelectedRate{
			CarrierName: "Northern Haul",
			ServiceName: "LTL Economy",
			BillingDetails: []rates.BillingDetail{
				{Name: "Base Freight", Amount: 880},
				{Name: "Fuel Surcharge", Amount: "96.80"},
			},
		},
		UpdatedAt: scenarioTime(),
	}
}

func scenarioItem(id, tracking, key string, confidence float64, linehaul, fuel string) workflow.Item {
	return workflow.Item{
		ID:             id,
		TrackingNumber: tracking,
		Carrier:        "Northern Haul",
		Charges: []rates.InvoiceCharge{
			{Code: "FRT", Name: "Linehaul", Amount: decimal.RequireFromString(linehaul), Currency: "CAD"},
			{Code: "FSC", Name: "Fuel", Amount: decimal.RequireFromString(fuel), Currency: "CAD"},
		},
		Match: &workflow.MatchResult{
			Confidence:     confidence,
			BestMatch:      &workflow.ShipmentRef{ID: key, TrackingNumber: tracking},
			ReviewRequired: confidence < rates.ReadyThreshold,
		},
		Lifecycle: workflow.LifecyclePending,
	}
}
