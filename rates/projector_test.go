package rates_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ap-reconcile/rates"
	"github.com/warp/ap-reconcile/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

// =============================================================================
// SOURCE SELECTION
// =============================================================================

func TestProject_ManualRatesWinExclusively(t *testing.T) {
	// GIVEN: A manual shipment that also carries stale API-shaped charges
	rec := &rates.ShipmentRecord{
		ID:             "s1",
		CreationMethod: rates.CreationManual,
		ManualRates: []rates.ManualRate{
			{Carrier: "Acme Freight", Code: "fsc", ChargeName: "Fuel", Cost: "12.50 CAD", Charge: 15.0},
		},
		UpdatedCharges: []rates.ChargeEntry{{Code: "FRT", Name: "Linehaul", Cost: 999}},
	}

	// WHEN: Projected
	ledger := rates.Project(rec)

	// THEN: Only the manual line is read
	require.Len(t, ledger.Charges, 1)
	line := ledger.Charges[0]
	assert.Equal(t, "manual_rates_0", line.ID)
	assert.Equal(t, "FSC", line.Code)
	assert.Equal(t, rates.CategoryFuel, line.Category)
	assert.Equal(t, rates.SourceManual, line.Source)
	assertDec(t, "12.5", line.Cost)
	assertDec(t, "15", line.Charge)
	assert.Equal(t, "Acme Freight", ledger.Carrier.Name)
	assert.Equal(t, rates.KindManual, rates.SourceOf(rec))
	assert.Equal(t, "rates_s1", ledger.ID)
}

func TestProject_ManualCarrierFallsBackToSelectedCarrier(t *testing.T) {
	rec := &rates.ShipmentRecord{
		ID:              "s1",
		CreationMethod:  rates.CreationManual,
		SelectedCarrier: "Northern Haul",
		ManualRates:     []rates.ManualRate{{Code: "FRT", ChargeName: "Linehaul", Cost: 100}},
	}

	ledger := rates.Project(rec)

	assert.Equal(t, "Northern Haul", ledger.Carrier.Name)
}

func TestProject_UpdatedChargesPreferQuoted(t *testing.T) {
	// GIVEN: An API shipment whose updated charges carry quoted, actual, and bare values
	rec := &rates.ShipmentRecord{
		ID:             "s2",
		CreationMethod: rates.CreationAPI,
		UpdatedCharges: []rates.ChargeEntry{
			{ID: "c1", Code: "FRT", Name: "Linehaul", QuotedCost: "100", ActualCost: "110", Cost: "120", Charge: "150"},
			{Code: "FSC", Name: "Fuel", ActualCost: 20, Cost: 25, QuotedCharge: "", ActualCharge: 30},
		},
		SelectedRate: &rates.SelectedRate{
			CarrierName:    "Acme",
			BillingDetails: []rates.BillingDetail{{Name: "Freight", Amount: 1}},
		},
	}

	// WHEN: Projected
	ledger := rates.Project(rec)

	// THEN: Quoted wins, then actual, then bare; blank strings count as absent
	require.Len(t, ledger.Charges, 2)
	assert.Equal(t, "c1", ledger.Charges[0].ID)
	assertDec(t, "100", ledger.Charges[0].Cost)
	assertDec(t, "150", ledger.Charges[0].Charge)
	assert.Equal(t, "updated_charges_1", ledger.Charges[1].ID)
	assertDec(t, "20", ledger.Charges[1].Cost)
	assertDec(t, "30", ledger.Charges[1].Charge)
	assertDec(t, "120", ledger.Totals.Cost)
	assertDec(t, "180", ledger.Totals.Charge)
	assert.Equal(t, "Acme", ledger.Carrier.Name)
	assert.Equal(t, rates.SourceAPI, ledger.Charges[0].Source)
}

func TestProject_MarkupRatesNeedActualRates(t *testing.T) {
	markup := &rates.RateQuote{
		Carrier: rates.Carrier{Name: "Markup Carrier"},
		Service: rates.Service{Name: "Expedited"},
		Charges: []rates.ChargeEntry{{Code: "FRT", Name: "Linehaul", ActualCost: "80", Charge: "95"}},
	}

	t.Run("with actual rates", func(t *testing.T) {
		rec := &rates.ShipmentRecord{ID: "s3", ActualRates: &rates.RateQuote{}, MarkupRates: markup}
		ledger := rates.Project(rec)

		require.Len(t, ledger.Charges, 1)
		assertDec(t, "80", ledger.Charges[0].Cost)
		assertDec(t, "95", ledger.Charges[0].Charge)
		assert.Equal(t, "Markup Carrier", ledger.Carrier.Name)
		assert.Equal(t, "Expedited", ledger.Service.Name)
		assert.Equal(t, rates.KindMarkup, rates.SourceOf(rec))
	})

	t.Run("without actual rates", func(t *testing.T) {
		rec := &rates.ShipmentRecord{ID: "s3", MarkupRates: markup}
		ledger := rates.Project(rec)

		assert.Empty(t, ledger.Charges)
		assert.Equal(t, rates.KindEmpty, rates.SourceOf(rec))
	})
}

func TestProject_SelectedRateDerivesCodeFromName(t *testing.T) {
	// GIVEN: Billing details without codes
	rec := &rates.ShipmentRecord{
		ID: "s4",
		SelectedRate: &rates.SelectedRate{
			CarrierName: "Acme",
			ServiceName: "Standard",
			BillingDetails: []rates.BillingDetail{
				{Name: "Fuel Surcharge", Amount: "18.25"},
				{Name: "Base Freight", Amount: 200, ActualAmount: 190},
				{Name: "GST Tax", Amount: 10},
				{Name: "Liftgate", Amount: 40},
				{Amount: 5},
			},
		},
	}

	// WHEN: Projected
	ledger := rates.Project(rec)

	// THEN: Codes come from name substrings; unnamed lines use the generic name
	require.Len(t, ledger.Charges, 5)
	assert.Equal(t, "FSC", ledger.Charges[0].Code)
	assert.Equal(t, "FRT", ledger.Charges[1].Code)
	assertDec(t, "190", ledger.Charges[1].Cost)
	assertDec(t, "200", ledger.Charges[1].Charge)
	assert.Equal(t, "TAX", ledger.Charges[2].Code)
	assert.Equal(t, "OTHER", ledger.Charges[3].Code)
	assert.Equal(t, rates.CategoryOther, ledger.Charges[3].Category)
	assert.Equal(t, rates.GenericCharge, ledger.Charges[4].Name)
	assert.Equal(t, "FRT", ledger.Charges[4].Code, "no name means no derivation, so the default code applies")
	assert.Equal(t, "selected_rate_0", ledger.Charges[0].ID)
	assert.Equal(t, "Standard", ledger.Service.Name)
}

func TestProject_EmptyRecordIsValid(t *testing.T) {
	ledger := rates.Project(&rates.ShipmentRecord{ID: "s5"})

	assert.NotNil(t, ledger.Charges)
	assert.Empty(t, ledger.Charges)
	assert.True(t, ledger.Totals.Cost.IsZero())
	assert.True(t, ledger.Totals.Charge.IsZero())
	assert.Equal(t, rates.DefaultCurrency, ledger.Totals.Currency)
}

func TestProject_NormalizesLines(t *testing.T) {
	// GIVEN: A line with nothing but garbage amounts
	rec := &rates.ShipmentRecord{
		ID:             "s6",
		UpdatedCharges: []rates.ChargeEntry{{Cost: "abc", Charge: -40}},
	}

	// WHEN: Projected
	line := rates.Project(rec).Charges[0]

	// THEN: Every default is filled and amounts are finite and non-negative
	assert.Equal(t, "FRT", line.Code)
	assert.Equal(t, rates.CategoryFreight, line.Category)
	assert.Equal(t, rates.UnnamedCharge, line.Name)
	assert.Equal(t, "CAD", line.Currency)
	assert.Equal(t, rates.NoReference, line.InvoiceNumber)
	assert.Equal(t, rates.NoReference, line.EDINumber)
	assert.True(t, line.Cost.IsZero())
	assert.True(t, line.Charge.IsZero())
}

func TestProject_TotalsTakeFirstLineCurrency(t *testing.T) {
	rec := &rates.ShipmentRecord{
		ID: "s7",
		UpdatedCharges: []rates.ChargeEntry{
			{Code: "FRT", Cost: 10, Currency: "USD"},
			{Code: "FSC", Cost: 5, Currency: "CAD"},
		},
	}

	ledger := rates.Project(rec)

	assert.Equal(t, "USD", ledger.Totals.Currency)
	assertDec(t, "15", ledger.Totals.Cost)
}

// =============================================================================
// LOAD
// =============================================================================

func TestProjectorLoad_NotFound(t *testing.T) {
	p := rates.NewProjector(memory.NewShipments())

	_, _, err := p.Load(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, rates.IsNotFound(err))
	assert.True(t, rates.IsClientError(err))
}

func TestProjectorLoad_ReturnsRecord(t *testing.T) {
	store := memory.NewShipments()
	store.Put(rates.ShipmentRecord{ID: "s1", ShipmentID: "SHP-1", UpdatedCharges: []rates.ChargeEntry{{Code: "FRT", Cost: 10}}})

	ledger, rec, err := rates.NewProjector(store).Load(context.Background(), "s1")

	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Revision)
	assertDec(t, "10", ledger.Totals.Cost)
}
