/*
persister.go - Write path: canonical Ledger -> native record

ALGORITHM:
  1. Fetch the shipment (NotFound surfaces to the caller)
  2. Branch on creation method, same test as the projector
  3. Write only the fields this core owns, clearing sibling shapes that the
     projector would otherwise read stale data from
  4. Stamp UpdatedAt/UpdatedBy from the actor
  5. Compare-and-swap against the revision fetched in step 1

MANUAL SHIPMENTS:
  Lines become ManualRates with stringified amounts. The ledger carrier is
  copied onto every line. UpdatedCharges and ChargesBreakdown are cleared.

ALL OTHER SHIPMENTS:
  Lines become UpdatedCharges with quoted and actual both set to the current
  value: a manual save means quoted and actual agree from now on. The same
  array is mirrored into ChargesBreakdown for older readers.
*/
package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Persister writes ledgers back into native records.
type Persister struct {
	Store ShipmentStore
	Now   func() time.Time
}

func NewPersister(store ShipmentStore) *Persister {
	return &Persister{Store: store, Now: time.Now}
}

// Persist writes ledger into the shipment stored under shipmentID.
func (p *Persister) Persist(ctx context.Context, shipmentID string, ledger *Ledger, actor string) error {
	rec, err := p.Store.FetchShipment(ctx, shipmentID)
	if err != nil {
		return fmt.Errorf("failed to fetch shipment %s: %w", shipmentID, err)
	}

	now := p.now()
	patch := BuildPatch(rec, ledger, actor, now)

	if err := p.Store.WriteShipment(ctx, shipmentID, patch); err != nil {
		return fmt.Errorf("failed to write rates for shipment %s: %w", shipmentID, err)
	}
	return nil
}

// BuildPatch decomposes a ledger into the native fields for rec's creation
// method. It does not touch the store.
func BuildPatch(rec *ShipmentRecord, ledger *Ledger, actor string, at time.Time) ShipmentPatch {
	patch := ShipmentPatch{
		UpdatedAt:        &at,
		UpdatedBy:        &actor,
		ExpectedRevision: rec.Revision,
	}

	if rec.IsManual() {
		manual := toManualRates(ledger)
		patch.ManualRates = &manual
		patch.UpdatedCharges = clearedEntries()
		patch.ChargesBreakdown = clearedEntries()
		return patch
	}

	updated := toUpdatedCharges(ledger)
	mirror := make([]ChargeEntry, len(updated))
	copy(mirror, updated)
	patch.UpdatedCharges = &updated
	patch.ChargesBreakdown = &mirror
	return patch
}

func toManualRates(ledger *Ledger) []ManualRate {
	out := make([]ManualRate, 0, len(ledger.Charges))
	for _, c := range ledger.Charges {
		c.normalize()
		out = append(out, ManualRate{
			ID:             c.ID,
			Carrier:        ledger.Carrier.Name,
			Code:           c.Code,
			ChargeName:     c.Name,
			Cost:           c.Cost.String(),
			Charge:         c.Charge.String(),
			Currency:       c.Currency,
			InvoiceNumber:  c.InvoiceNumber,
			EDINumber:      c.EDINumber,
			Commissionable: c.Commissionable,
		})
	}
	return out
}

func toUpdatedCharges(ledger *Ledger) []ChargeEntry {
	out := make([]ChargeEntry, 0, len(ledger.Charges))
	for _, c := range ledger.Charges {
		c.normalize()
		cost, charge := c.Cost.String(), c.Charge.String()
		out = append(out, ChargeEntry{
			ID:             c.ID,
			Code:           c.Code,
			Name:           c.Name,
			QuotedCost:     cost,
			ActualCost:     cost,
			Cost:           cost,
			QuotedCharge:   charge,
			ActualCharge:   charge,
			Charge:         charge,
			Currency:       c.Currency,
			InvoiceNumber:  c.InvoiceNumber,
			EDINumber:      c.EDINumber,
			Commissionable: c.Commissionable,
			Source:         string(c.Source),
			AddedBy:        c.AddedBy,
			AddedAt:        c.AddedAt,
		})
	}
	return out
}

func (p *Persister) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// =============================================================================
// AUTO-BALANCE PATCH
// =============================================================================

// Tolerance is half a cent: absolute differences strictly below it are
// rounding noise, not a discrepancy.
var Tolerance = decimal.RequireFromString("0.005")

// WithinTolerance reports |v| < Tolerance.
func WithinTolerance(v decimal.Decimal) bool {
	return v.Abs().LessThan(Tolerance)
}

// BuildBalancePatch accepts quoted values as truth: every line's actual
// cost/charge becomes its quoted (or current) value and the actual totals'
// cost becomes the quoted-or-current charge total.
func BuildBalancePatch(rec *ShipmentRecord, actor string, at time.Time) ShipmentPatch {
	patch := ShipmentPatch{
		UpdatedAt:        &at,
		UpdatedBy:        &actor,
		ExpectedRevision: rec.Revision,
	}

	system := SystemCharges(rec)
	quotedCost, quotedCharge := decimal.Zero, decimal.Zero
	for _, s := range system {
		quotedCost = quotedCost.Add(s.EffectiveQuotedCost())
		quotedCharge = quotedCharge.Add(s.EffectiveQuotedCharge())
	}

	if !rec.IsManual() && len(rec.UpdatedCharges) > 0 {
		entries := make([]ChargeEntry, len(rec.UpdatedCharges))
		for i, e := range rec.UpdatedCharges {
			e.ActualCost = firstPresent(e.QuotedCost, e.Cost).String()
			e.ActualCharge = firstPresent(e.QuotedCharge, e.Charge).String()
			entries[i] = e
		}
		patch.UpdatedCharges = &entries
	}

	totals := &RecordTotals{Cost: quotedCharge.String(), Charge: quotedCharge.String()}
	if quotedCharge.IsZero() {
		totals.Cost = quotedCost.String()
	}
	patch.ActualTotals = &totals
	return patch
}
