/*
record.go - Native shipment record shapes

PURPOSE:
  The shipment store holds charges in whichever shape was current when the
  shipment was written. These types describe every shape the projector must
  read and the persister may write. Numeric fields are `any` on purpose: the
  stored values may be numbers, numeric strings, null, or garbage.

SHAPES (one is authoritative per shipment, see source.go):
  ManualRates:          manual rate entry, stringified amounts
  UpdatedCharges:       most recent human edits, quoted/actual pairs
  ActualRates+Markup:   API quote with a markup layer
  SelectedRate:         a selected quote with a billing-detail breakdown
  ChargesBreakdown:     legacy mirror of UpdatedCharges, written, never read

PARTIAL WRITES:
  Writers never replace a whole record. ShipmentPatch names only the fields
  being changed; unset pointers are left untouched. A pointer to a nil slice
  clears the field.
*/
package rates

import "time"

type CreationMethod string

const (
	// CreationManual marks shipments whose rates were typed in by hand.
	CreationManual CreationMethod = "manual_rate_entry"
	CreationAPI    CreationMethod = "api"
	CreationQuote  CreationMethod = "quote"
)

// ShipmentRecord is the native, persisted form of a shipment.
type ShipmentRecord struct {
	ID              string         `json:"id"`
	ShipmentID      string         `json:"shipmentId"`
	TrackingNumber  string         `json:"trackingNumber,omitempty"`
	CreationMethod  CreationMethod `json:"creationMethod"`
	SelectedCarrier string         `json:"selectedCarrier,omitempty"`

	ManualRates      []ManualRate  `json:"manualRates,omitempty"`
	UpdatedCharges   []ChargeEntry `json:"updatedCharges,omitempty"`
	ChargesBreakdown []ChargeEntry `json:"chargesBreakdown,omitempty"`
	ActualRates      *RateQuote    `json:"actualRates,omitempty"`
	MarkupRates      *RateQuote    `json:"markupRates,omitempty"`
	SelectedRate     *SelectedRate `json:"selectedRate,omitempty"`

	ActualTotals  *RecordTotals `json:"actualTotals,omitempty"`
	InvoiceStatus InvoiceStatus `json:"invoiceStatus,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	Revision  int64     `json:"revision"`
}

// IsManual is the single branch test shared by the read and write paths.
func (r *ShipmentRecord) IsManual() bool {
	return r.CreationMethod == CreationManual
}

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceException InvoiceStatus = "exception"
)

// ManualRate is one hand-entered rate line. Amounts are stored as strings.
type ManualRate struct {
	ID             string `json:"id,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
	Code           string `json:"code,omitempty"`
	ChargeName     string `json:"chargeName,omitempty"`
	Cost           any    `json:"cost"`
	Charge         any    `json:"charge"`
	Currency       string `json:"currency,omitempty"`
	InvoiceNumber  string `json:"invoiceNumber,omitempty"`
	EDINumber      string `json:"ediNumber,omitempty"`
	Commissionable bool   `json:"commissionable,omitempty"`
}

// ChargeEntry is the shape of updated charges, markup charges and the
// legacy breakdown.
type ChargeEntry struct {
	ID             string     `json:"id,omitempty"`
	Code           string     `json:"code,omitempty"`
	Name           string     `json:"name,omitempty"`
	QuotedCost     any        `json:"quotedCost,omitempty"`
	ActualCost     any        `json:"actualCost,omitempty"`
	Cost           any        `json:"cost,omitempty"`
	QuotedCharge   any        `json:"quotedCharge,omitempty"`
	ActualCharge   any        `json:"actualCharge,omitempty"`
	Charge         any        `json:"charge,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	InvoiceNumber  string     `json:"invoiceNumber,omitempty"`
	EDINumber      string     `json:"ediNumber,omitempty"`
	Commissionable bool       `json:"commissionable,omitempty"`
	Source         string     `json:"source,omitempty"`
	AddedBy        string     `json:"addedBy,omitempty"`
	AddedAt        *time.Time `json:"addedAt,omitempty"`
}

type RateQuote struct {
	Carrier Carrier       `json:"carrier"`
	Service Service       `json:"service"`
	Charges []ChargeEntry `json:"charges,omitempty"`
}

type SelectedRate struct {
	CarrierName    string          `json:"carrierName,omitempty"`
	CarrierCode    string          `json:"carrierCode,omitempty"`
	CarrierLogo    string          `json:"carrierLogo,omitempty"`
	ServiceName    string          `json:"serviceName,omitempty"`
	ServiceCode    string          `json:"serviceCode,omitempty"`
	ServiceType    string          `json:"serviceType,omitempty"`
	BillingDetails []BillingDetail `json:"billingDetails,omitempty"`
}

type BillingDetail struct {
	Code         string `json:"code,omitempty"`
	Name         string `json:"name,omitempty"`
	Amount       any    `json:"amount,omitempty"`
	ActualAmount any    `json:"actualAmount,omitempty"`
	Currency     string `json:"currency,omitempty"`
}

type RecordTotals struct {
	Cost   string `json:"cost"`
	Charge string `json:"charge"`
}

// =============================================================================
// PATCH - Partial write
// =============================================================================

// ShipmentPatch lists the fields a writer owns. Nil pointers are untouched.
type ShipmentPatch struct {
	ManualRates      *[]ManualRate
	UpdatedCharges   *[]ChargeEntry
	ChargesBreakdown *[]ChargeEntry
	ActualTotals     **RecordTotals
	InvoiceStatus    *InvoiceStatus

	UpdatedAt *time.Time
	UpdatedBy *string

	// ExpectedRevision, when non-zero, turns the write into a compare-and-swap.
	ExpectedRevision int64
}

// Apply mutates rec in place and bumps its revision.
func (p ShipmentPatch) Apply(rec *ShipmentRecord) {
	if p.ManualRates != nil {
		rec.ManualRates = *p.ManualRates
	}
	if p.UpdatedCharges != nil {
		rec.UpdatedCharges = *p.UpdatedCharges
	}
	if p.ChargesBreakdown != nil {
		rec.ChargesBreakdown = *p.ChargesBreakdown
	}
	if p.ActualTotals != nil {
		rec.ActualTotals = *p.ActualTotals
	}
	if p.InvoiceStatus != nil {
		rec.InvoiceStatus = *p.InvoiceStatus
	}
	if p.UpdatedAt != nil {
		rec.UpdatedAt = *p.UpdatedAt
	}
	if p.UpdatedBy != nil {
		rec.UpdatedBy = *p.UpdatedBy
	}
	rec.Revision++
}

// Conflicts reports whether the patch expects a different revision.
func (p ShipmentPatch) Conflicts(rec *ShipmentRecord) bool {
	return p.ExpectedRevision != 0 && p.ExpectedRevision != rec.Revision
}

func clearedEntries() *[]ChargeEntry {
	var none []ChargeEntry
	return &none
}
