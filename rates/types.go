/*
Package rates provides the charge normalization and reconciliation core.

PURPOSE:
  Shipments in the platform record "what a shipment costs and what it bills"
  in several historically incompatible shapes. This package absorbs all of
  them into one canonical Ledger, writes canonical data back into the shape
  appropriate to how the shipment was created, and compares carrier invoice
  lines against the system's charges.

KEY CONCEPTS IN THIS FILE (types.go):
  - ChargeLine: One billable or payable item on a shipment
  - Ledger: The canonical, derived view of a shipment's charges
  - Totals: Folded cost/charge sums, always recomputed from lines

DESIGN PRINCIPLES:
  1. Derived, never stored: a Ledger is rebuilt from the native record on
     every read and decomposed back into it on every write
  2. Precision: amounts are decimal.Decimal, never float64
  3. Totality: coercion of untrusted numeric input never fails, it yields 0

USAGE:
  ledger := rates.Project(record)
  ledger.Charges = append(ledger.Charges, line)
  ledger.Recompute()
  err := persister.Persist(ctx, record.ID, ledger, "ap-clerk@example.com")

SEE ALSO:
  - record.go: Native shipment shapes
  - projector.go: Read path
  - persister.go: Write path
  - compare.go: Invoice vs system comparison
*/
package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency applies to any line or total without an explicit currency.
const DefaultCurrency = "CAD"

// NoReference is the sentinel used for unset invoice and EDI numbers.
const NoReference = "-"

// =============================================================================
// CHARGE LINE
// =============================================================================

type ChargeSource string

const (
	SourceManual     ChargeSource = "manual"
	SourceInlineEdit ChargeSource = "inline_edit"
	SourceAPI        ChargeSource = "api"
)

// ChargeLine is one item on a shipment. Cost is owed to the carrier, Charge
// is billed to the customer.
type ChargeLine struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Category       Category        `json:"category"`
	Cost           decimal.Decimal `json:"cost"`
	Charge         decimal.Decimal `json:"charge"`
	Currency       string          `json:"currency"`
	InvoiceNumber  string          `json:"invoiceNumber"`
	EDINumber      string          `json:"ediNumber"`
	Commissionable bool            `json:"commissionable"`

	Source  ChargeSource `json:"source,omitempty"`
	AddedBy string       `json:"addedBy,omitempty"`
	AddedAt *time.Time   `json:"addedAt,omitempty"`

	// Session-only edit tracking, never written to a native record.
	IsEdited bool `json:"isEdited,omitempty"`
	IsNew    bool `json:"isNew,omitempty"`
}

// normalize fills defaults and derives the category. Safe to call repeatedly.
func (c *ChargeLine) normalize() {
	c.Code = NormalizeCode(c.Code)
	if c.Name == "" {
		c.Name = UnnamedCharge
	}
	c.Category = CategoryForCode(c.Code)
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if c.InvoiceNumber == "" {
		c.InvoiceNumber = NoReference
	}
	if c.EDINumber == "" {
		c.EDINumber = NoReference
	}
	c.Cost = nonNegative(c.Cost)
	c.Charge = nonNegative(c.Charge)
}

// =============================================================================
// LEDGER
// =============================================================================

type Carrier struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Logo string `json:"logo"`
}

type Service struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Type string `json:"type"`
}

type Totals struct {
	Cost     decimal.Decimal `json:"cost"`
	Charge   decimal.Decimal `json:"charge"`
	Currency string          `json:"currency"`
}

// HistoryEntry is reserved for a future audit trail on the ledger.
type HistoryEntry struct {
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
}

// Ledger is the canonical charge view of one shipment.
type Ledger struct {
	ID           string         `json:"id"`
	ShipmentID   string         `json:"shipmentId"`
	LastModified time.Time      `json:"lastModified"`
	ModifiedBy   string         `json:"modifiedBy"`
	Carrier      Carrier        `json:"carrier"`
	Service      Service        `json:"service"`
	Charges      []ChargeLine   `json:"charges"`
	Totals       Totals         `json:"totals"`
	History      []HistoryEntry `json:"history"`
}

// LedgerID derives the ledger key for a shipment.
func LedgerID(shipmentID string) string {
	return "rates_" + shipmentID
}

// NewLedger returns an empty, structurally valid ledger.
func NewLedger(shipmentID string) *Ledger {
	return &Ledger{
		ID:         LedgerID(shipmentID),
		ShipmentID: shipmentID,
		Charges:    []ChargeLine{},
		Totals:     Totals{Cost: decimal.Zero, Charge: decimal.Zero, Currency: DefaultCurrency},
		History:    []HistoryEntry{},
	}
}

// Recompute refolds totals from the current lines.
func (l *Ledger) Recompute() {
	l.Totals = SumTotals(l.Charges)
}

// SumTotals folds a line list. Currency is the first line's, or CAD.
func SumTotals(lines []ChargeLine) Totals {
	t := Totals{Cost: decimal.Zero, Charge: decimal.Zero, Currency: DefaultCurrency}
	for i, c := range lines {
		if i == 0 && c.Currency != "" {
			t.Currency = c.Currency
		}
		t.Cost = t.Cost.Add(c.Cost)
		t.Charge = t.Charge.Add(c.Charge)
	}
	return t
}
