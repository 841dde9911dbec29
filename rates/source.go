/*
source.go - Typed adapters for each native charge shape

PURPOSE:
  Source selection is a strict per-shipment priority chain. Rather than an
  untyped waterfall of nil checks, each candidate shape is a variant of
  rateSource and selectSource returns exactly one of them.

PRIORITY:
  manual creation method  -> manualSource (exclusive)
  otherwise, first non-empty of:
    UpdatedCharges        -> updatedSource
    ActualRates+Markup    -> markupSource
    SelectedRate details  -> selectedSource
  nothing present         -> emptySource (valid, zero totals)

Most recently written wins: a human edit outranks a stale API quote.
*/
package rates

import "fmt"

type SourceKind string

const (
	KindManual   SourceKind = "manual_rates"
	KindUpdated  SourceKind = "updated_charges"
	KindMarkup   SourceKind = "markup_rates"
	KindSelected SourceKind = "selected_rate"
	KindEmpty    SourceKind = "none"
)

type rateSource interface {
	kind() SourceKind
	lines() []ChargeLine
	carrier(rec *ShipmentRecord) Carrier
	service() Service
}

func selectSource(rec *ShipmentRecord) rateSource {
	if rec.IsManual() {
		return manualSource{rates: rec.ManualRates}
	}
	if len(rec.UpdatedCharges) > 0 {
		return updatedSource{entries: rec.UpdatedCharges}
	}
	if rec.ActualRates != nil && rec.MarkupRates != nil && len(rec.MarkupRates.Charges) > 0 {
		return markupSource{actual: rec.ActualRates, markup: rec.MarkupRates}
	}
	if rec.SelectedRate != nil && len(rec.SelectedRate.BillingDetails) > 0 {
		return selectedSource{rate: rec.SelectedRate}
	}
	return emptySource{}
}

// SourceOf reports which shape a record's charges are read from.
func SourceOf(rec *ShipmentRecord) SourceKind {
	if rec == nil {
		return KindEmpty
	}
	return selectSource(rec).kind()
}

func positionalID(kind SourceKind, id string, i int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("%s_%d", kind, i)
}

// =============================================================================
// MANUAL RATES
// =============================================================================

type manualSource struct{ rates []ManualRate }

func (manualSource) kind() SourceKind { return KindManual }

func (s manualSource) lines() []ChargeLine {
	out := make([]ChargeLine, 0, len(s.rates))
	for i, r := range s.rates {
		out = append(out, ChargeLine{
			ID:             positionalID(KindManual, r.ID, i),
			Code:           r.Code,
			Name:           r.ChargeName,
			Cost:           ToDecimal(r.Cost),
			Charge:         ToDecimal(r.Charge),
			Currency:       r.Currency,
			InvoiceNumber:  r.InvoiceNumber,
			EDINumber:      r.EDINumber,
			Commissionable: r.Commissionable,
			Source:         SourceManual,
		})
	}
	return out
}

func (s manualSource) carrier(rec *ShipmentRecord) Carrier {
	if len(s.rates) > 0 && s.rates[0].Carrier != "" {
		return Carrier{Name: s.rates[0].Carrier}
	}
	return Carrier{Name: rec.SelectedCarrier}
}

func (manualSource) service() Service { return Service{} }

// =============================================================================
// UPDATED CHARGES
// =============================================================================

type updatedSource struct{ entries []ChargeEntry }

func (updatedSource) kind() SourceKind { return KindUpdated }

func (s updatedSource) lines() []ChargeLine {
	out := make([]ChargeLine, 0, len(s.entries))
	for i, e := range s.entries {
		line := entryLine(KindUpdated, e, i)
		line.Cost = firstPresent(e.QuotedCost, e.ActualCost, e.Cost)
		line.Charge = firstPresent(e.QuotedCharge, e.ActualCharge, e.Charge)
		out = append(out, line)
	}
	return out
}

func (updatedSource) carrier(rec *ShipmentRecord) Carrier { return recordCarrier(rec) }
func (updatedSource) service() Service                    { return Service{} }

// =============================================================================
// ACTUAL + MARKUP RATES
// =============================================================================

type markupSource struct{ actual, markup *RateQuote }

func (markupSource) kind() SourceKind { return KindMarkup }

func (s markupSource) lines() []ChargeLine {
	out := make([]ChargeLine, 0, len(s.markup.Charges))
	for i, e := range s.markup.Charges {
		line := entryLine(KindMarkup, e, i)
		line.Cost = firstPresent(e.Cost, e.ActualCost, e.QuotedCost)
		line.Charge = firstPresent(e.Charge, e.QuotedCharge, e.ActualCharge)
		out = append(out, line)
	}
	return out
}

func (s markupSource) carrier(rec *ShipmentRecord) Carrier {
	if s.markup.Carrier.Name != "" {
		return s.markup.Carrier
	}
	if s.actual.Carrier.Name != "" {
		return s.actual.Carrier
	}
	return recordCarrier(rec)
}

func (s markupSource) service() Service {
	if s.markup.Service.Name != "" {
		return s.markup.Service
	}
	return s.actual.Service
}

// =============================================================================
// SELECTED RATE
// =============================================================================

type selectedSource struct{ rate *SelectedRate }

func (selectedSource) kind() SourceKind { return KindSelected }

func (s selectedSource) lines() []ChargeLine {
	out := make([]ChargeLine, 0, len(s.rate.BillingDetails))
	for i, d := range s.rate.BillingDetails {
		name := d.Name
		if name == "" {
			name = GenericCharge
		}
		code := d.Code
		if code == "" && d.Name != "" {
			code = CodeForName(d.Name)
		}
		out = append(out, ChargeLine{
			ID:       positionalID(KindSelected, "", i),
			Code:     code,
			Name:     name,
			Cost:     firstPresent(d.ActualAmount, d.Amount),
			Charge:   ToDecimal(d.Amount),
			Currency: d.Currency,
			Source:   SourceAPI,
		})
	}
	return out
}

func (s selectedSource) carrier(*ShipmentRecord) Carrier {
	return Carrier{Name: s.rate.CarrierName, Code: s.rate.CarrierCode, Logo: s.rate.CarrierLogo}
}

func (s selectedSource) service() Service {
	return Service{Name: s.rate.ServiceName, Code: s.rate.ServiceCode, Type: s.rate.ServiceType}
}

// =============================================================================
// EMPTY
// =============================================================================

type emptySource struct{}

func (emptySource) kind() SourceKind                    { return KindEmpty }
func (emptySource) lines() []ChargeLine                 { return nil }
func (emptySource) carrier(rec *ShipmentRecord) Carrier { return recordCarrier(rec) }
func (emptySource) service() Service                    { return Service{} }

// =============================================================================
// HELPERS
// =============================================================================

func entryLine(kind SourceKind, e ChargeEntry, i int) ChargeLine {
	src := ChargeSource(e.Source)
	if src == "" {
		src = SourceAPI
	}
	return ChargeLine{
		ID:             positionalID(kind, e.ID, i),
		Code:           e.Code,
		Name:           e.Name,
		Currency:       e.Currency,
		InvoiceNumber:  e.InvoiceNumber,
		EDINumber:      e.EDINumber,
		Commissionable: e.Commissionable,
		Source:         src,
		AddedBy:        e.AddedBy,
		AddedAt:        e.AddedAt,
	}
}

func recordCarrier(rec *ShipmentRecord) Carrier {
	if rec.SelectedRate != nil && rec.SelectedRate.CarrierName != "" {
		return Carrier{Name: rec.SelectedRate.CarrierName, Code: rec.SelectedRate.CarrierCode, Logo: rec.SelectedRate.CarrierLogo}
	}
	return Carrier{Name: rec.SelectedCarrier}
}
