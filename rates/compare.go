/*
compare.go - Charge Comparison Engine

PURPOSE:
  Aligns an invoice's lines against a matched shipment's system charges and
  reports per-line variance. Rows are ephemeral: built for display and
  decision only, never persisted.

JOIN KEY:
  Exact "code|name" after line defaults: upper-cased code, FRT when blank,
  "Unnamed Charge" when unnamed. Lines that share a name but differ in code
  (or the reverse) are distinct rows. Within one side, a repeated key overwrites
  the earlier line: last write wins per side.

VARIANCE:
  VarianceCost = InvoiceAmount - SystemActualCost
  Missing numeric fields are zero, so variance is always computable.
*/
package rates

import "github.com/shopspring/decimal"

// InvoiceCharge is one line from a carrier invoice.
type InvoiceCharge struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

// SystemCharge is one system line with optional quoted/actual splits.
// Unset splits fall back to Cost/Charge, then to zero.
type SystemCharge struct {
	Code         string              `json:"code"`
	Name         string              `json:"name"`
	Currency     string              `json:"currency,omitempty"`
	Cost         decimal.NullDecimal `json:"cost"`
	Charge       decimal.NullDecimal `json:"charge"`
	QuotedCost   decimal.NullDecimal `json:"quotedCost"`
	QuotedCharge decimal.NullDecimal `json:"quotedCharge"`
	ActualCost   decimal.NullDecimal `json:"actualCost"`
	ActualCharge decimal.NullDecimal `json:"actualCharge"`
}

func (s SystemCharge) EffectiveQuotedCost() decimal.Decimal   { return orFallback(s.QuotedCost, s.Cost) }
func (s SystemCharge) EffectiveQuotedCharge() decimal.Decimal { return orFallback(s.QuotedCharge, s.Charge) }
func (s SystemCharge) EffectiveActualCost() decimal.Decimal   { return orFallback(s.ActualCost, s.Cost) }
func (s SystemCharge) EffectiveActualCharge() decimal.Decimal { return orFallback(s.ActualCharge, s.Charge) }

type ComparisonRow struct {
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Currency           string          `json:"currency"`
	InvoiceAmount      decimal.Decimal `json:"invoiceAmount"`
	SystemQuotedCost   decimal.Decimal `json:"systemQuotedCost"`
	SystemQuotedCharge decimal.Decimal `json:"systemQuotedCharge"`
	SystemActualCost   decimal.Decimal `json:"systemActualCost"`
	SystemActualCharge decimal.Decimal `json:"systemActualCharge"`
	VarianceCost       decimal.Decimal `json:"varianceCost"`
	HasInvoice         bool            `json:"hasInvoice"`
	HasSystem          bool            `json:"hasSystem"`
}

// JoinKey is the exact code|name pair used to align lines.
func JoinKey(code, name string) string {
	return code + "|" + name
}

// Compare builds one row per distinct join key. Rows are emitted in first-seen
// order: system keys first, then invoice-only keys.
func Compare(invoice []InvoiceCharge, system []SystemCharge) []ComparisonRow {
	rows := make(map[string]*ComparisonRow)
	var order []string

	row := func(code, name string) *ComparisonRow {
		code, name = joinFields(code, name)
		k := JoinKey(code, name)
		if r, ok := rows[k]; ok {
			return r
		}
		r := &ComparisonRow{Code: code, Name: name}
		rows[k] = r
		order = append(order, k)
		return r
	}

	for _, s := range system {
		r := row(s.Code, s.Name)
		r.HasSystem = true
		r.SystemQuotedCost = s.EffectiveQuotedCost()
		r.SystemQuotedCharge = s.EffectiveQuotedCharge()
		r.SystemActualCost = s.EffectiveActualCost()
		r.SystemActualCharge = s.EffectiveActualCharge()
		if s.Currency != "" {
			r.Currency = s.Currency
		}
	}

	for _, inv := range invoice {
		r := row(inv.Code, inv.Name)
		r.HasInvoice = true
		r.InvoiceAmount = inv.Amount
		if r.Currency == "" {
			r.Currency = inv.Currency
		}
	}

	out := make([]ComparisonRow, 0, len(order))
	for _, k := range order {
		r := rows[k]
		if r.Currency == "" {
			r.Currency = DefaultCurrency
		}
		r.VarianceCost = r.InvoiceAmount.Sub(r.SystemActualCost)
		out = append(out, *r)
	}
	return out
}

// TotalVariance sums VarianceCost across rows.
func TotalVariance(rows []ComparisonRow) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.VarianceCost)
	}
	return total
}

// InvoiceTotal sums invoice line amounts.
func InvoiceTotal(lines []InvoiceCharge) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// SystemCharges exposes a record's lines with their quoted/actual split.
// Only the updated-charges shape keeps a real split; every other shape
// reports its single value on both sides.
func SystemCharges(rec *ShipmentRecord) []SystemCharge {
	if rec == nil {
		return nil
	}
	if !rec.IsManual() && len(rec.UpdatedCharges) > 0 {
		out := make([]SystemCharge, 0, len(rec.UpdatedCharges))
		for _, e := range rec.UpdatedCharges {
			line := ChargeLine{Code: e.Code, Name: e.Name, Currency: e.Currency}
			line.normalize()
			out = append(out, SystemCharge{
				Code:         line.Code,
				Name:         line.Name,
				Currency:     line.Currency,
				Cost:         nullable(e.Cost),
				Charge:       nullable(e.Charge),
				QuotedCost:   nullable(e.QuotedCost),
				QuotedCharge: nullable(e.QuotedCharge),
				ActualCost:   nullable(e.ActualCost),
				ActualCharge: nullable(e.ActualCharge),
			})
		}
		return out
	}

	ledger := Project(rec)
	out := make([]SystemCharge, 0, len(ledger.Charges))
	for _, c := range ledger.Charges {
		out = append(out, SystemCharge{
			Code:     c.Code,
			Name:     c.Name,
			Currency: c.Currency,
			Cost:     decimal.NewNullDecimal(c.Cost),
			Charge:   decimal.NewNullDecimal(c.Charge),
		})
	}
	return out
}

// SystemActualTotal sums actual cost with the same fallback as Compare.
func SystemActualTotal(system []SystemCharge) decimal.Decimal {
	total := decimal.Zero
	for _, s := range system {
		total = total.Add(s.EffectiveActualCost())
	}
	return total
}

// joinFields applies the line defaults to both sides of the join, so an
// extracted line without a code meets the FRT line the system stored.
func joinFields(code, name string) (string, string) {
	if name == "" {
		name = UnnamedCharge
	}
	return NormalizeCode(code), name
}

func orFallback(primary, fallback decimal.NullDecimal) decimal.Decimal {
	if primary.Valid {
		return primary.Decimal
	}
	if fallback.Valid {
		return fallback.Decimal
	}
	return decimal.Zero
}

func nullable(v any) decimal.NullDecimal {
	if !present(v) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(ToDecimal(v))
}
