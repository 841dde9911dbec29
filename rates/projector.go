/*
projector.go - Read path: native record -> canonical Ledger

CONTRACT:
  Project never fails. Malformed or missing data degrades to an empty
  ledger with zeroed totals, which is a valid state, not an error.

  Projector.Load adds the fetch. Only the fetch can fail, and a missing
  shipment is always surfaced as ErrNotFound.

SEE ALSO:
  - source.go: Which native shape is authoritative
  - persister.go: The inverse operation
*/
package rates

import (
	"context"
	"fmt"
)

// Project converts a native shipment record into its canonical ledger.
func Project(rec *ShipmentRecord) *Ledger {
	if rec == nil {
		return NewLedger("")
	}

	src := selectSource(rec)
	ledger := NewLedger(rec.ID)
	ledger.LastModified = rec.UpdatedAt
	ledger.ModifiedBy = rec.UpdatedBy
	ledger.Carrier = src.carrier(rec)
	ledger.Service = src.service()

	for _, line := range src.lines() {
		line.normalize()
		ledger.Charges = append(ledger.Charges, line)
	}
	ledger.Recompute()
	return ledger
}

// Projector loads shipments and projects them.
type Projector struct {
	Store ShipmentStore
}

func NewProjector(store ShipmentStore) *Projector {
	return &Projector{Store: store}
}

// Load fetches the shipment by key and projects it.
func (p *Projector) Load(ctx context.Context, key string) (*Ledger, *ShipmentRecord, error) {
	rec, err := p.Store.FetchShipment(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load shipment %s: %w", key, err)
	}
	return Project(rec), rec, nil
}
