package workflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/ap-reconcile/rates"
)

// balanceOutcome is what the auto-balance step learned about one shipment.
type balanceOutcome struct {
	Variance decimal.Decimal
	Known    bool
	Balanced bool
}

// autoBalance compares the invoice total to the system actual total and,
// when they agree within tolerance, rewrites actual := quoted.
//
// A system total reported by the cost push wins over the stored record.
func (c *Controller) autoBalance(ctx context.Context, key string, invoiceTotal decimal.Decimal, cmp *CostComparison, actor string) (balanceOutcome, error) {
	rec, err := c.Shipments.FetchShipment(ctx, key)
	if err != nil {
		return balanceOutcome{}, fmt.Errorf("failed to fetch shipment %s: %w", key, err)
	}

	systemActual := rates.SystemActualTotal(rates.SystemCharges(rec))
	if cmp != nil {
		systemActual = cmp.SystemActualTotal
	}

	out := balanceOutcome{Variance: invoiceTotal.Sub(systemActual), Known: true}
	if !rates.WithinTolerance(out.Variance) {
		return out, nil
	}

	patch := rates.BuildBalancePatch(rec, actor, c.now())
	if err := c.Shipments.WriteShipment(ctx, key, patch); err != nil {
		return out, fmt.Errorf("failed to auto-balance shipment %s: %w", key, err)
	}
	out.Balanced = true
	return out, nil
}
