package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/ap-reconcile/rates"
)

// =============================================================================
// CONTROLLER - Approval state machine
// =============================================================================

// Controller runs reconciliation actions. Each action runs to completion and
// items inside a batch are processed sequentially, so every failure is
// attributable to exactly one item and no two batch members race on the
// same shipment.
type Controller struct {
	Shipments rates.ShipmentStore
	Uploads   UploadStore
	Costs     CostPusher
	Charges   ChargeCreator
	Matcher   Matcher
	Resolver  *Resolver
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewController(shipments rates.ShipmentStore, uploads UploadStore, costs CostPusher, charges ChargeCreator) *Controller {
	return &Controller{
		Shipments: shipments,
		Uploads:   uploads,
		Costs:     costs,
		Charges:   charges,
		Resolver:  NewResolver(shipments, 0),
		Now:       time.Now,
	}
}

// ApproveOptions selects the approval mode.
type ApproveOptions struct {
	// Override admits any matched item with confidence > 0 instead of the
	// review band and above.
	Override bool
	// ItemIDs restricts the batch. Empty means every displayed item.
	ItemIDs []string
	Actor   string
}

type ApproveResult struct {
	ApprovedCount int                 `json:"approvedCount"`
	Failed        []rates.ItemFailure `json:"failed"`
}

type resolvedItem struct {
	item *Item
	key  string
	push *PushResult
}

// Eligible reports whether an item may enter an approval batch. Normal mode
// takes only ready and review items, so an item a human marked as an
// exception needs an override.
func Eligible(it *Item, override bool) bool {
	if it.APStatus.IsTerminal() {
		return false
	}
	confidence, matched := it.MatchConfidence()
	if !matched {
		return false
	}
	if override {
		return confidence > 0
	}
	switch it.Status() {
	case rates.StatusReady, rates.StatusReview:
		return true
	default:
		return false
	}
}

// ApproveBatch approves the eligible items of an upload.
//
// Pipeline:
//  1. Filter eligible items (ValidationError if none)
//  2. Resolve storage keys; unresolvable items are dropped, unless all are
//  3. Push actual cost for every item; any failure aborts before step 5
//  4. Auto-balance each shipment (failures logged and skipped)
//  5. Create the approved charge and stamp invoiceStatus per item
func (c *Controller) ApproveBatch(ctx context.Context, uploadID string, opts ApproveOptions) (*ApproveResult, error) {
	upload, err := c.Uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load upload %s: %w", uploadID, err)
	}
	log := c.logger().With("upload", uploadID, "override", opts.Override)

	wanted := idSet(opts.ItemIDs)
	eligible := upload.Filter(func(it *Item) bool {
		if len(wanted) > 0 && !wanted[it.ID] {
			return false
		}
		return Eligible(it, opts.Override)
	})
	if len(eligible) == 0 {
		return nil, &rates.ValidationError{Reason: "no items eligible for approval"}
	}

	result := &ApproveResult{Failed: []rates.ItemFailure{}}

	var resolved []resolvedItem
	for _, it := range eligible {
		key, err := c.resolver().Resolve(ctx, it)
		if err != nil {
			log.Warn("dropping unresolvable item", "item", it.ID, "error", err)
			result.Failed = append(result.Failed, rates.ItemFailure{ItemID: it.ID, Reason: err.Error()})
			continue
		}
		resolved = append(resolved, resolvedItem{item: it, key: key})
	}
	if len(resolved) == 0 {
		return nil, &rates.ValidationError{Reason: "no eligible item resolved to a shipment", Count: len(eligible)}
	}

	var pushFailures []rates.ItemFailure
	for i := range resolved {
		r := &resolved[i]
		push, err := c.Costs.PushActualCost(ctx, r.key, costPayload(uploadID, r.item, opts.Actor))
		switch {
		case err != nil:
			pushFailures = append(pushFailures, rates.ItemFailure{ItemID: r.item.ID, ShipmentKey: r.key, Reason: err.Error()})
		case push == nil || !push.Success:
			reason := "actual cost push rejected"
			if push != nil && push.Message != "" {
				reason = push.Message
			}
			pushFailures = append(pushFailures, rates.ItemFailure{ItemID: r.item.ID, ShipmentKey: r.key, Reason: reason})
		default:
			r.push = push
		}
	}
	if len(pushFailures) > 0 {
		log.Error("actual cost push failed, no charges created", "failures", len(pushFailures), "unresolved", len(result.Failed))
		return nil, &rates.PartialFailure{Step: "actual cost push", Failures: append(result.Failed, pushFailures...)}
	}

	for _, r := range resolved {
		outcome, err := c.autoBalance(ctx, r.key, r.item.InvoiceTotal(), r.push.CostComparison, opts.Actor)
		if err != nil {
			log.Warn("auto-balance skipped", "item", r.item.ID, "shipment", r.key, "error", err)
		}

		charge, err := c.Charges.CreateApprovedCharge(ctx, r.key, *r.item, r.item.Match.Confidence)
		if err != nil || charge == nil || !charge.Success {
			reason := "approved charge rejected"
			if err != nil {
				reason = err.Error()
			} else if charge != nil && charge.Message != "" {
				reason = charge.Message
			}
			result.Failed = append(result.Failed, rates.ItemFailure{ItemID: r.item.ID, ShipmentKey: r.key, Reason: reason})
			continue
		}

		status := rates.InvoiceException
		if outcome.Known && rates.WithinTolerance(outcome.Variance) {
			status = rates.InvoiceDraft
		}
		if err := c.stampInvoiceStatus(ctx, r.key, status, opts.Actor); err != nil {
			log.Warn("invoice status not recorded", "item", r.item.ID, "shipment", r.key, "error", err)
		}

		c.commit(r.item, r.key, charge.ChargeID, opts.Actor)
		result.ApprovedCount++
		log.Info("item approved", "item", r.item.ID, "shipment", r.key, "invoiceStatus", status, "balanced", outcome.Balanced)
	}

	if err := c.Uploads.SaveUpload(ctx, upload); err != nil {
		return result, fmt.Errorf("failed to save upload %s: %w", uploadID, err)
	}
	return result, nil
}

// MarkException flags an item and records the exception on its matched
// shipment. Charges are not touched.
func (c *Controller) MarkException(ctx context.Context, uploadID, itemID, actor string) error {
	upload, it, err := c.loadItem(ctx, uploadID, itemID)
	if err != nil {
		return err
	}
	if it.APStatus.IsTerminal() {
		return &rates.ValidationError{Reason: fmt.Sprintf("item %s is already %s", itemID, it.APStatus)}
	}

	if it.Match != nil {
		key, err := c.resolver().Resolve(ctx, it)
		if err != nil {
			return fmt.Errorf("failed to resolve shipment for item %s: %w", itemID, err)
		}
		if err := c.stampInvoiceStatus(ctx, key, rates.InvoiceException, actor); err != nil {
			return err
		}
		it.ShipmentKey = key
	}

	c.setStatus(it, rates.StatusException, actor)
	if err := c.Uploads.SaveUpload(ctx, upload); err != nil {
		return fmt.Errorf("failed to save upload %s: %w", uploadID, err)
	}
	return nil
}

// Reject rejects a whole upload. Matched shipments are not touched.
func (c *Controller) Reject(ctx context.Context, uploadID, reason, actor string) error {
	upload, err := c.Uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return fmt.Errorf("failed to load upload %s: %w", uploadID, err)
	}

	now := c.now()
	upload.APStatus = rates.StatusRejected
	upload.RejectedAt = &now
	upload.RejectedBy = actor
	upload.RejectionReason = reason
	for i := range upload.Items {
		if !upload.Items[i].APStatus.IsTerminal() {
			c.setStatus(&upload.Items[i], rates.StatusRejected, actor)
		}
	}

	if err := c.Uploads.SaveUpload(ctx, upload); err != nil {
		return fmt.Errorf("failed to save upload %s: %w", uploadID, err)
	}
	c.logger().Info("upload rejected", "upload", uploadID, "actor", actor, "reason", reason)
	return nil
}

// Match runs the external matcher over unmatched, non-terminal items and
// returns how many received a result. Matcher errors are logged per item.
func (c *Controller) Match(ctx context.Context, uploadID, carrierHint string) (int, error) {
	if c.Matcher == nil {
		return 0, &rates.ValidationError{Reason: "no matcher configured"}
	}
	upload, err := c.Uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return 0, fmt.Errorf("failed to load upload %s: %w", uploadID, err)
	}
	if carrierHint == "" {
		carrierHint = upload.Carrier
	}

	matched := 0
	for _, it := range upload.Filter(func(it *Item) bool { return it.Match == nil && !it.APStatus.IsTerminal() }) {
		res, err := c.Matcher.MatchInvoiceToShipment(ctx, *it, carrierHint)
		if err != nil {
			c.logger().Warn("match failed", "upload", uploadID, "item", it.ID, "error", err)
			continue
		}
		if res == nil {
			continue
		}
		it.Match = res
		matched++
	}

	if err := c.Uploads.SaveUpload(ctx, upload); err != nil {
		return matched, fmt.Errorf("failed to save upload %s: %w", uploadID, err)
	}
	return matched, nil
}

// Comparison aligns an item's invoice lines with its matched shipment.
func (c *Controller) Comparison(ctx context.Context, uploadID, itemID string) ([]rates.ComparisonRow, error) {
	_, it, err := c.loadItem(ctx, uploadID, itemID)
	if err != nil {
		return nil, err
	}
	key, err := c.resolver().Resolve(ctx, it)
	if err != nil {
		return nil, err
	}
	rec, err := c.Shipments.FetchShipment(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shipment %s: %w", key, err)
	}
	return rates.Compare(it.Charges, rates.SystemCharges(rec)), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Controller) loadItem(ctx context.Context, uploadID, itemID string) (*Upload, *Item, error) {
	upload, err := c.Uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load upload %s: %w", uploadID, err)
	}
	it := upload.Item(itemID)
	if it == nil {
		return nil, nil, &rates.NotFoundError{Kind: "item", Key: itemID}
	}
	return upload, it, nil
}

func (c *Controller) stampInvoiceStatus(ctx context.Context, key string, status rates.InvoiceStatus, actor string) error {
	now := c.now()
	patch := rates.ShipmentPatch{InvoiceStatus: &status, UpdatedAt: &now, UpdatedBy: &actor}
	if err := c.Shipments.WriteShipment(ctx, key, patch); err != nil {
		return fmt.Errorf("failed to set invoice status on shipment %s: %w", key, err)
	}
	return nil
}

func (c *Controller) commit(it *Item, key, chargeID, actor string) {
	c.setStatus(it, rates.StatusApproved, actor)
	it.ShipmentKey = key
	it.ChargeID = chargeID
	it.Lifecycle = LifecycleCommitted
}

func (c *Controller) setStatus(it *Item, status rates.ApprovalStatus, actor string) {
	now := c.now()
	it.APStatus = status
	it.APStatusAt = &now
	it.APStatusBy = actor
}

func costPayload(uploadID string, it *Item, actor string) CostPayload {
	currency := rates.DefaultCurrency
	if len(it.Charges) > 0 && it.Charges[0].Currency != "" {
		currency = it.Charges[0].Currency
	}
	return CostPayload{
		ItemID:   it.ID,
		UploadID: uploadID,
		Charges:  it.Charges,
		Total:    it.InvoiceTotal(),
		Currency: currency,
		Actor:    actor,
	}
}

func idSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func (c *Controller) resolver() *Resolver {
	if c.Resolver == nil {
		c.Resolver = NewResolver(c.Shipments, 0)
	}
	return c.Resolver
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Controller) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
