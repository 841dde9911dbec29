/*
Package workflow provides the approval workflow over extracted invoices.

PURPOSE:
  Carrier invoices arrive as uploads. Each upload holds review items, one
  per extracted shipment, each with invoice lines and (once matched) a
  confidence-scored reference to a system shipment. The Controller moves
  items through the approval state machine and records outcomes back onto
  the matched shipments.

STATE MACHINE (per item):
  pending ──match──▶ ready | review | exception
  ready/review ──approve──▶ approved
  exception ──approve(override)──▶ approved
  any non-terminal ──mark exception──▶ exception
  upload ──reject──▶ rejected (every item)

  approved and rejected are terminal.

LIFECYCLE:
  Items are created pending and committed in place by their stable id when
  approved. There is no temporary record that is later swapped out.

SEE ALSO:
  - controller.go: Transitions
  - resolver.go: Identifier -> storage key
  - balance.go: Auto-balance step
  - rates/status.go: Status derivation
*/
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/ap-reconcile/rates"
)

// =============================================================================
// MATCH RESULT
// =============================================================================

// ShipmentRef points at a candidate system shipment.
type ShipmentRef struct {
	ID             string `json:"id"`
	ShipmentID     string `json:"shipmentId,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

type MatchResult struct {
	Confidence     float64      `json:"confidence"`
	BestMatch      *ShipmentRef `json:"bestMatch,omitempty"`
	ReviewRequired bool         `json:"reviewRequired"`
}

// =============================================================================
// REVIEW ITEM
// =============================================================================

type Lifecycle string

const (
	LifecyclePending   Lifecycle = "pending"
	LifecycleCommitted Lifecycle = "committed"
)

// Item is one extracted shipment under review.
type Item struct {
	ID             string `json:"id"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	ShipmentNumber string `json:"shipmentNumber,omitempty"`
	ProNumber      string `json:"proNumber,omitempty"`
	BOLNumber      string `json:"bolNumber,omitempty"`
	Reference      string `json:"reference,omitempty"`
	Carrier        string `json:"carrier,omitempty"`

	Charges []rates.InvoiceCharge `json:"charges"`

	Match *MatchResult `json:"match,omitempty"`

	APStatus    rates.ApprovalStatus `json:"apStatus,omitempty"`
	APStatusAt  *time.Time           `json:"apStatusAt,omitempty"`
	APStatusBy  string               `json:"apStatusBy,omitempty"`
	ChargeID    string               `json:"chargeId,omitempty"`
	ShipmentKey string               `json:"shipmentKey,omitempty"`
	Lifecycle   Lifecycle            `json:"lifecycle"`
}

func (it *Item) ExplicitStatus() rates.ApprovalStatus { return it.APStatus }

func (it *Item) MatchConfidence() (float64, bool) {
	if it.Match == nil {
		return 0, false
	}
	return it.Match.Confidence, true
}

// Status is the derived workflow status.
func (it *Item) Status() rates.ApprovalStatus { return rates.ResolveStatus(it) }

// InvoiceTotal sums the item's invoice lines.
func (it *Item) InvoiceTotal() decimal.Decimal { return rates.InvoiceTotal(it.Charges) }

// identifierCandidates lists ids in resolution order.
func (it *Item) identifierCandidates() []string {
	var c []string
	if it.Match != nil && it.Match.BestMatch != nil {
		c = append(c, it.Match.BestMatch.ID, it.Match.BestMatch.ShipmentID)
	}
	c = append(c, it.ShipmentNumber, it.ProNumber, it.BOLNumber, it.Reference)
	if it.Match != nil && it.Match.BestMatch != nil {
		c = append(c, it.Match.BestMatch.TrackingNumber)
	}
	return append(c, it.TrackingNumber)
}

// ResolveIdentifier returns the first usable identifier: non-empty and at
// least three characters after trimming.
func (it *Item) ResolveIdentifier() (string, bool) {
	for _, id := range it.identifierCandidates() {
		id = strings.TrimSpace(id)
		if len(id) >= minIdentifierLen {
			return id, true
		}
	}
	return "", false
}

const minIdentifierLen = 3

// =============================================================================
// UPLOAD
// =============================================================================

// Upload is one carrier invoice batch.
type Upload struct {
	ID        string    `json:"id"`
	Carrier   string    `json:"carrier,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Items     []Item    `json:"items"`

	APStatus        rates.ApprovalStatus `json:"apStatus,omitempty"`
	RejectedAt      *time.Time           `json:"rejectedAt,omitempty"`
	RejectedBy      string               `json:"rejectedBy,omitempty"`
	RejectionReason string               `json:"rejectionReason,omitempty"`
}

// Item returns a pointer into u.Items, or nil.
func (u *Upload) Item(id string) *Item {
	for i := range u.Items {
		if u.Items[i].ID == id {
			return &u.Items[i]
		}
	}
	return nil
}

// Filter is a read-side view. The upload itself stays the single source.
func (u *Upload) Filter(keep func(*Item) bool) []*Item {
	var out []*Item
	for i := range u.Items {
		if keep(&u.Items[i]) {
			out = append(out, &u.Items[i])
		}
	}
	return out
}

// ByStatus filters on derived status. An empty status keeps everything.
func (u *Upload) ByStatus(status rates.ApprovalStatus) []*Item {
	return u.Filter(func(it *Item) bool {
		return status == "" || it.Status() == status
	})
}

// UploadStore is the authoritative in-memory or durable store of uploads.
type UploadStore interface {
	GetUpload(ctx context.Context, id string) (*Upload, error)
	SaveUpload(ctx context.Context, u *Upload) error
	ListUploads(ctx context.Context) ([]*Upload, error)
}

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// CostPayload is the actual-cost record pushed for one shipment.
type CostPayload struct {
	ItemID   string                `json:"itemId"`
	UploadID string                `json:"uploadId"`
	Charges  []rates.InvoiceCharge `json:"charges"`
	Total    decimal.Decimal       `json:"total"`
	Currency string                `json:"currency"`
	Actor    string                `json:"actor"`
}

// CostComparison is the collaborator's view after the push, when it has one.
type CostComparison struct {
	InvoiceTotal      decimal.Decimal `json:"invoiceTotal"`
	SystemActualTotal decimal.Decimal `json:"systemActualTotal"`
}

type PushResult struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message,omitempty"`
	CostComparison *CostComparison `json:"costComparison,omitempty"`
}

type ChargeResult struct {
	Success  bool   `json:"success"`
	ChargeID string `json:"chargeId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// CostPusher records an invoice's charges as the shipment's actual cost.
type CostPusher interface {
	PushActualCost(ctx context.Context, shipmentKey string, payload CostPayload) (*PushResult, error)
}

// ChargeCreator creates the approved AP charge for a shipment.
type ChargeCreator interface {
	CreateApprovedCharge(ctx context.Context, shipmentKey string, item Item, confidence float64) (*ChargeResult, error)
}

// Matcher is the external matching algorithm; treated as a black box.
type Matcher interface {
	MatchInvoiceToShipment(ctx context.Context, item Item, carrierHint string) (*MatchResult, error)
}
