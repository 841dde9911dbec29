/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

Numeric fields on request types are `any`: clients send numbers, numeric
strings, or null, and all of them are coerced the same way the read path
coerces stored values.
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/ap-reconcile/rates"
	"github.com/warp/ap-reconcile/workflow"
)

// =============================================================================
// RATES
// =============================================================================

type ChargeLineRequest struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Cost           any    `json:"cost"`
	Charge         any    `json:"charge"`
	Currency       string `json:"currency"`
	InvoiceNumber  string `json:"invoiceNumber"`
	EDINumber      string `json:"ediNumber"`
	Commissionable bool   `json:"commissionable"`
	Source         string `json:"source"`
}

func (r ChargeLineRequest) toLine() rates.ChargeLine {
	return rates.ChargeLine{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		Cost:           rates.ToDecimal(r.Cost),
		Charge:         rates.ToDecimal(r.Charge),
		Currency:       r.Currency,
		InvoiceNumber:  r.InvoiceNumber,
		EDINumber:      r.EDINumber,
		Commissionable: r.Commissionable,
		Source:         rates.ChargeSource(r.Source),
	}
}

// SaveRatesRequest replaces the full charge list of a shipment.
type SaveRatesRequest struct {
	Actor   string              `json:"actor"`
	Charges []ChargeLineRequest `json:"charges"`
}

// EditOp is one Charge Editor operation.
type EditOp struct {
	Op     string         `json:"op"` // add, update, remove
	ID     string         `json:"id,omitempty"`
	Field  string         `json:"field,omitempty"`
	Value  any            `json:"value,omitempty"`
	Fields map[string]any `json:"fields,omitempty"` // initial values for add
}

type EditRatesRequest struct {
	Actor         string   `json:"actor"`
	OriginalTotal any      `json:"originalTotal"`
	Ops           []EditOp `json:"ops"`
	// DryRun applies edits and reports totals without persisting.
	DryRun bool `json:"dryRun"`
}

type EditRatesResponse struct {
	Ledger     *rates.Ledger   `json:"ledger"`
	Total      decimal.Decimal `json:"total"`
	HasChanges bool            `json:"hasChanges"`
	AddedIDs   []string        `json:"addedIds,omitempty"`
	Saved      bool            `json:"saved"`
}

// =============================================================================
// COMPARISON
// =============================================================================

type CompareRequest struct {
	InvoiceCharges []rates.InvoiceCharge `json:"invoiceCharges"`
	SystemCharges  []rates.SystemCharge  `json:"systemCharges"`
}

type ComparisonResponse struct {
	Rows          []rates.ComparisonRow `json:"rows"`
	TotalVariance decimal.Decimal       `json:"totalVariance"`
	Balanced      bool                  `json:"balanced"`
}

func newComparisonResponse(rows []rates.ComparisonRow) ComparisonResponse {
	total := rates.TotalVariance(rows)
	return ComparisonResponse{
		Rows:          rows,
		TotalVariance: total,
		Balanced:      rates.WithinTolerance(total),
	}
}

// =============================================================================
// UPLOADS
// =============================================================================

type ItemDTO struct {
	workflow.Item
	Status       rates.ApprovalStatus `json:"status"`
	InvoiceTotal decimal.Decimal      `json:"invoiceTotal"`
}

func toItemDTO(it *workflow.Item) ItemDTO {
	return ItemDTO{Item: *it, Status: it.Status(), InvoiceTotal: it.InvoiceTotal()}
}

type UploadSummaryDTO struct {
	ID       string                       `json:"id"`
	Carrier  string                       `json:"carrier,omitempty"`
	FileName string                       `json:"fileName,omitempty"`
	APStatus rates.ApprovalStatus         `json:"apStatus,omitempty"`
	Items    int                          `json:"items"`
	ByStatus map[rates.ApprovalStatus]int `json:"byStatus"`
}

func toUploadSummary(u *workflow.Upload) UploadSummaryDTO {
	counts := make(map[rates.ApprovalStatus]int)
	for i := range u.Items {
		counts[u.Items[i].Status()]++
	}
	return UploadSummaryDTO{
		ID:       u.ID,
		Carrier:  u.Carrier,
		FileName: u.FileName,
		APStatus: u.APStatus,
		Items:    len(u.Items),
		ByStatus: counts,
	}
}

type MatchRequest struct {
	CarrierHint string `json:"carrierHint"`
}

type MatchResponse struct {
	Matched int `json:"matched"`
}

type ApproveRequest struct {
	Override bool     `json:"override"`
	ItemIDs  []string `json:"itemIds"`
	Actor    string   `json:"actor"`
}

type ExceptionRequest struct {
	Actor string `json:"actor"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error    string              `json:"error"`
	Details  string              `json:"details,omitempty"`
	Failures []rates.ItemFailure `json:"failures,omitempty"`
}
