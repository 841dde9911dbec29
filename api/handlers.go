/*
handlers.go - HTTP API handlers for reconciliation

ENDPOINTS:
  Rates:
    GET    /api/shipments/{id}/rates        Projected ledger
    PUT    /api/shipments/{id}/rates        Replace charges and persist
    POST   /api/shipments/{id}/rates/edits  Apply editor ops, optionally persist

  Comparison:
    POST   /api/comparison                               Ad-hoc comparison
    GET    /api/uploads/{id}/items/{itemId}/comparison   Item vs matched shipment

  Scenarios (only when a Seeder is configured):
    GET    /api/scenarios                   Available demo scenarios
    GET    /api/scenarios/current           Loaded scenario
    POST   /api/scenarios/load              Reset and load a scenario
    POST   /api/scenarios/reset             Reset the database

  Uploads:
    GET    /api/uploads                     Summaries with status counts
    PUT    /api/uploads/{id}                Ingest or replace an upload
    GET    /api/uploads/{id}                Upload document
    GET    /api/uploads/{id}/items          Items with derived status (?status=)
    POST   /api/uploads/{id}/match          Run the matcher on unmatched items
    POST   /api/uploads/{id}/approve        Approve (normal or override)
    POST   /api/uploads/{id}/reject         Reject the upload
    POST   /api/uploads/{id}/items/{itemId}/exception  Mark exception

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 404: Shipment, upload or item not found
  - 409: Concurrent modification (retryable)
  - 422: Per-item partial failure (body lists every failed item)
  - 500: Internal errors
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/ap-reconcile/rates"
	"github.com/warp/ap-reconcile/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Shipments  rates.ShipmentStore
	Uploads    workflow.UploadStore
	Projector  *rates.Projector
	Persister  *rates.Persister
	Controller *workflow.Controller
	Logger     *slog.Logger

	// Seeder enables demo scenarios and reset. Nil disables those routes.
	Seeder Seeder

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the read path, write path and controller over one
// shipment store.
func NewHandler(shipments rates.ShipmentStore, uploads workflow.UploadStore, controller *workflow.Controller, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Shipments:  shipments,
		Uploads:    uploads,
		Projector:  rates.NewProjector(shipments),
		Persister:  rates.NewPersister(shipments),
		Controller: controller,
		Logger:     logger,
	}
}

// =============================================================================
// RATES
// =============================================================================

// GetRates returns the canonical ledger for a shipment.
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	ledger, _, err := h.Projector.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to load rates", err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

// SaveRates replaces a shipment's charges.
func (h *Handler) SaveRates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SaveRatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required", nil)
		return
	}

	ledger, _, err := h.Projector.Load(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to load rates", err)
		return
	}
	ledger.Charges = make([]rates.ChargeLine, 0, len(req.Charges))
	for _, c := range req.Charges {
		ledger.Charges = append(ledger.Charges, c.toLine())
	}
	ledger.Recompute()

	h.persistAndReload(w, r, id, ledger, req.Actor)
}

// EditRates runs Charge Editor operations against the current ledger.
func (h *Handler) EditRates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req EditRatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ledger, _, err := h.Projector.Load(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to load rates", err)
		return
	}

	original := ledger.Totals.Cost
	if req.OriginalTotal != nil {
		original = rates.ToDecimal(req.OriginalTotal)
	}
	editor := rates.NewEditor(ledger, original, req.Actor)

	var added []string
	for _, op := range req.Ops {
		switch op.Op {
		case "add":
			newID := editor.Add()
			added = append(added, newID)
			for field, value := range op.Fields {
				if err := editor.Update(newID, field, value); err != nil {
					h.writeDomainError(w, "Invalid edit", err)
					return
				}
			}
		case "update":
			if err := editor.Update(op.ID, op.Field, op.Value); err != nil {
				h.writeDomainError(w, "Invalid edit", err)
				return
			}
		case "remove":
			if !editor.Remove(op.ID) {
				h.writeDomainError(w, "Invalid edit", &rates.NotFoundError{Kind: "charge", Key: op.ID})
				return
			}
		default:
			writeError(w, http.StatusBadRequest, "Unknown edit op: "+op.Op, nil)
			return
		}
	}

	resp := EditRatesResponse{
		Ledger:     editor.Ledger(),
		Total:      editor.Total(),
		HasChanges: editor.HasChanges(),
		AddedIDs:   added,
	}
	if req.DryRun || len(req.Ops) == 0 {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required to save", nil)
		return
	}

	if err := h.Persister.Persist(r.Context(), id, resp.Ledger, req.Actor); err != nil {
		h.writeDomainError(w, "Failed to save rates", err)
		return
	}
	saved, _, err := h.Projector.Load(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to reload rates", err)
		return
	}
	resp.Ledger = saved
	resp.Saved = true
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) persistAndReload(w http.ResponseWriter, r *http.Request, id string, ledger *rates.Ledger, actor string) {
	if err := h.Persister.Persist(r.Context(), id, ledger, actor); err != nil {
		h.writeDomainError(w, "Failed to save rates", err)
		return
	}
	saved, _, err := h.Projector.Load(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to reload rates", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// =============================================================================
// COMPARISON
// =============================================================================

// Compare aligns caller-supplied invoice and system charges.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	writeJSON(w, http.StatusOK, newComparisonResponse(rates.Compare(req.InvoiceCharges, req.SystemCharges)))
}

// ItemComparison aligns an item with its matched shipment.
func (h *Handler) ItemComparison(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Controller.Comparison(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		h.writeDomainError(w, "Failed to compare charges", err)
		return
	}
	writeJSON(w, http.StatusOK, newComparisonResponse(rows))
}

// =============================================================================
// UPLOADS
// =============================================================================

func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.Uploads.ListUploads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list uploads", err)
		return
	}
	out := make([]UploadSummaryDTO, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, toUploadSummary(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// PutUpload is the hand-off point from extraction. Items arrive pending.
func (h *Handler) PutUpload(w http.ResponseWriter, r *http.Request) {
	var u workflow.Upload
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	u.ID = chi.URLParam(r, "id")
	for i := range u.Items {
		if u.Items[i].ID == "" {
			writeError(w, http.StatusBadRequest, "every item needs an id", nil)
			return
		}
		if u.Items[i].Lifecycle == "" {
			u.Items[i].Lifecycle = workflow.LifecyclePending
		}
	}
	if err := h.Uploads.SaveUpload(r.Context(), &u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save upload", err)
		return
	}
	writeJSON(w, http.StatusOK, toUploadSummary(&u))
}

func (h *Handler) GetUpload(w http.ResponseWriter, r *http.Request) {
	u, err := h.Uploads.GetUpload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to load upload", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ListItems returns items with their derived status, filtered on read.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	u, err := h.Uploads.GetUpload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to load upload", err)
		return
	}
	items := u.ByStatus(rates.ApprovalStatus(r.URL.Query().Get("status")))
	out := make([]ItemDTO, 0, len(items))
	for _, it := range items {
		out = append(out, toItemDTO(it))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) MatchUpload(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	n, err := h.Controller.Match(r.Context(), chi.URLParam(r, "id"), req.CarrierHint)
	if err != nil {
		h.writeDomainError(w, "Failed to match upload", err)
		return
	}
	writeJSON(w, http.StatusOK, MatchResponse{Matched: n})
}

func (h *Handler) ApproveUpload(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required", nil)
		return
	}

	result, err := h.Controller.ApproveBatch(r.Context(), chi.URLParam(r, "id"), workflow.ApproveOptions{
		Override: req.Override,
		ItemIDs:  req.ItemIDs,
		Actor:    req.Actor,
	})
	if err != nil {
		h.writeDomainError(w, "Approval failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) MarkException(w http.ResponseWriter, r *http.Request) {
	var req ExceptionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if err := h.Controller.MarkException(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), req.Actor); err != nil {
		h.writeDomainError(w, "Failed to mark exception", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RejectUpload(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Controller.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Actor); err != nil {
		h.writeDomainError(w, "Failed to reject upload", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the rates error taxonomy onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var pf *rates.PartialFailure
	switch {
	case errors.As(err, &pf):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: message, Details: err.Error(), Failures: pf.Failures})
	case rates.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, rates.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case rates.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Logger.Error(message, "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
