/*
handlers_test.go - HTTP tests for the reconciliation API

Tests for:
- Rates read, replace, and editor ops
- Upload ingestion, listing with derived status
- Approval, exception, reject over HTTP
- Error status mapping (404, 400, 409, 422)
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/warp/ap-reconcile/rates"
	"github.com/warp/ap-reconcile/store/memory"
	"github.com/warp/ap-reconcile/workflow"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type okCosts struct{ fail bool }

func (c okCosts) PushActualCost(context.Context, string, workflow.CostPayload) (*workflow.PushResult, error) {
	if c.fail {
		return nil, errors.New("cost service down")
	}
	return &workflow.PushResult{Success: true}, nil
}

type okCharges struct{ n int }

func (c *okCharges) CreateApprovedCharge(_ context.Context, key string, _ workflow.Item, _ float64) (*workflow.ChargeResult, error) {
	c.n++
	return &workflow.ChargeResult{Success: true, ChargeID: "chg-" + key}, nil
}

type testServer struct {
	router    http.Handler
	shipments *memory.Shipments
	uploads   *memory.Uploads
	charges   *okCharges
}

func newTestServer(t *testing.T, costs workflow.CostPusher) *testServer {
	t.Helper()
	shipments := memory.NewShipments()
	uploads := memory.NewUploads()
	charges := &okCharges{}

	shipments.Put(rates.ShipmentRecord{
		ID:             "key-1",
		ShipmentID:     "SHP-1",
		CreationMethod: rates.CreationAPI,
		UpdatedCharges: []rates.ChargeEntry{
			{ID: "c1", Code: "FRT", Name: "Linehaul", QuotedCost: "250", ActualCost: "250", QuotedCharge: "300"},
		},
	})

	controller := workflow.NewController(shipments, uploads, costs, charges)
	h := NewHandler(shipments, uploads, controller, nil)
	return &testServer{
		router:    NewRouter(h, nil),
		shipments: shipments,
		uploads:   uploads,
		charges:   charges,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func uploadBody() map[string]any {
	return map[string]any{
		"carrier": "Acme",
		"items": []map[string]any{
			{
				"id":      "i1",
				"charges": []map[string]any{{"code": "FRT", "name": "Linehaul", "amount": "250.00"}},
				"match":   map[string]any{"confidence": 0.97, "bestMatch": map[string]any{"id": "key-1"}},
			},
			{
				"id":             "i2",
				"trackingNumber": "TRK-2",
			},
		},
	}
}

// =============================================================================
// RATES
// =============================================================================

func TestGetRates(t *testing.T) {
	s := newTestServer(t, okCosts{})

	rec := s.do(t, http.MethodGet, "/api/shipments/key-1/rates", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	ledger := decode[rates.Ledger](t, rec)
	if len(ledger.Charges) != 1 || ledger.Charges[0].Code != "FRT" {
		t.Errorf("Unexpected charges: %+v", ledger.Charges)
	}
	if ledger.Totals.Cost.String() != "250" {
		t.Errorf("Expected cost total 250, got %s", ledger.Totals.Cost)
	}

	rec = s.do(t, http.MethodGet, "/api/shipments/nope/rates", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown shipment, got %d", rec.Code)
	}
}

func TestSaveRates(t *testing.T) {
	s := newTestServer(t, okCosts{})

	rec := s.do(t, http.MethodPut, "/api/shipments/key-1/rates", SaveRatesRequest{
		Actor: "clerk",
		Charges: []ChargeLineRequest{
			{Code: "FRT", Name: "Linehaul", Cost: "240.00", Charge: 300},
			{Code: "fsc", Name: "Fuel", Cost: "oops"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	ledger := decode[rates.Ledger](t, rec)
	if len(ledger.Charges) != 2 {
		t.Fatalf("Expected 2 charges, got %d", len(ledger.Charges))
	}
	if ledger.Charges[1].Code != "FSC" || !ledger.Charges[1].Cost.IsZero() {
		t.Errorf("Expected normalized zero-cost FSC line, got %+v", ledger.Charges[1])
	}
	if ledger.ModifiedBy != "clerk" {
		t.Errorf("Expected modifiedBy clerk, got %q", ledger.ModifiedBy)
	}

	rec = s.do(t, http.MethodPut, "/api/shipments/key-1/rates", SaveRatesRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without actor, got %d", rec.Code)
	}
}

func TestEditRates_DryRunThenSave(t *testing.T) {
	s := newTestServer(t, okCosts{})
	ops := []EditOp{
		{Op: "add", Fields: map[string]any{"name": "Liftgate", "code": "ACC", "amount": "35"}},
		{Op: "update", ID: "c1", Field: "cost", Value: 245},
	}

	// WHEN: Applied as a dry run
	rec := s.do(t, http.MethodPost, "/api/shipments/key-1/rates/edits", EditRatesRequest{Actor: "clerk", Ops: ops, DryRun: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[EditRatesResponse](t, rec)

	// THEN: Totals move but nothing is stored
	if resp.Total.String() != "280" || !resp.HasChanges || resp.Saved {
		t.Errorf("Unexpected dry run response: total=%s hasChanges=%v saved=%v", resp.Total, resp.HasChanges, resp.Saved)
	}
	if len(resp.AddedIDs) != 1 {
		t.Errorf("Expected one added id, got %v", resp.AddedIDs)
	}
	stored, _ := s.shipments.FetchShipment(context.Background(), "key-1")
	if stored.Revision != 1 {
		t.Errorf("Dry run must not write, revision is %d", stored.Revision)
	}

	// WHEN: Applied for real
	rec = s.do(t, http.MethodPost, "/api/shipments/key-1/rates/edits", EditRatesRequest{Actor: "clerk", Ops: ops})
	resp = decode[EditRatesResponse](t, rec)
	if !resp.Saved || len(resp.Ledger.Charges) != 2 {
		t.Fatalf("Expected saved ledger with 2 charges, got %+v", resp)
	}
	if resp.Ledger.Charges[1].Name != "Liftgate" {
		t.Errorf("Expected Liftgate line persisted, got %q", resp.Ledger.Charges[1].Name)
	}
}

func TestEditRates_UnknownLine(t *testing.T) {
	s := newTestServer(t, okCosts{})

	rec := s.do(t, http.MethodPost, "/api/shipments/key-1/rates/edits", EditRatesRequest{
		Actor: "clerk",
		Ops:   []EditOp{{Op: "remove", ID: "ghost"}},
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/shipments/key-1/rates/edits", EditRatesRequest{
		Actor: "clerk",
		Ops:   []EditOp{{Op: "rename"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown op, got %d", rec.Code)
	}
}

// =============================================================================
// COMPARISON
// =============================================================================

func TestCompare(t *testing.T) {
	s := newTestServer(t, okCosts{})

	rec := s.do(t, http.MethodPost, "/api/comparison", map[string]any{
		"invoiceCharges": []map[string]any{{"code": "FRT", "name": "Linehaul", "amount": 120}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[ComparisonResponse](t, rec)
	if len(resp.Rows) != 1 || resp.TotalVariance.String() != "120" || resp.Balanced {
		t.Errorf("Unexpected comparison: %+v", resp)
	}
}

func TestItemComparison(t *testing.T) {
	s := newTestServer(t, okCosts{})
	s.do(t, http.MethodPut, "/api/uploads/up-1", uploadBody())

	rec := s.do(t, http.MethodGet, "/api/uploads/up-1/items/i1/comparison", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[ComparisonResponse](t, rec)
	if !resp.Balanced {
		t.Errorf("Expected balanced comparison, variance %s", resp.TotalVariance)
	}
}

// =============================================================================
// UPLOADS
// =============================================================================

func TestUploadLifecycle(t *testing.T) {
	// GIVEN: An ingested upload with one ready and one pending item
	s := newTestServer(t, okCosts{})
	rec := s.do(t, http.MethodPut, "/api/uploads/up-1", uploadBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	summary := decode[UploadSummaryDTO](t, rec)
	if summary.Items != 2 || summary.ByStatus[rates.StatusReady] != 1 || summary.ByStatus[rates.StatusPending] != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	rec = s.do(t, http.MethodGet, "/api/uploads/up-1/items?status=ready", nil)
	items := decode[[]ItemDTO](t, rec)
	if len(items) != 1 || items[0].ID != "i1" || items[0].Status != rates.StatusReady {
		t.Fatalf("Expected only i1 as ready, got %+v", items)
	}
	if items[0].InvoiceTotal.String() != "250" {
		t.Errorf("Expected invoice total 250, got %s", items[0].InvoiceTotal)
	}

	// WHEN: Approved
	rec = s.do(t, http.MethodPost, "/api/uploads/up-1/approve", ApproveRequest{Actor: "clerk"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[workflow.ApproveResult](t, rec)

	// THEN: One charge, shipment drafted
	if result.ApprovedCount != 1 || s.charges.n != 1 {
		t.Errorf("Expected one approval, got %+v (charges %d)", result, s.charges.n)
	}
	stored, _ := s.shipments.FetchShipment(context.Background(), "key-1")
	if stored.InvoiceStatus != rates.InvoiceDraft {
		t.Errorf("Expected draft invoice status, got %q", stored.InvoiceStatus)
	}

	// WHEN: The pending item is marked as exception and the upload rejected
	rec = s.do(t, http.MethodPost, "/api/uploads/up-1/items/i2/exception", ExceptionRequest{Actor: "clerk"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/api/uploads/up-1/reject", RejectRequest{Reason: "wrong carrier", Actor: "lead"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/uploads", nil)
	list := decode[[]UploadSummaryDTO](t, rec)
	if len(list) != 1 || list[0].APStatus != rates.StatusRejected {
		t.Fatalf("Expected one rejected upload, got %+v", list)
	}
	if list[0].ByStatus[rates.StatusApproved] != 1 || list[0].ByStatus[rates.StatusRejected] != 1 {
		t.Errorf("Expected approved item kept and exception item rejected, got %+v", list[0].ByStatus)
	}
}

func TestApprove_PushFailureIs422(t *testing.T) {
	s := newTestServer(t, okCosts{fail: true})
	s.do(t, http.MethodPut, "/api/uploads/up-1", uploadBody())

	rec := s.do(t, http.MethodPost, "/api/uploads/up-1/approve", ApproveRequest{Actor: "clerk"})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[ErrorResponse](t, rec)
	if len(resp.Failures) != 1 || resp.Failures[0].ItemID != "i1" {
		t.Errorf("Expected failure for i1, got %+v", resp.Failures)
	}
	if s.charges.n != 0 {
		t.Errorf("Expected no charges, got %d", s.charges.n)
	}
}

func TestApprove_NothingEligibleIs400(t *testing.T) {
	s := newTestServer(t, okCosts{})
	body := uploadBody()
	body["items"] = []map[string]any{{"id": "i2", "trackingNumber": "TRK-2"}}
	s.do(t, http.MethodPut, "/api/uploads/up-1", body)

	rec := s.do(t, http.MethodPost, "/api/uploads/up-1/approve", ApproveRequest{Actor: "clerk"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/uploads/missing/approve", ApproveRequest{Actor: "clerk"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown upload, got %d", rec.Code)
	}
}

func TestMatch_WithoutMatcherIs400(t *testing.T) {
	s := newTestServer(t, okCosts{})
	s.do(t, http.MethodPut, "/api/uploads/up-1", uploadBody())

	rec := s.do(t, http.MethodPost, "/api/uploads/up-1/match", MatchRequest{CarrierHint: "Acme"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestWriteDomainError_Conflict(t *testing.T) {
	h := &Handler{Logger: nil}
	rec := httptest.NewRecorder()

	h.writeDomainError(rec, "Failed to save rates", rates.ErrConcurrentModification)

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", rec.Code)
	}
}
