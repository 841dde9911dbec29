// Package memory provides in-memory stores for tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/warp/ap-reconcile/rates"
	"github.com/warp/ap-reconcile/workflow"
)

// =============================================================================
// SHIPMENTS
// =============================================================================

type Shipments struct {
	mu      sync.RWMutex
	records map[string]*rates.ShipmentRecord
	byBizID map[string]string
}

func NewShipments() *Shipments {
	return &Shipments{
		records: make(map[string]*rates.ShipmentRecord),
		byBizID: make(map[string]string),
	}
}

// Put inserts or replaces a record. Revision starts at 1.
func (m *Shipments) Put(rec rates.ShipmentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Revision == 0 {
		rec.Revision = 1
	}
	m.records[rec.ID] = clone(&rec)
	if rec.ShipmentID != "" {
		m.byBizID[rec.ShipmentID] = rec.ID
	}
}

func (m *Shipments) FetchShipment(_ context.Context, key string) (*rates.ShipmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, rates.ShipmentNotFound(key)
	}
	return clone(rec), nil
}

func (m *Shipments) FindShipmentByBusinessID(_ context.Context, id string) (*rates.ShipmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byBizID[id]
	if !ok {
		return nil, rates.ShipmentNotFound(id)
	}
	return clone(m.records[key]), nil
}

func (m *Shipments) WriteShipment(_ context.Context, key string, patch rates.ShipmentPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return rates.ShipmentNotFound(key)
	}
	if patch.Conflicts(rec) {
		return rates.ErrConcurrentModification
	}
	patch.Apply(rec)
	return nil
}

// clone deep-copies through JSON so callers never share slices with the
// store, and values round-trip exactly as a durable store would return them.
func clone(rec *rates.ShipmentRecord) *rates.ShipmentRecord {
	b, err := json.Marshal(rec)
	if err != nil {
		cp := *rec
		return &cp
	}
	var out rates.ShipmentRecord
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *rec
		return &cp
	}
	return &out
}

// =============================================================================
// UPLOADS - Single authoritative store keyed by upload id
// =============================================================================

type Uploads struct {
	mu      sync.RWMutex
	uploads map[string][]byte
}

func NewUploads() *Uploads {
	return &Uploads{uploads: make(map[string][]byte)}
}

func (m *Uploads) GetUpload(_ context.Context, id string) (*workflow.Upload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.uploads[id]
	if !ok {
		return nil, &rates.NotFoundError{Kind: "upload", Key: id}
	}
	var u workflow.Upload
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (m *Uploads) SaveUpload(_ context.Context, u *workflow.Upload) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[u.ID] = b
	return nil
}

func (m *Uploads) ListUploads(ctx context.Context) ([]*workflow.Upload, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.uploads))
	for id := range m.uploads {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*workflow.Upload, 0, len(ids))
	for _, id := range ids {
		u, err := m.GetUpload(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
