/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

INTERFACES IMPLEMENTED:
  rates.ShipmentStore:    Native shipment records (read/write by key)
  workflow.UploadStore:   Invoice uploads and their review items
  workflow.CostPusher:    Local recorder for actual-cost pushes
  workflow.ChargeCreator: Local recorder for approved AP charges

The recorders let the server run without the platform's cost and charge
services. In production they are replaced by clients for those services.

KEY TABLES:
  shipments:        One JSON record per shipment, with a revision column
  uploads:          One JSON document per upload
  actual_costs:     Append-only log of cost pushes
  approved_charges: Append-only log of approved charges

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Shipment writes are also guarded by
  a revision compare-and-swap, so a stale patch fails with
  rates.ErrConcurrentModification instead of clobbering a newer write.

USAGE:
  store, err := sqlite.New("./data/reconcile.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/ap-reconcile/rates"
	"github.com/warp/ap-reconcile/workflow"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would be a different database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS shipments (
		id TEXT PRIMARY KEY,
		shipment_id TEXT,
		record_json TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shipments_business_id
		ON shipments(shipment_id) WHERE shipment_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		upload_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS actual_costs (
		id TEXT PRIMARY KEY,
		shipment_key TEXT NOT NULL,
		upload_id TEXT,
		item_id TEXT,
		total TEXT NOT NULL,
		currency TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actual_costs_shipment
		ON actual_costs(shipment_key);

	CREATE TABLE IF NOT EXISTS approved_charges (
		id TEXT PRIMARY KEY,
		shipment_key TEXT NOT NULL,
		upload_id TEXT,
		item_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		confidence REAL NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approved_charges_shipment
		ON approved_charges(shipment_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SHIPMENTS - rates.ShipmentStore
// =============================================================================

// SaveShipment inserts or replaces a whole record. Used for seeding and
// ingestion; the reconciliation core only ever uses WriteShipment.
func (s *Store) SaveShipment(ctx context.Context, rec rates.ShipmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Revision == 0 {
		rec.Revision = 1
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode shipment: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO shipments (id, shipment_id, record_json, revision, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, nullString(rec.ShipmentID), string(data), rec.Revision, rec.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save shipment: %w", err)
	}
	return nil
}

func (s *Store) FetchShipment(ctx context.Context, key string) (*rates.ShipmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryShipment(ctx, s.db, "SELECT record_json, revision FROM shipments WHERE id = ?", key)
}

func (s *Store) FindShipmentByBusinessID(ctx context.Context, id string) (*rates.ShipmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryShipment(ctx, s.db, "SELECT record_json, revision FROM shipments WHERE shipment_id = ? LIMIT 1", id)
}

// WriteShipment applies patch inside a transaction. The UPDATE is guarded by
// the revision that was read, so concurrent writers cannot interleave.
func (s *Store) WriteShipment(ctx context.Context, key string, patch rates.ShipmentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	rec, err := s.queryShipment(ctx, sqlTx, "SELECT record_json, revision FROM shipments WHERE id = ?", key)
	if err != nil {
		return err
	}
	if patch.Conflicts(rec) {
		return rates.ErrConcurrentModification
	}

	read := rec.Revision
	patch.Apply(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode shipment: %w", err)
	}

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE shipments SET record_json = ?, revision = ?, updated_at = ?
		WHERE id = ? AND revision = ?
	`, string(data), rec.Revision, rec.UpdatedAt.UTC().Format(time.RFC3339), key, read)
	if err != nil {
		return fmt.Errorf("failed to write shipment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return rates.ErrConcurrentModification
	}
	return sqlTx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) queryShipment(ctx context.Context, db queryer, query string, key string) (*rates.ShipmentRecord, error) {
	var (
		data     string
		revision int64
	)
	err := db.QueryRowContext(ctx, query, key).Scan(&data, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rates.ShipmentNotFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query shipment: %w", err)
	}

	var rec rates.ShipmentRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode shipment %s: %w", key, err)
	}
	rec.Revision = revision
	return &rec, nil
}

// =============================================================================
// UPLOADS - workflow.UploadStore
// =============================================================================

func (s *Store) GetUpload(ctx context.Context, id string) (*workflow.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT upload_json FROM uploads WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &rates.NotFoundError{Kind: "upload", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upload: %w", err)
	}
	return decodeUpload(data)
}

func (s *Store) SaveUpload(ctx context.Context, u *workflow.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode upload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO uploads (id, upload_json, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET upload_json = excluded.upload_json, updated_at = excluded.updated_at
	`, u.ID, string(data), u.CreatedAt.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return nil
}

func (s *Store) ListUploads(ctx context.Context) ([]*workflow.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT upload_json FROM uploads ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Upload
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		u, err := decodeUpload(data)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func decodeUpload(data string) (*workflow.Upload, error) {
	var u workflow.Upload
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("failed to decode upload: %w", err)
	}
	return &u, nil
}

// =============================================================================
// RECORDERS - workflow.CostPusher, workflow.ChargeCreator
// =============================================================================

// PushActualCost logs the push and reports the system's actual total for
// the shipment as it stood before the push.
func (s *Store) PushActualCost(ctx context.Context, shipmentKey string, payload workflow.CostPayload) (*workflow.PushResult, error) {
	rec, err := s.FetchShipment(ctx, shipmentKey)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cost payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actual_costs (id, shipment_key, upload_id, item_id, total, currency, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), shipmentKey, nullString(payload.UploadID), nullString(payload.ItemID),
		payload.Total.String(), payload.Currency, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to record actual cost: %w", err)
	}

	return &workflow.PushResult{
		Success: true,
		CostComparison: &workflow.CostComparison{
			InvoiceTotal:      payload.Total,
			SystemActualTotal: rates.SystemActualTotal(rates.SystemCharges(rec)),
		},
	}, nil
}

// CreateApprovedCharge logs an approved AP charge and returns its id.
func (s *Store) CreateApprovedCharge(ctx context.Context, shipmentKey string, item workflow.Item, confidence float64) (*workflow.ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currency := rates.DefaultCurrency
	if len(item.Charges) > 0 && item.Charges[0].Currency != "" {
		currency = item.Charges[0].Currency
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approved_charges (id, shipment_key, item_id, amount, currency, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, shipmentKey, item.ID, item.InvoiceTotal().String(), currency, confidence, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to record approved charge: %w", err)
	}
	return &workflow.ChargeResult{Success: true, ChargeID: id}, nil
}

// ApprovedChargeCount returns how many charges were recorded for a shipment.
func (s *Store) ApprovedChargeCount(ctx context.Context, shipmentKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM approved_charges WHERE shipment_key = ?", shipmentKey).Scan(&n)
	return n, err
}

// Reset deletes all data. Development only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM approved_charges;
		DELETE FROM actual_costs;
		DELETE FROM uploads;
		DELETE FROM shipments;
	`)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
