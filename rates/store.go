package rates

import "context"

// =============================================================================
// SHIPMENT STORE - "read a record by key, write a record by key"
// =============================================================================

// ShipmentStore is the only persistence contract the core needs.
// Implementations return a *NotFoundError (ErrNotFound) for unknown keys and
// ErrConcurrentModification when a patch's ExpectedRevision is stale.
type ShipmentStore interface {
	// FetchShipment loads a record by its storage key.
	FetchShipment(ctx context.Context, key string) (*ShipmentRecord, error)

	// FindShipmentByBusinessID loads a record by its business shipment id.
	FindShipmentByBusinessID(ctx context.Context, id string) (*ShipmentRecord, error)

	// WriteShipment applies a partial update to an existing record.
	WriteShipment(ctx context.Context, key string, patch ShipmentPatch) error
}
