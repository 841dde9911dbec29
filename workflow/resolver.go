package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/warp/ap-reconcile/rates"
)

// =============================================================================
// RESOLVER - Item identifier -> authoritative storage key
// =============================================================================

// Resolver looks up an identifier first as a storage key, then as a
// business shipment id. Hits are cached; misses are not.
type Resolver struct {
	Store rates.ShipmentStore
	cache *cache.Cache
}

const defaultLookupTTL = 5 * time.Minute

// NewResolver caches lookups for ttl. A zero ttl uses five minutes.
func NewResolver(store rates.ShipmentStore, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = defaultLookupTTL
	}
	return &Resolver{Store: store, cache: cache.New(ttl, 2*ttl)}
}

// Resolve returns the storage key for an item.
func (r *Resolver) Resolve(ctx context.Context, it *Item) (string, error) {
	id, ok := it.ResolveIdentifier()
	if !ok {
		return "", &rates.ValidationError{Reason: "item " + it.ID + " has no usable shipment identifier"}
	}
	return r.Lookup(ctx, id)
}

// Lookup maps one identifier to a storage key.
func (r *Resolver) Lookup(ctx context.Context, id string) (string, error) {
	if key, found := r.cache.Get(id); found {
		return key.(string), nil
	}

	rec, err := r.Store.FetchShipment(ctx, id)
	if err != nil && !errors.Is(err, rates.ErrNotFound) {
		return "", fmt.Errorf("failed to fetch shipment %s: %w", id, err)
	}
	if rec == nil {
		rec, err = r.Store.FindShipmentByBusinessID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to resolve shipment %s: %w", id, err)
		}
	}

	r.cache.SetDefault(id, rec.ID)
	return rec.ID, nil
}

// Forget drops a cached identifier.
func (r *Resolver) Forget(id string) {
	r.cache.Delete(id)
}

// Flush drops every cached identifier, e.g. after the store was reset.
func (r *Resolver) Flush() {
	r.cache.Flush()
}
