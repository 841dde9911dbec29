package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ap-reconcile/rates"
	"github.com/warp/ap-reconcile/store/memory"
	"github.com/warp/ap-reconcile/workflow"
)

func TestShipments_FetchReturnsCopies(t *testing.T) {
	// GIVEN: A stored shipment
	ctx := context.Background()
	store := memory.NewShipments()
	store.Put(rates.ShipmentRecord{
		ID:             "key-1",
		ShipmentID:     "SHP-1",
		UpdatedCharges: []rates.ChargeEntry{{Code: "FRT", Name: "Linehaul", Cost: "100"}},
	})

	// WHEN: A caller mutates what it fetched
	rec, err := store.FetchShipment(ctx, "key-1")
	require.NoError(t, err)
	rec.UpdatedCharges[0].Name = "Changed"

	// THEN: The store is unaffected
	again, err := store.FetchShipment(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "Linehaul", again.UpdatedCharges[0].Name)
	assert.Equal(t, int64(1), again.Revision)
}

func TestShipments_FindByBusinessID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewShipments()
	store.Put(rates.ShipmentRecord{ID: "key-1", ShipmentID: "SHP-1"})

	rec, err := store.FindShipmentByBusinessID(ctx, "SHP-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", rec.ID)

	_, err = store.FindShipmentByBusinessID(ctx, "SHP-2")
	assert.True(t, rates.IsNotFound(err))
}

func TestShipments_WriteIsPartialAndGuarded(t *testing.T) {
	// GIVEN: A shipment with charges
	ctx := context.Background()
	store := memory.NewShipments()
	store.Put(rates.ShipmentRecord{
		ID:             "key-1",
		UpdatedCharges: []rates.ChargeEntry{{Code: "FRT", Cost: "100"}},
	})
	status := rates.InvoiceException

	// WHEN: Only the invoice status is patched
	require.NoError(t, store.WriteShipment(ctx, "key-1", rates.ShipmentPatch{InvoiceStatus: &status, ExpectedRevision: 1}))

	// THEN: Charges survive and the revision moves
	rec, err := store.FetchShipment(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, rates.InvoiceException, rec.InvoiceStatus)
	assert.Len(t, rec.UpdatedCharges, 1)
	assert.Equal(t, int64(2), rec.Revision)

	// AND: A patch built against revision 1 now loses
	err = store.WriteShipment(ctx, "key-1", rates.ShipmentPatch{InvoiceStatus: &status, ExpectedRevision: 1})
	assert.ErrorIs(t, err, rates.ErrConcurrentModification)

	err = store.WriteShipment(ctx, "missing", rates.ShipmentPatch{InvoiceStatus: &status})
	assert.True(t, rates.IsNotFound(err))
}

func TestUploads_SaveGetList(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUploads()

	for _, id := range []string{"up-b", "up-a"} {
		require.NoError(t, store.SaveUpload(ctx, &workflow.Upload{ID: id, Items: []workflow.Item{{ID: "i1"}}}))
	}

	u, err := store.GetUpload(ctx, "up-a")
	require.NoError(t, err)
	u.Items[0].APStatus = rates.StatusRejected

	fresh, err := store.GetUpload(ctx, "up-a")
	require.NoError(t, err)
	assert.Empty(t, fresh.Items[0].APStatus, "unsaved changes stay with the caller")

	list, err := store.ListUploads(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "up-a", list[0].ID)
	assert.Equal(t, "up-b", list[1].ID)

	_, err = store.GetUpload(ctx, "up-c")
	assert.True(t, rates.IsNotFound(err))
}
