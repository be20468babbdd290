package inventory

import (
	"context"
	"encoding/json"
	"testing"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/authz"
	"warehouse-backend/internal/models"
	"warehouse-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestCatalog(t *testing.T) (*Catalog, *gorm.DB, authz.Actor) {
	t.Helper()
	store, db := newTestStore(t)
	manager := testutil.Actor(testutil.CreateUser(t, db, "manager", models.RoleManager))
	return NewCatalog(store, zap.NewNop()), db, manager
}

func strPtr(s string) *string { return &s }

func lastAudit(t *testing.T, db *gorm.DB) models.AuditLog {
	t.Helper()
	var rec models.AuditLog
	require.NoError(t, db.Order("id DESC").First(&rec).Error)
	return rec
}

func TestCatalog_CreateWarehouse(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	ctx := context.Background()

	w, err := catalog.CreateWarehouse(ctx, manager, WarehouseInput{
		Code:    strPtr(" WH-1 "),
		Name:    strPtr("Main"),
		Address: strPtr("Dock 4"),
	})

	require.NoError(t, err)
	assert.NotZero(t, w.ID)
	assert.Equal(t, "WH-1", w.Code)

	rec := lastAudit(t, db)
	assert.Equal(t, models.AuditActionCreate, rec.Action)
	assert.Equal(t, "warehouse", rec.EntityType)
	assert.Equal(t, w.ID, rec.EntityID)
	assert.Equal(t, "null", rec.BeforeData)
}

func TestCatalog_CreateWarehouse_Validation(t *testing.T) {
	catalog, _, manager := newTestCatalog(t)
	ctx := context.Background()

	_, err := catalog.CreateWarehouse(ctx, manager, WarehouseInput{Code: strPtr("WH-1")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	capacity := -1.0
	_, err = catalog.CreateWarehouse(ctx, manager, WarehouseInput{Code: strPtr("WH-1"), Name: strPtr("Main"), Capacity: &capacity})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCatalog_CreateWarehouse_DuplicateCode(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	testutil.CreateWarehouse(t, db, "WH-1")

	_, err := catalog.CreateWarehouse(context.Background(), manager, WarehouseInput{Code: strPtr("WH-1"), Name: strPtr("Other")})

	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCatalog_CreateWarehouse_ViewerDenied(t *testing.T) {
	catalog, db, _ := newTestCatalog(t)
	viewer := testutil.Actor(testutil.CreateUser(t, db, "viewer", models.RoleViewer))

	_, err := catalog.CreateWarehouse(context.Background(), viewer, WarehouseInput{Code: strPtr("WH-1"), Name: strPtr("Main")})

	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.Warehouse{}))
}

func TestCatalog_UpdateWarehouse(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	w := testutil.CreateWarehouse(t, db, "WH-1")

	updated, err := catalog.UpdateWarehouse(context.Background(), manager, w.ID, WarehouseInput{Name: strPtr("Renamed")})

	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "WH-1", updated.Code)

	rec := lastAudit(t, db)
	assert.Equal(t, models.AuditActionUpdate, rec.Action)
	var before models.Warehouse
	require.NoError(t, json.Unmarshal([]byte(rec.BeforeData), &before))
	assert.Equal(t, "Warehouse WH-1", before.Name)
}

func TestCatalog_UpdateWarehouse_CodeTaken(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	testutil.CreateWarehouse(t, db, "WH-1")
	w2 := testutil.CreateWarehouse(t, db, "WH-2")

	_, err := catalog.UpdateWarehouse(context.Background(), manager, w2.ID, WarehouseInput{Code: strPtr("WH-1")})

	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCatalog_ListWarehouses_WithTotals(t *testing.T) {
	catalog, db, _ := newTestCatalog(t)
	a := testutil.CreateWarehouse(t, db, "NORTH")
	testutil.CreateWarehouse(t, db, "SOUTH")
	item := testutil.CreateItem(t, db, "SKU-1")
	testutil.SetStock(t, db, a.ID, item.ID, 12)

	all, err := catalog.ListWarehouses(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(12), all[0].TotalQuantity)
	assert.Equal(t, int64(0), all[1].TotalQuantity)

	found, err := catalog.ListWarehouses(context.Background(), "south")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "SOUTH", found[0].Code)
}

func TestCatalog_DeleteWarehouse_StockNotEmpty(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	w := testutil.CreateWarehouse(t, db, "WH-1")
	item := testutil.CreateItem(t, db, "SKU-1")
	testutil.SetStock(t, db, w.ID, item.ID, 5)

	err := catalog.DeleteWarehouse(context.Background(), manager, w.ID, false)

	require.ErrorIs(t, err, apperr.ErrStockNotEmpty)
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.Warehouse{}))
	assert.Equal(t, int64(5), testutil.Stock(t, db, w.ID, item.ID))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.AuditLog{}))
}

func TestCatalog_DeleteWarehouse_Forced(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	w := testutil.CreateWarehouse(t, db, "WH-1")
	item := testutil.CreateItem(t, db, "SKU-1")
	testutil.SetStock(t, db, w.ID, item.ID, 5)

	err := catalog.DeleteWarehouse(context.Background(), manager, w.ID, true)

	require.NoError(t, err)
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.Warehouse{}))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.StockEntry{}))

	rec := lastAudit(t, db)
	assert.Equal(t, models.AuditActionDelete, rec.Action)
	assert.Contains(t, rec.Description, "forced")
	var before cascadeSnapshot
	require.NoError(t, json.Unmarshal([]byte(rec.BeforeData), &before))
	assert.True(t, before.Forced)
	assert.Equal(t, []models.StockLevel{{WarehouseID: w.ID, ItemID: item.ID, Quantity: 5}}, before.Stock)
}

func TestCatalog_DeleteWarehouse_EmptyEntriesGoWithIt(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	w := testutil.CreateWarehouse(t, db, "WH-1")
	item := testutil.CreateItem(t, db, "SKU-1")
	testutil.SetStock(t, db, w.ID, item.ID, 0)

	require.NoError(t, catalog.DeleteWarehouse(context.Background(), manager, w.ID, false))

	assert.Equal(t, int64(0), testutil.Count(t, db, &models.StockEntry{}))
	assert.NotContains(t, lastAudit(t, db).Description, "forced")
}

func TestCatalog_DeleteWarehouse_NotFound(t *testing.T) {
	catalog, _, manager := newTestCatalog(t)

	err := catalog.DeleteWarehouse(context.Background(), manager, 42, false)

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCatalog_Items(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	ctx := context.Background()
	threshold := int64(3)

	item, err := catalog.CreateItem(ctx, manager, ItemInput{
		SKU:               strPtr("BOLT-10"),
		Name:              strPtr("Hex bolt"),
		BatchNumber:       strPtr("B-2025-01"),
		ExpiryDate:        strPtr("2027-03-01"),
		LowStockThreshold: &threshold,
	})
	require.NoError(t, err)
	assert.Equal(t, "units", item.Unit)
	require.NotNil(t, item.ExpiryDate)
	assert.Equal(t, "2027-03-01", item.ExpiryDate.Format("2006-01-02"))

	_, err = catalog.CreateItem(ctx, manager, ItemInput{SKU: strPtr("BOLT-10"), Name: strPtr("Dup")})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = catalog.CreateItem(ctx, manager, ItemInput{SKU: strPtr("X"), Name: strPtr("X"), ExpiryDate: strPtr("03/01/2027")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	testutil.CreateItem(t, db, "NUT-1")

	byBatch, err := catalog.ListItems(ctx, ItemFilter{BatchNumber: "B-2025-01"})
	require.NoError(t, err)
	require.Len(t, byBatch, 1)
	assert.Equal(t, item.ID, byBatch[0].ID)

	bySearch, err := catalog.ListItems(ctx, ItemFilter{Search: "HEX"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)

	updated, err := catalog.UpdateItem(ctx, manager, item.ID, ItemInput{Name: strPtr("Hex bolt M10"), ExpiryDate: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "Hex bolt M10", updated.Name)
	assert.Nil(t, updated.ExpiryDate)

	reloaded, err := catalog.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.ExpiryDate)

	_, err = catalog.UpdateItem(ctx, manager, item.ID, ItemInput{SKU: strPtr("OTHER")})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCatalog_DeleteItem(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	ctx := context.Background()
	w := testutil.CreateWarehouse(t, db, "WH-1")
	item := testutil.CreateItem(t, db, "SKU-1")
	testutil.SetStock(t, db, w.ID, item.ID, 2)

	err := catalog.DeleteItem(ctx, manager, item.ID, false)
	require.ErrorIs(t, err, apperr.ErrStockNotEmpty)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, int64(2), ae.Fields["total_quantity"])

	require.NoError(t, catalog.DeleteItem(ctx, manager, item.ID, true))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.Item{}))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.StockEntry{}))
	assert.Equal(t, models.AuditActionDelete, lastAudit(t, db).Action)
}

func TestCatalog_ReceiveStock_ExistingItem(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	ctx := context.Background()
	w := testutil.CreateWarehouse(t, db, "WH-1")
	item := testutil.CreateItem(t, db, "SKU-1")

	line, err := catalog.ReceiveStock(ctx, manager, w.ID, ReceiveInput{ItemID: item.ID, Quantity: 8})
	require.NoError(t, err)
	assert.Equal(t, int64(8), line.Quantity)

	line, err = catalog.ReceiveStock(ctx, manager, w.ID, ReceiveInput{ItemID: item.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(10), line.Quantity)

	rec := lastAudit(t, db)
	assert.Equal(t, models.AuditActionAdd, rec.Action)
	require.NotNil(t, rec.Quantity)
	assert.Equal(t, int64(2), *rec.Quantity)
}

func TestCatalog_ReceiveStock_InlineItem(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	w := testutil.CreateWarehouse(t, db, "WH-1")

	line, err := catalog.ReceiveStock(context.Background(), manager, w.ID, ReceiveInput{
		Item:     &ItemInput{SKU: strPtr("NEW-1"), Name: strPtr("New thing"), Unit: strPtr("box")},
		Quantity: 0,
	})

	require.NoError(t, err)
	assert.Equal(t, "NEW-1", line.SKU)
	assert.Equal(t, "box", line.Unit)
	assert.Equal(t, int64(0), line.Quantity)
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.StockEntry{}))
	// item create + stock add
	assert.Equal(t, int64(2), testutil.Count(t, db, &models.AuditLog{}))
}

func TestCatalog_ReceiveStock_Rejections(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	ctx := context.Background()
	w := testutil.CreateWarehouse(t, db, "WH-1")
	item := testutil.CreateItem(t, db, "SKU-1")

	_, err := catalog.ReceiveStock(ctx, manager, w.ID, ReceiveInput{ItemID: item.ID, Quantity: -1})
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)

	_, err = catalog.ReceiveStock(ctx, manager, 99, ReceiveInput{ItemID: item.ID, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = catalog.ReceiveStock(ctx, manager, w.ID, ReceiveInput{Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// no inline item survives a failed receipt
	_, err = catalog.ReceiveStock(ctx, manager, 99, ReceiveInput{Item: &ItemInput{SKU: strPtr("N"), Name: strPtr("N")}, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.Item{}))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.AuditLog{}))
}

func TestCatalog_SetStock(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	ctx := context.Background()
	w := testutil.CreateWarehouse(t, db, "WH-1")
	item := testutil.CreateItem(t, db, "SKU-1")
	testutil.SetStock(t, db, w.ID, item.ID, 10)

	line, err := catalog.SetStock(ctx, manager, w.ID, item.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), line.Quantity)

	rec := lastAudit(t, db)
	assert.Equal(t, models.AuditActionAdjust, rec.Action)
	require.NotNil(t, rec.Quantity)
	assert.Equal(t, int64(-6), *rec.Quantity)

	_, err = catalog.SetStock(ctx, manager, w.ID, item.ID, -1)
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)

	other := testutil.CreateItem(t, db, "SKU-2")
	_, err = catalog.SetStock(ctx, manager, w.ID, other.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCatalog_RemoveStock(t *testing.T) {
	catalog, db, manager := newTestCatalog(t)
	ctx := context.Background()
	w := testutil.CreateWarehouse(t, db, "WH-1")
	item := testutil.CreateItem(t, db, "SKU-1")
	testutil.SetStock(t, db, w.ID, item.ID, 3)

	err := catalog.RemoveStock(ctx, manager, w.ID, item.ID, false)
	require.ErrorIs(t, err, apperr.ErrStockNotEmpty)
	assert.Equal(t, int64(3), testutil.Stock(t, db, w.ID, item.ID))

	require.NoError(t, catalog.RemoveStock(ctx, manager, w.ID, item.ID, true))
	assert.Equal(t, int64(0), testutil.Count(t, db, &models.StockEntry{}))
	assert.Equal(t, models.AuditActionRemove, lastAudit(t, db).Action)

	err = catalog.RemoveStock(ctx, manager, w.ID, item.ID, true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCascadePolicy(t *testing.T) {
	empty := []models.StockEntry{{WarehouseID: 1, ItemID: 1, Quantity: 0}}
	stocked := []models.StockEntry{{WarehouseID: 1, ItemID: 1, Quantity: 0}, {WarehouseID: 2, ItemID: 1, Quantity: 4}}

	assert.NoError(t, CascadePolicy("op", nil, false, nil))
	assert.NoError(t, CascadePolicy("op", empty, false, nil))
	assert.NoError(t, CascadePolicy("op", stocked, true, nil))

	err := CascadePolicy("op", stocked, false, nil)
	require.ErrorIs(t, err, apperr.ErrStockNotEmpty)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, int64(1), ae.Fields["stocked_entries"])
	assert.Equal(t, int64(4), ae.Fields["total_quantity"])
}
