package inventory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/authz"
	"warehouse-backend/internal/models"
	"warehouse-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type transferFixture struct {
	db      *gorm.DB
	svc     *TransferService
	manager authz.Actor
	viewer  authz.Actor
	a, b, c models.Warehouse
	item    models.Item
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	store, db := newTestStore(t)
	f := &transferFixture{
		db:      db,
		svc:     NewTransferService(store, zap.NewNop()),
		manager: testutil.Actor(testutil.CreateUser(t, db, "manager", models.RoleManager)),
		viewer:  testutil.Actor(testutil.CreateUser(t, db, "viewer", models.RoleViewer)),
		a:       testutil.CreateWarehouse(t, db, "A"),
		b:       testutil.CreateWarehouse(t, db, "B"),
		c:       testutil.CreateWarehouse(t, db, "C"),
		item:    testutil.CreateItem(t, db, "SKU-1"),
	}
	return f
}

func (f *transferFixture) request(from, to models.Warehouse, qty int64) TransferRequest {
	return TransferRequest{
		SourceWarehouseID: from.ID,
		DestWarehouseID:   to.ID,
		ItemID:            f.item.ID,
		Quantity:          qty,
	}
}

func (f *transferFixture) assertNoTrace(t *testing.T) {
	t.Helper()
	assert.Equal(t, int64(0), testutil.Count(t, f.db, &models.Transfer{}))
	assert.Equal(t, int64(0), testutil.Count(t, f.db, &models.AuditLog{}))
}

func TestTransfer_MovesStock(t *testing.T) {
	f := newTransferFixture(t)
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)

	transfer, err := f.svc.Transfer(context.Background(), f.manager, f.request(f.a, f.b, 3))

	require.NoError(t, err)
	assert.Equal(t, models.TransferCommitted, transfer.Status)
	assert.NotZero(t, transfer.ID)
	assert.NotEmpty(t, transfer.Reference)
	assert.Equal(t, f.manager.UserID, transfer.UserID)

	assert.Equal(t, int64(7), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
	assert.Equal(t, int64(3), testutil.Stock(t, f.db, f.b.ID, f.item.ID))

	var logs []models.AuditLog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	rec := logs[0]
	assert.Equal(t, models.AuditActionTransfer, rec.Action)
	assert.Equal(t, "transfer", rec.EntityType)
	assert.Equal(t, transfer.ID, rec.EntityID)
	assert.Equal(t, f.manager.UserID, rec.UserID)
	assert.Equal(t, "manager", rec.UserName)
	require.NotNil(t, rec.Quantity)
	assert.Equal(t, int64(3), *rec.Quantity)
	require.NotNil(t, rec.SourceWarehouseID)
	assert.Equal(t, f.a.ID, *rec.SourceWarehouseID)
	require.NotNil(t, rec.DestWarehouseID)
	assert.Equal(t, f.b.ID, *rec.DestWarehouseID)

	var before, after []models.StockLevel
	require.NoError(t, json.Unmarshal([]byte(rec.BeforeData), &before))
	require.NoError(t, json.Unmarshal([]byte(rec.AfterData), &after))
	assert.Equal(t, []models.StockLevel{
		{WarehouseID: f.a.ID, ItemID: f.item.ID, Quantity: 10},
		{WarehouseID: f.b.ID, ItemID: f.item.ID, Quantity: 0},
	}, before)
	assert.Equal(t, []models.StockLevel{
		{WarehouseID: f.a.ID, ItemID: f.item.ID, Quantity: 7},
		{WarehouseID: f.b.ID, ItemID: f.item.ID, Quantity: 3},
	}, after)
}

func TestTransfer_ViewerIsUnauthorized(t *testing.T) {
	f := newTransferFixture(t)
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)

	transfer, err := f.svc.Transfer(context.Background(), f.viewer, f.request(f.a, f.b, 1))

	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, models.TransferRejected, transfer.Status)
	assert.Equal(t, int64(10), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
	f.assertNoTrace(t)
}

func TestTransfer_InvalidQuantity(t *testing.T) {
	for _, qty := range []int64{0, -1} {
		f := newTransferFixture(t)
		testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)

		transfer, err := f.svc.Transfer(context.Background(), f.manager, f.request(f.a, f.b, qty))

		require.ErrorIs(t, err, apperr.ErrInvalidQuantity)
		assert.Equal(t, models.TransferRejected, transfer.Status)
		assert.Equal(t, int64(10), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
		f.assertNoTrace(t)
	}
}

func TestTransfer_SameWarehouse(t *testing.T) {
	f := newTransferFixture(t)
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)

	_, err := f.svc.Transfer(context.Background(), f.manager, f.request(f.a, f.a, 1))

	require.ErrorIs(t, err, apperr.ErrSameWarehouse)
	assert.Equal(t, int64(10), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
	f.assertNoTrace(t)
}

func TestTransfer_InsufficientStockLeavesNoTrace(t *testing.T) {
	f := newTransferFixture(t)
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)

	transfer, err := f.svc.Transfer(context.Background(), f.manager, f.request(f.a, f.b, 11))

	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, int64(10), ae.Fields["available"])
	assert.Equal(t, models.TransferRejected, transfer.Status)
	assert.Zero(t, transfer.ID)

	assert.Equal(t, int64(10), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
	assert.Equal(t, int64(0), testutil.Stock(t, f.db, f.b.ID, f.item.ID))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.StockEntry{}))
	f.assertNoTrace(t)
}

func TestTransfer_MultiByteNotes(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)

	req := f.request(f.a, f.b, 1)
	req.Notes = strings.Repeat("ş", 250)
	transfer, err := f.svc.Transfer(ctx, f.manager, req)

	require.NoError(t, err)
	assert.Equal(t, req.Notes, transfer.Notes)
	rec := lastAudit(t, f.db)
	assert.True(t, utf8.ValidString(rec.Description))
	assert.Equal(t, 255, utf8.RuneCountInString(rec.Description))
	assert.True(t, strings.HasSuffix(rec.Description, "ş"))

	req.Notes = strings.Repeat("ş", 256)
	transfer, err = f.svc.Transfer(ctx, f.manager, req)

	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, models.TransferRejected, transfer.Status)
	assert.Equal(t, int64(9), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.Transfer{}))
}

func TestTransfer_AuditFailureRollsBackStock(t *testing.T) {
	f := newTransferFixture(t)
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)
	require.NoError(t, f.db.Migrator().DropTable(&models.AuditLog{}))

	transfer, err := f.svc.Transfer(context.Background(), f.manager, f.request(f.a, f.b, 3))

	require.ErrorIs(t, err, apperr.ErrStorageFailure)
	assert.Equal(t, models.TransferRejected, transfer.Status)
	assert.Zero(t, transfer.ID)
	assert.Equal(t, int64(10), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
	assert.Equal(t, int64(0), testutil.Stock(t, f.db, f.b.ID, f.item.ID))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.StockEntry{}))
	assert.Equal(t, int64(0), testutil.Count(t, f.db, &models.Transfer{}))
}

func TestTransfer_ToDeletedWarehouse(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)
	testutil.SetStock(t, f.db, f.b.ID, f.item.ID, 4)

	catalog := NewCatalog(f.svc.store, zap.NewNop())
	require.NoError(t, catalog.DeleteWarehouse(ctx, f.manager, f.b.ID, true))

	_, err := f.svc.Transfer(ctx, f.manager, f.request(f.a, f.b, 3))

	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, int64(10), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
	var orphans int64
	require.NoError(t, f.db.Model(&models.StockEntry{}).Where("warehouse_id = ?", f.b.ID).Count(&orphans).Error)
	assert.Zero(t, orphans)
}

func TestTransfer_NotFound(t *testing.T) {
	f := newTransferFixture(t)
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)

	cases := map[string]TransferRequest{
		"source":      {SourceWarehouseID: 999, DestWarehouseID: f.b.ID, ItemID: f.item.ID, Quantity: 1},
		"destination": {SourceWarehouseID: f.a.ID, DestWarehouseID: 999, ItemID: f.item.ID, Quantity: 1},
		"item":        {SourceWarehouseID: f.a.ID, DestWarehouseID: f.b.ID, ItemID: 999, Quantity: 1},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Transfer(context.Background(), f.manager, req)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}

	assert.Equal(t, int64(10), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
	f.assertNoTrace(t)
}

func TestTransfer_PreservesTotal(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 20)
	testutil.SetStock(t, f.db, f.b.ID, f.item.ID, 5)

	steps := []TransferRequest{
		f.request(f.a, f.b, 4),
		f.request(f.b, f.c, 9),
		f.request(f.c, f.a, 2),
		f.request(f.b, f.a, 100), // rejected
		f.request(f.a, f.c, 18),
	}
	for _, req := range steps {
		_, _ = f.svc.Transfer(ctx, f.manager, req)
	}

	total := testutil.Stock(t, f.db, f.a.ID, f.item.ID) +
		testutil.Stock(t, f.db, f.b.ID, f.item.ID) +
		testutil.Stock(t, f.db, f.c.ID, f.item.ID)
	assert.Equal(t, int64(25), total)
	assert.Equal(t, int64(4), testutil.Count(t, f.db, &models.Transfer{}))
	assert.Equal(t, int64(4), testutil.Count(t, f.db, &models.AuditLog{}))
}

func TestTransfer_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newTransferFixture(t)
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	dests := []models.Warehouse{f.b, f.c}
	for i := range dests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Transfer(context.Background(), f.manager, f.request(f.a, dests[i], 6))
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Kind(err) == apperr.ErrInsufficientStock:
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(4), testutil.Stock(t, f.db, f.a.ID, f.item.ID))
	assert.Equal(t, int64(6),
		testutil.Stock(t, f.db, f.b.ID, f.item.ID)+testutil.Stock(t, f.db, f.c.ID, f.item.ID))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.Transfer{}))
}

func TestTransfer_ListAndGet(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	testutil.SetStock(t, f.db, f.a.ID, f.item.ID, 10)

	first, err := f.svc.Transfer(ctx, f.manager, f.request(f.a, f.b, 1))
	require.NoError(t, err)
	second, err := f.svc.Transfer(ctx, f.manager, f.request(f.a, f.c, 2))
	require.NoError(t, err)

	all, err := f.svc.ListTransfers(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	toB, err := f.svc.ListTransfers(ctx, f.b.ID, 0)
	require.NoError(t, err)
	require.Len(t, toB, 1)
	assert.Equal(t, first.Reference, toB[0].Reference)

	got, err := f.svc.GetTransfer(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Quantity)

	_, err = f.svc.GetTransfer(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
