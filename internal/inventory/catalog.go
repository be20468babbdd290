package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/audit"
	"warehouse-backend/internal/authz"
	"warehouse-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Catalog manages warehouses, items and the stock lines that join them.
// Every change is written together with its audit record.
type Catalog struct {
	store *Store
	log   *zap.Logger
}

func NewCatalog(store *Store, log *zap.Logger) *Catalog {
	return &Catalog{store: store, log: log}
}

type WarehouseInput struct {
	Code          *string  `json:"code"`
	Name          *string  `json:"name"`
	Address       *string  `json:"address"`
	ContactPerson *string  `json:"contact_person"`
	Capacity      *float64 `json:"capacity"`
	Notes         *string  `json:"notes"`
}

type ItemInput struct {
	SKU               *string `json:"sku"`
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Unit              *string `json:"unit"`
	BatchNumber       *string `json:"batch_number"`
	ExpiryDate        *string `json:"expiry_date"` // "2025-12-09", "" clears it
	LowStockThreshold *int64  `json:"low_stock_threshold"`
}

type ItemFilter struct {
	Search      string
	BatchNumber string
}

type WarehouseSummary struct {
	models.Warehouse
	TotalQuantity int64
}

func likeTerm(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// tooLong compares in characters, the unit of the varchar column widths.
func tooLong(s string, limit int) bool {
	return utf8.RuneCountInString(s) > limit
}

func requireWarehouse(tx *gorm.DB, op string, id uint) error {
	_, err := findWarehouse(tx, op, id)
	return err
}

func findWarehouse(tx *gorm.DB, op string, id uint) (*models.Warehouse, error) {
	var found []models.Warehouse
	if err := tx.Where("id = ?", id).Limit(1).Find(&found).Error; err != nil {
		return nil, apperr.Storage(op, err)
	}
	if len(found) == 0 {
		return nil, apperr.NotFound(op, "warehouse", id)
	}
	return &found[0], nil
}

func requireItem(tx *gorm.DB, op string, id uint) (*models.Item, error) {
	var found []models.Item
	if err := tx.Where("id = ?", id).Limit(1).Find(&found).Error; err != nil {
		return nil, apperr.Storage(op, err)
	}
	if len(found) == 0 {
		return nil, apperr.NotFound(op, "item", id)
	}
	return &found[0], nil
}

func forShare(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "SHARE"})
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// lockOwners takes shared locks on the warehouses and the item a stock change
// books against, warehouses in ascending id order. A delete of any of them
// either waits for this unit of work or has already committed, and then the
// change fails with NotFound instead of booking stock against a dead row.
func lockOwners(tx *gorm.DB, op string, itemID uint, warehouseIDs ...uint) (*models.Item, error) {
	ids := append([]uint(nil), warehouseIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if _, err := findWarehouse(forShare(tx), op, id); err != nil {
			return nil, err
		}
	}
	return requireItem(forShare(tx), op, itemID)
}

func duplicate(op, field, value string, err error) error {
	if err == nil || errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.New(apperr.ErrConflict, op, field+" already exists", apperr.Fields{field: value})
	}
	return apperr.Storage(op, err)
}

func uintPtr(v uint) *uint { return &v }

// ---------------------------------------------
// WAREHOUSES
// ---------------------------------------------

func (c *Catalog) ListWarehouses(ctx context.Context, search string) ([]WarehouseSummary, error) {
	dbq := c.store.DB().WithContext(ctx).Model(&models.Warehouse{})
	if search != "" {
		term := likeTerm(search)
		dbq = dbq.Where("(LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR LOWER(address) LIKE ?)", term, term, term)
	}

	var warehouses []models.Warehouse
	if err := dbq.Order("name ASC, id ASC").Find(&warehouses).Error; err != nil {
		return nil, apperr.Storage("list warehouses", err)
	}

	totals, err := c.store.TotalQuantities(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]WarehouseSummary, 0, len(warehouses))
	for _, w := range warehouses {
		out = append(out, WarehouseSummary{Warehouse: w, TotalQuantity: totals[w.ID]})
	}
	return out, nil
}

func (c *Catalog) GetWarehouse(ctx context.Context, id uint) (*WarehouseSummary, error) {
	w, err := findWarehouse(c.store.DB().WithContext(ctx), "get warehouse", id)
	if err != nil {
		return nil, err
	}
	totals, err := c.store.TotalQuantities(ctx, id)
	if err != nil {
		return nil, err
	}
	return &WarehouseSummary{Warehouse: *w, TotalQuantity: totals[id]}, nil
}

func applyWarehouseInput(w *models.Warehouse, in WarehouseInput) error {
	if in.Code != nil {
		w.Code = trimmed(in.Code)
	}
	if in.Name != nil {
		w.Name = trimmed(in.Name)
	}
	if in.Address != nil {
		w.Address = trimmed(in.Address)
	}
	if in.ContactPerson != nil {
		w.ContactPerson = trimmed(in.ContactPerson)
	}
	if in.Capacity != nil {
		if *in.Capacity < 0 {
			return apperr.Validation("warehouse", "capacity must not be negative")
		}
		w.Capacity = in.Capacity
	}
	if in.Notes != nil {
		w.Notes = *in.Notes
	}

	if w.Code == "" || w.Name == "" {
		return apperr.Validation("warehouse", "code and name are required")
	}
	if tooLong(w.Code, 50) || tooLong(w.Name, 100) || tooLong(w.Address, 255) || tooLong(w.ContactPerson, 100) {
		return apperr.Validation("warehouse", "field too long")
	}
	return nil
}

func checkWarehouseCode(tx *gorm.DB, op, code string, selfID uint) error {
	var n int64
	if err := tx.Model(&models.Warehouse{}).Where("code = ? AND id <> ?", code, selfID).Count(&n).Error; err != nil {
		return apperr.Storage(op, err)
	}
	if n > 0 {
		return duplicate(op, "code", code, nil)
	}
	return nil
}

func (c *Catalog) CreateWarehouse(ctx context.Context, actor authz.Actor, in WarehouseInput) (*models.Warehouse, error) {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return nil, err
	}

	var w models.Warehouse
	if err := applyWarehouseInput(&w, in); err != nil {
		return nil, err
	}

	err := c.store.WithinTx(ctx, "create warehouse", func(tx *gorm.DB) error {
		w.ID = 0
		if err := checkWarehouseCode(tx, "create warehouse", w.Code, 0); err != nil {
			return err
		}
		if err := tx.Create(&w).Error; err != nil {
			return duplicate("create warehouse", "code", w.Code, err)
		}
		_, err := audit.WriteLog(tx, audit.LogOptions{
			Actor:             actor,
			EntityType:        "warehouse",
			EntityID:          w.ID,
			Action:            models.AuditActionCreate,
			SourceWarehouseID: uintPtr(w.ID),
			Description:       fmt.Sprintf("Created warehouse: %s", w.Code),
			After:             w,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Catalog) UpdateWarehouse(ctx context.Context, actor authz.Actor, id uint, in WarehouseInput) (*models.Warehouse, error) {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return nil, err
	}

	var updated models.Warehouse
	err := c.store.WithinTx(ctx, "update warehouse", func(tx *gorm.DB) error {
		w, err := findWarehouse(tx, "update warehouse", id)
		if err != nil {
			return err
		}
		before := *w
		if err := applyWarehouseInput(w, in); err != nil {
			return err
		}
		if w.Code != before.Code {
			if err := checkWarehouseCode(tx, "update warehouse", w.Code, id); err != nil {
				return err
			}
		}
		if err := tx.Save(w).Error; err != nil {
			return duplicate("update warehouse", "code", w.Code, err)
		}
		updated = *w

		_, err = audit.WriteLog(tx, audit.LogOptions{
			Actor:             actor,
			EntityType:        "warehouse",
			EntityID:          id,
			Action:            models.AuditActionUpdate,
			SourceWarehouseID: uintPtr(id),
			Description:       fmt.Sprintf("Updated warehouse: %s", w.Code),
			Before:            before,
			After:             updated,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// cascadeSnapshot is the before state of a delete that takes stock entries
// with it.
type cascadeSnapshot struct {
	Entity any                 `json:"entity"`
	Stock  []models.StockLevel `json:"stock"`
	Forced bool                `json:"forced"`
}

// CascadePolicy decides whether the owner of entries may be deleted.
// Entries holding stock block the delete unless force is set.
func CascadePolicy(op string, entries []models.StockEntry, force bool, fields apperr.Fields) error {
	var stocked, total int64
	for _, e := range entries {
		if e.Quantity > 0 {
			stocked++
			total += e.Quantity
		}
	}
	if stocked == 0 || force {
		return nil
	}
	if fields == nil {
		fields = apperr.Fields{}
	}
	fields["stocked_entries"] = stocked
	fields["total_quantity"] = total
	return apperr.New(apperr.ErrStockNotEmpty, op, "stock must be empty or the delete forced", fields)
}

func stockLevels(entries []models.StockEntry) []models.StockLevel {
	levels := make([]models.StockLevel, 0, len(entries))
	for _, e := range entries {
		levels = append(levels, models.StockLevel{WarehouseID: e.WarehouseID, ItemID: e.ItemID, Quantity: e.Quantity})
	}
	return levels
}

func hasStock(entries []models.StockEntry) bool {
	for _, e := range entries {
		if e.Quantity > 0 {
			return true
		}
	}
	return false
}

func (c *Catalog) DeleteWarehouse(ctx context.Context, actor authz.Actor, id uint, force bool) error {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return err
	}

	return c.store.WithinTx(ctx, "delete warehouse", func(tx *gorm.DB) error {
		w, err := findWarehouse(forUpdate(tx), "delete warehouse", id)
		if err != nil {
			return err
		}

		var entries []models.StockEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("warehouse_id = ?", id).
			Order("item_id ASC").
			Find(&entries).Error; err != nil {
			return apperr.Storage("delete warehouse", err)
		}
		if err := CascadePolicy("delete warehouse", entries, force, apperr.Fields{"warehouse_id": id}); err != nil {
			return err
		}

		if err := tx.Where("warehouse_id = ?", id).Delete(&models.StockEntry{}).Error; err != nil {
			return apperr.Storage("delete warehouse", err)
		}
		if err := tx.Delete(&models.Warehouse{}, id).Error; err != nil {
			return apperr.Storage("delete warehouse", err)
		}

		forced := force && hasStock(entries)
		desc := fmt.Sprintf("Deleted warehouse: %s", w.Code)
		if forced {
			desc += " (forced, stock removed)"
		}
		_, err = audit.WriteLog(tx, audit.LogOptions{
			Actor:             actor,
			EntityType:        "warehouse",
			EntityID:          id,
			Action:            models.AuditActionDelete,
			SourceWarehouseID: uintPtr(id),
			Description:       desc,
			Before:            cascadeSnapshot{Entity: w, Stock: stockLevels(entries), Forced: forced},
		})
		return err
	})
}

// ---------------------------------------------
// ITEMS
// ---------------------------------------------

func (c *Catalog) ListItems(ctx context.Context, f ItemFilter) ([]models.Item, error) {
	dbq := c.store.DB().WithContext(ctx).Model(&models.Item{})
	if f.Search != "" {
		term := likeTerm(f.Search)
		dbq = dbq.Where("(LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR LOWER(description) LIKE ?)", term, term, term)
	}
	if f.BatchNumber != "" {
		dbq = dbq.Where("batch_number = ?", f.BatchNumber)
	}

	items := make([]models.Item, 0)
	if err := dbq.Order("name ASC, id ASC").Find(&items).Error; err != nil {
		return nil, apperr.Storage("list items", err)
	}
	return items, nil
}

func (c *Catalog) GetItem(ctx context.Context, id uint) (*models.Item, error) {
	return requireItem(c.store.DB().WithContext(ctx), "get item", id)
}

func applyItemInput(item *models.Item, in ItemInput) error {
	if in.SKU != nil {
		item.SKU = trimmed(in.SKU)
	}
	if in.Name != nil {
		item.Name = trimmed(in.Name)
	}
	if in.Description != nil {
		item.Description = *in.Description
	}
	if in.Unit != nil {
		item.Unit = trimmed(in.Unit)
	}
	if item.Unit == "" {
		item.Unit = "units"
	}
	if in.BatchNumber != nil {
		item.BatchNumber = trimmed(in.BatchNumber)
	}
	if in.ExpiryDate != nil {
		if raw := trimmed(in.ExpiryDate); raw == "" {
			item.ExpiryDate = nil
		} else {
			d, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return apperr.Validation("item", "expiry_date must be formatted as YYYY-MM-DD")
			}
			item.ExpiryDate = &d
		}
	}
	if in.LowStockThreshold != nil {
		if *in.LowStockThreshold < 0 {
			return apperr.Validation("item", "low_stock_threshold must not be negative")
		}
		item.LowStockThreshold = in.LowStockThreshold
	}

	if item.SKU == "" || item.Name == "" {
		return apperr.Validation("item", "sku and name are required")
	}
	if tooLong(item.SKU, 50) || tooLong(item.Name, 100) || tooLong(item.Unit, 20) || tooLong(item.BatchNumber, 50) {
		return apperr.Validation("item", "field too long")
	}
	return nil
}

func createItem(tx *gorm.DB, actor authz.Actor, in ItemInput) (*models.Item, error) {
	var item models.Item
	if err := applyItemInput(&item, in); err != nil {
		return nil, err
	}

	var n int64
	if err := tx.Model(&models.Item{}).Where("sku = ?", item.SKU).Count(&n).Error; err != nil {
		return nil, apperr.Storage("create item", err)
	}
	if n > 0 {
		return nil, duplicate("create item", "sku", item.SKU, nil)
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, duplicate("create item", "sku", item.SKU, err)
	}

	_, err := audit.WriteLog(tx, audit.LogOptions{
		Actor:       actor,
		EntityType:  "item",
		EntityID:    item.ID,
		Action:      models.AuditActionCreate,
		ItemID:      uintPtr(item.ID),
		Description: fmt.Sprintf("Created item: %s", item.SKU),
		After:       item,
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Catalog) CreateItem(ctx context.Context, actor authz.Actor, in ItemInput) (*models.Item, error) {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return nil, err
	}

	var created *models.Item
	err := c.store.WithinTx(ctx, "create item", func(tx *gorm.DB) error {
		item, err := createItem(tx, actor, in)
		created = item
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Catalog) UpdateItem(ctx context.Context, actor authz.Actor, id uint, in ItemInput) (*models.Item, error) {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return nil, err
	}
	if in.SKU != nil {
		return nil, apperr.Validation("update item", "sku cannot be changed")
	}

	var updated models.Item
	err := c.store.WithinTx(ctx, "update item", func(tx *gorm.DB) error {
		item, err := requireItem(tx, "update item", id)
		if err != nil {
			return err
		}
		before := *item
		if err := applyItemInput(item, in); err != nil {
			return err
		}
		if err := tx.Save(item).Error; err != nil {
			return apperr.Storage("update item", err)
		}
		updated = *item

		_, err = audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "item",
			EntityID:    id,
			Action:      models.AuditActionUpdate,
			ItemID:      uintPtr(id),
			Description: fmt.Sprintf("Updated item: %s", item.SKU),
			Before:      before,
			After:       updated,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Catalog) DeleteItem(ctx context.Context, actor authz.Actor, id uint, force bool) error {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return err
	}

	return c.store.WithinTx(ctx, "delete item", func(tx *gorm.DB) error {
		item, err := requireItem(forUpdate(tx), "delete item", id)
		if err != nil {
			return err
		}

		var entries []models.StockEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("item_id = ?", id).
			Order("warehouse_id ASC").
			Find(&entries).Error; err != nil {
			return apperr.Storage("delete item", err)
		}
		if err := CascadePolicy("delete item", entries, force, apperr.Fields{"item_id": id}); err != nil {
			return err
		}

		if err := tx.Where("item_id = ?", id).Delete(&models.StockEntry{}).Error; err != nil {
			return apperr.Storage("delete item", err)
		}
		if err := tx.Delete(&models.Item{}, id).Error; err != nil {
			return apperr.Storage("delete item", err)
		}

		forced := force && hasStock(entries)
		desc := fmt.Sprintf("Deleted item: %s", item.SKU)
		if forced {
			desc += " (forced, stock removed)"
		}
		_, err = audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  "item",
			EntityID:    id,
			Action:      models.AuditActionDelete,
			ItemID:      uintPtr(id),
			Description: desc,
			Before:      cascadeSnapshot{Entity: item, Stock: stockLevels(entries), Forced: forced},
		})
		return err
	})
}

// ---------------------------------------------
// STOCK LINES
// ---------------------------------------------

// ReceiveInput books stock into a warehouse, either for an existing item or
// for a new item created in the same transaction.
type ReceiveInput struct {
	ItemID   uint       `json:"item_id"`
	Item     *ItemInput `json:"item"`
	Quantity int64      `json:"quantity"`
}

func (c *Catalog) ReceiveStock(ctx context.Context, actor authz.Actor, warehouseID uint, in ReceiveInput) (*StockLine, error) {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return nil, err
	}
	if in.Quantity < 0 {
		return nil, apperr.New(apperr.ErrInvalidQuantity, "receive stock", "quantity must not be negative", apperr.Fields{
			"quantity": in.Quantity,
		})
	}
	if in.ItemID == 0 && in.Item == nil {
		return nil, apperr.Validation("receive stock", "item_id or item is required")
	}

	var itemID uint
	err := c.store.WithinTx(ctx, "receive stock", func(tx *gorm.DB) error {
		if err := requireWarehouse(tx, "receive stock", warehouseID); err != nil {
			return err
		}

		var item *models.Item
		var err error
		if in.ItemID != 0 {
			item, err = requireItem(tx, "receive stock", in.ItemID)
		} else {
			item, err = createItem(tx, actor, *in.Item)
		}
		if err != nil {
			return err
		}
		itemID = item.ID
		return c.receive(ctx, tx, actor, warehouseID, item, in.Quantity)
	})
	if err != nil {
		return nil, err
	}
	return c.store.GetStockLine(ctx, warehouseID, itemID)
}

// receive books quantity units of item into warehouseID on tx and writes the
// "add" audit record.
func (c *Catalog) receive(ctx context.Context, tx *gorm.DB, actor authz.Actor, warehouseID uint, item *models.Item, quantity int64) error {
	if _, err := lockOwners(tx, "receive stock", item.ID, warehouseID); err != nil {
		return err
	}
	before, err := lockEntries(tx, item.ID, warehouseID)
	if err != nil {
		return apperr.Storage("receive stock", err)
	}

	// A zero receipt still registers the item in the warehouse.
	if quantity == 0 {
		entry := models.StockEntry{WarehouseID: warehouseID, ItemID: item.ID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
			return apperr.Storage("receive stock", err)
		}
	}
	after, err := c.store.AdjustStock(ctx, tx, warehouseID, item.ID, quantity)
	if err != nil {
		return err
	}

	_, err = audit.WriteLog(tx, audit.LogOptions{
		Actor:             actor,
		EntityType:        "stock_entry",
		EntityID:          item.ID,
		Action:            models.AuditActionAdd,
		ItemID:            uintPtr(item.ID),
		SourceWarehouseID: uintPtr(warehouseID),
		Quantity:          &quantity,
		Description:       fmt.Sprintf("Received %d %s of %s", quantity, item.Unit, item.SKU),
		Before:            []models.StockLevel{{WarehouseID: warehouseID, ItemID: item.ID, Quantity: before[warehouseID]}},
		After:             []models.StockLevel{{WarehouseID: warehouseID, ItemID: item.ID, Quantity: after}},
	})
	return err
}

// SetStock overwrites the counted quantity of an existing stock line.
func (c *Catalog) SetStock(ctx context.Context, actor authz.Actor, warehouseID, itemID uint, quantity int64) (*StockLine, error) {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, apperr.New(apperr.ErrInvalidQuantity, "set stock", "quantity must not be negative", apperr.Fields{
			"quantity": quantity,
		})
	}

	err := c.store.WithinTx(ctx, "set stock", func(tx *gorm.DB) error {
		var entries []models.StockEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("warehouse_id = ? AND item_id = ?", warehouseID, itemID).
			Limit(1).
			Find(&entries).Error; err != nil {
			return apperr.Storage("set stock", err)
		}
		if len(entries) == 0 {
			return apperr.New(apperr.ErrNotFound, "set stock", "item not stocked in warehouse", apperr.Fields{
				"warehouse_id": warehouseID,
				"item_id":      itemID,
			})
		}
		current := entries[0].Quantity
		if current == quantity {
			return nil
		}

		after, err := c.store.AdjustStock(ctx, tx, warehouseID, itemID, quantity-current)
		if err != nil {
			return err
		}

		delta := after - current
		_, err = audit.WriteLog(tx, audit.LogOptions{
			Actor:             actor,
			EntityType:        "stock_entry",
			EntityID:          itemID,
			Action:            models.AuditActionAdjust,
			ItemID:            uintPtr(itemID),
			SourceWarehouseID: uintPtr(warehouseID),
			Quantity:          &delta,
			Description:       fmt.Sprintf("Adjusted quantity from %d to %d", current, after),
			Before:            []models.StockLevel{{WarehouseID: warehouseID, ItemID: itemID, Quantity: current}},
			After:             []models.StockLevel{{WarehouseID: warehouseID, ItemID: itemID, Quantity: after}},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.store.GetStockLine(ctx, warehouseID, itemID)
}

// RemoveStock deletes a stock line. A line that still holds stock is only
// removed when force is set.
func (c *Catalog) RemoveStock(ctx context.Context, actor authz.Actor, warehouseID, itemID uint, force bool) error {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return err
	}

	return c.store.WithinTx(ctx, "remove stock", func(tx *gorm.DB) error {
		var entries []models.StockEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("warehouse_id = ? AND item_id = ?", warehouseID, itemID).
			Limit(1).
			Find(&entries).Error; err != nil {
			return apperr.Storage("remove stock", err)
		}
		fields := apperr.Fields{"warehouse_id": warehouseID, "item_id": itemID}
		if len(entries) == 0 {
			return apperr.New(apperr.ErrNotFound, "remove stock", "item not stocked in warehouse", fields)
		}
		if err := CascadePolicy("remove stock", entries, force, fields); err != nil {
			return err
		}

		if err := tx.Where("warehouse_id = ? AND item_id = ?", warehouseID, itemID).Delete(&models.StockEntry{}).Error; err != nil {
			return apperr.Storage("remove stock", err)
		}

		removed := entries[0].Quantity
		_, err := audit.WriteLog(tx, audit.LogOptions{
			Actor:             actor,
			EntityType:        "stock_entry",
			EntityID:          itemID,
			Action:            models.AuditActionRemove,
			ItemID:            uintPtr(itemID),
			SourceWarehouseID: uintPtr(warehouseID),
			Quantity:          &removed,
			Description:       fmt.Sprintf("Removed item %d from warehouse %d", itemID, warehouseID),
			Before:            stockLevels(entries),
		})
		return err
	})
}
