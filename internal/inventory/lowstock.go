package inventory

import (
	"context"

	"warehouse-backend/internal/apperr"

	"gorm.io/gorm"
)

// LowStockEntry is one (warehouse, item) pair below its threshold.
type LowStockEntry struct {
	WarehouseID   uint   `json:"warehouse_id"`
	WarehouseCode string `json:"warehouse_code"`
	WarehouseName string `json:"warehouse_name"`
	ItemID        uint   `json:"item_id"`
	SKU           string `json:"sku"`
	ItemName      string `json:"item_name"`
	Unit          string `json:"unit"`
	Quantity      int64  `json:"quantity"`
	Threshold     int64  `json:"threshold"`
}

func (s *Store) lowStock(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("stock_entries AS s").
		Joins("JOIN items AS i ON i.id = s.item_id").
		Joins("JOIN warehouses AS w ON w.id = s.warehouse_id")
}

// ListLowStock returns every pair whose quantity is below threshold, ordered
// by quantity then warehouse and item.
func (s *Store) ListLowStock(ctx context.Context, threshold int64) ([]LowStockEntry, error) {
	out := make([]LowStockEntry, 0)
	err := s.lowStock(ctx).
		Select(`s.warehouse_id, w.code AS warehouse_code, w.name AS warehouse_name,
			s.item_id, i.sku, i.name AS item_name, i.unit, s.quantity`).
		Where("s.quantity < ?", threshold).
		Order("s.quantity ASC, s.warehouse_id ASC, s.item_id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, apperr.Storage("list low stock", err)
	}
	for i := range out {
		out[i].Threshold = threshold
	}
	return out, nil
}

// listLowStockPerItem uses each item's own threshold, falling back to
// fallback for items without one.
func (s *Store) listLowStockPerItem(ctx context.Context, fallback int64) ([]LowStockEntry, error) {
	out := make([]LowStockEntry, 0)
	err := s.lowStock(ctx).
		Select(`s.warehouse_id, w.code AS warehouse_code, w.name AS warehouse_name,
			s.item_id, i.sku, i.name AS item_name, i.unit, s.quantity,
			COALESCE(i.low_stock_threshold, ?) AS threshold`, fallback).
		Where("s.quantity < COALESCE(i.low_stock_threshold, ?)", fallback).
		Order("s.quantity ASC, s.warehouse_id ASC, s.item_id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, apperr.Storage("list low stock", err)
	}
	return out, nil
}

// LowStockNotifier is a pull-based read model: nothing is cached, every
// Check reads the current stock.
type LowStockNotifier struct {
	store            *Store
	defaultThreshold int64
}

func NewLowStockNotifier(store *Store, defaultThreshold int64) *LowStockNotifier {
	return &LowStockNotifier{store: store, defaultThreshold: defaultThreshold}
}

// Check lists low stock. An explicit threshold applies to every item;
// otherwise per-item thresholds apply, then the default.
func (n *LowStockNotifier) Check(ctx context.Context, threshold *int64) ([]LowStockEntry, error) {
	if threshold != nil {
		if *threshold < 0 {
			return nil, apperr.Validation("low stock", "threshold must not be negative")
		}
		return n.store.ListLowStock(ctx, *threshold)
	}
	return n.store.listLowStockPerItem(ctx, n.defaultThreshold)
}
