package models

import "time"

// StockEntry: quantity of one item held in one warehouse. The foreign keys
// refuse to drop a warehouse or item while entries still point at it.
type StockEntry struct {
	WarehouseID uint      `gorm:"primaryKey;autoIncrement:false"`
	Warehouse   Warehouse `gorm:"constraint:OnDelete:RESTRICT"`
	ItemID      uint      `gorm:"primaryKey;autoIncrement:false;index"`
	Item        Item      `gorm:"constraint:OnDelete:RESTRICT"`
	Quantity    int64     `gorm:"not null;default:0;check:quantity >= 0"`
	UpdatedAt   time.Time
}

// StockLevel is the snapshot of a StockEntry stored in audit records.
type StockLevel struct {
	WarehouseID uint  `json:"warehouse_id"`
	ItemID      uint  `json:"item_id"`
	Quantity    int64 `json:"quantity"`
}
