package models

import "time"

// Item is a catalog entry. Quantities live in StockEntry, one row per
// warehouse holding the item.
type Item struct {
	ID          uint   `gorm:"primaryKey"`
	SKU         string `gorm:"column:sku;size:50;not null;uniqueIndex"`
	Name        string `gorm:"size:100;not null"`
	Description string `gorm:"type:text"`
	Unit        string `gorm:"size:20;not null;default:units"`
	BatchNumber string `gorm:"size:50;index"`
	ExpiryDate  *time.Time
	// Overrides the global low-stock threshold for this item when set.
	LowStockThreshold *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
