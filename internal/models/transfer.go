package models

import "time"

type TransferStatus string

const (
	TransferCommitted TransferStatus = "committed"
	TransferRejected  TransferStatus = "rejected"
)

// Transfer is written once, in the same transaction that moves the stock.
// Rejected transfers are reported to the caller but never stored.
type Transfer struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Reference         string         `gorm:"size:36;uniqueIndex;not null" json:"reference"`
	SourceWarehouseID uint           `gorm:"index;not null" json:"source_warehouse_id"`
	DestWarehouseID   uint           `gorm:"index;not null" json:"destination_warehouse_id"`
	ItemID            uint           `gorm:"index;not null" json:"item_id"`
	Quantity          int64          `gorm:"not null" json:"quantity"`
	UserID            uint           `gorm:"index;not null" json:"user_id"`
	Status            TransferStatus `gorm:"size:20;not null" json:"status"`
	Notes             string         `gorm:"size:255" json:"notes"`
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`
}
