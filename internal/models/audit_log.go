package models

import "time"

type AuditAction string

const (
	AuditActionCreate     AuditAction = "create"
	AuditActionUpdate     AuditAction = "update"
	AuditActionDelete     AuditAction = "delete"
	AuditActionAdd        AuditAction = "add"
	AuditActionRemove     AuditAction = "remove"
	AuditActionAdjust     AuditAction = "adjust"
	AuditActionTransfer   AuditAction = "transfer"
	AuditActionRoleUpdate AuditAction = "role_update"
)

// AuditLog rows are append-only: nothing updates or deletes them.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	// Actor
	UserID   uint   `gorm:"index" json:"user_id"`
	UserName string `gorm:"size:80" json:"user_name"` // denormalized

	// Affected entity: warehouse, item, stock_entry, transfer or user.
	EntityType string      `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint        `gorm:"index" json:"entity_id"`
	Action     AuditAction `gorm:"size:20;index" json:"action"`

	// Stock references used by the warehouse/item filters.
	ItemID            *uint  `gorm:"index" json:"item_id"`
	SourceWarehouseID *uint  `gorm:"index" json:"source_warehouse_id"`
	DestWarehouseID   *uint  `gorm:"index" json:"destination_warehouse_id"`
	Quantity          *int64 `json:"quantity"`

	Description string `gorm:"size:255" json:"description"`

	// JSON snapshots of the state before and after the operation.
	BeforeData string `gorm:"type:jsonb" json:"before_data"`
	AfterData  string `gorm:"type:jsonb" json:"after_data"`
}
