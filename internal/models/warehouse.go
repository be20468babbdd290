package models

import "time"

type Warehouse struct {
	ID            uint     `gorm:"primaryKey"`
	Code          string   `gorm:"size:50;not null;uniqueIndex"`
	Name          string   `gorm:"size:100;not null"`
	Address       string   `gorm:"size:255"`
	ContactPerson string   `gorm:"size:100"`
	Capacity      *float64
	Notes         string   `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
