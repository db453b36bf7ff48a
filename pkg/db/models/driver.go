package models

import "time"

// Driver is a delivery person eligible to receive loads. A driver must be
// active and carry an assigned warehouse before a load can be built.
type Driver struct {
	Code          string    `gorm:"column:code;primaryKey"`
	Name          string    `gorm:"column:name;not null"`
	Active        bool      `gorm:"column:active;not null"`
	WarehouseCode string    `gorm:"column:warehouse_code"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Driver) TableName() string { return "drivers" }
