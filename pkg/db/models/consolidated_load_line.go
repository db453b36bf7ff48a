package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsolidatedLoadLine lives in the replica database: one row per distinct
// product across all claimed orders in a load, with the summed quantity.
// Derived data, regenerated per load, never updated after insert.
type ConsolidatedLoadLine struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	LoadID      string          `gorm:"column:load_id;not null;uniqueIndex:idx_consolidated_load_product"`
	ProductCode string          `gorm:"column:product_code;not null;uniqueIndex:idx_consolidated_load_product"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:numeric(12,3);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (ConsolidatedLoadLine) TableName() string { return "consolidated_load_lines" }
