package models

import (
	"github.com/shopspring/decimal"
)

// OrderLine belongs to exactly one Order. The dispatch core only ever reads
// these rows; they are never mutated here.
type OrderLine struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID       int64           `gorm:"column:order_id;not null;index"`
	ProductCode   string          `gorm:"column:product_code;not null"`
	Quantity      decimal.Decimal `gorm:"column:quantity;type:numeric(12,3);not null"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	WarehouseCode string          `gorm:"column:warehouse_code;not null"`
}

func (OrderLine) TableName() string { return "order_lines" }
