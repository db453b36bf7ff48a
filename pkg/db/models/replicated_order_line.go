package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReplicatedOrderLine lives in the replica database: one row per surviving
// (order, line) pair in a load. Written once, never updated; its existence
// means replication succeeded for that line.
type ReplicatedOrderLine struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	LoadID         string          `gorm:"column:load_id;not null;index"`
	OrderID        int64           `gorm:"column:order_id;not null"`
	LineSeq        int             `gorm:"column:line_seq;not null"`
	ProductCode    string          `gorm:"column:product_code;not null"`
	Quantity       decimal.Decimal `gorm:"column:quantity;type:numeric(12,3);not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:numeric(14,2);not null"`
	TaxAmount      decimal.Decimal `gorm:"column:tax_amount;type:numeric(14,2);not null"`
	SellerCode     string          `gorm:"column:seller_code;not null"`
	WarehouseCode  string          `gorm:"column:warehouse_code;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (ReplicatedOrderLine) TableName() string { return "replicated_order_lines" }
