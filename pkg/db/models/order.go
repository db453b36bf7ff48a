package models

import (
	"time"

	"github.com/fleetops/dispatch-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Order is a pending sales order in the core database. LoadID is set only
// while the order is claimed by or completed within a load.
type Order struct {
	ID            int64              `gorm:"column:id;primaryKey"`
	ClientCode    string             `gorm:"column:client_code;not null"`
	SellerCode    string             `gorm:"column:seller_code;not null"`
	WarehouseCode string             `gorm:"column:warehouse_code;not null"`
	Subtotal      decimal.Decimal    `gorm:"column:subtotal;type:numeric(14,2);not null"`
	TaxTotal      decimal.Decimal    `gorm:"column:tax_total;type:numeric(14,2);not null"`
	Total         decimal.Decimal    `gorm:"column:total;type:numeric(14,2);not null"`
	DiscountPct   decimal.Decimal    `gorm:"column:discount_pct;type:numeric(5,2);not null;default:0"`
	TaxPct        decimal.Decimal    `gorm:"column:tax_pct;type:numeric(5,2);not null;default:0"`
	ProcessState  enums.ProcessState `gorm:"column:process_state;type:text;not null;default:'NEW'"`
	LoadID        *string            `gorm:"column:load_id"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`

	Lines []OrderLine `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }
