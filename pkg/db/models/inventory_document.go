package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryDocument is the header of a warehouse-to-warehouse transfer.
// Once inserted it is immutable; a document id is used at most once
// system-wide.
type InventoryDocument struct {
	DocumentID           string    `gorm:"column:document_id;primaryKey"`
	Reference            string    `gorm:"column:reference;not null"`
	SourceWarehouse      string    `gorm:"column:source_warehouse;not null"`
	DestinationWarehouse string    `gorm:"column:destination_warehouse;not null"`
	DocumentDate         time.Time `gorm:"column:document_date;not null"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`

	Lines []InventoryDocumentLine `gorm:"foreignKey:DocumentID;references:DocumentID"`
}

func (InventoryDocument) TableName() string { return "inventory_documents" }

// InventoryDocumentLine moves one product between the document's
// warehouses. Lines succeed or fail independently of their siblings.
type InventoryDocumentLine struct {
	ID                   int64           `gorm:"column:id;primaryKey;autoIncrement"`
	DocumentID           string          `gorm:"column:document_id;not null;index"`
	ProductCode          string          `gorm:"column:product_code;not null"`
	Quantity             decimal.Decimal `gorm:"column:quantity;type:numeric(12,3);not null"`
	SourceWarehouse      string          `gorm:"column:source_warehouse;not null"`
	DestinationWarehouse string          `gorm:"column:destination_warehouse;not null"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryDocumentLine) TableName() string { return "inventory_document_lines" }
