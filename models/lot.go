package models

import (
	"time"

	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LotNumberPrefix starts every lot number issued by the service.
const LotNumberPrefix = "01"

// Lot is a received quantity of one product, identified by its lot number.
// Table: lots
// LotNumber is "01" followed by the zero padded lot sequence and never changes.
// PackDate and ExpiryDate are calendar dates stored as DATE.
type Lot struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_lots_uuid" json:"uuid"`

	LotNumber string `gorm:"size:20;not null;uniqueIndex:uk_lots_lot_number" json:"lot_number"`
	ProductID uint   `gorm:"not null;index:idx_lots_product_id" json:"product_id"`
	ReceiptID *uint  `gorm:"index:idx_lots_receipt_id" json:"receipt_id,omitempty"`

	Quantity      decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"quantity"`
	UnitOfMeasure string          `gorm:"size:16;not null;default:'EA'" json:"unit_of_measure"`
	PackDate      time.Time       `gorm:"type:date;not null;index:idx_lots_pack_date" json:"pack_date"`
	ExpiryDate    *time.Time      `gorm:"type:date" json:"expiry_date,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_lots_created_at" json:"created_at"`

	// Relations
	Product *Product `gorm:"foreignKey:ProductID;references:ID;constraint:OnDelete:RESTRICT" json:"product,omitempty"`
	Receipt *Receipt `gorm:"foreignKey:ReceiptID;references:ID;constraint:OnDelete:SET NULL" json:"receipt,omitempty"`
}

func (Lot) TableName() string {
	return "lots"
}

// BeforeCreate ensures UUID and creation time are set.
func (l *Lot) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == uuid.Nil {
		l.UUID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.UTCNow()
	}
	return nil
}

// LotFilter represents filter criteria for lot queries
type LotFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	LotNumber     *string
	ProductID     *uint
	ReceiptID     *uint
	PackedAfter   *time.Time
	PackedBefore  *time.Time
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
