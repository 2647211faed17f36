package models

import (
	"time"

	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Receipt groups the lots received in one delivery under a sequential receipt number.
type Receipt struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_receipts_uuid" json:"uuid"`

	ReceiptNumber   int64   `gorm:"not null;uniqueIndex:uk_receipts_receipt_number" json:"receipt_number"`
	VendorName      string  `gorm:"size:255;not null" json:"vendor_name"`
	ReferenceNumber *string `gorm:"size:64" json:"reference_number,omitempty"`

	ReceivedAt time.Time `gorm:"not null;index:idx_receipts_received_at" json:"received_at"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	Lots []Lot `gorm:"foreignKey:ReceiptID" json:"lots,omitempty"`
}

func (Receipt) TableName() string {
	return "receipts"
}

// BeforeCreate ensures UUID and timestamps are set.
func (r *Receipt) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = r.CreatedAt
	}
	return nil
}

// ReceiptFilter represents filter criteria for receipt queries
type ReceiptFilter struct {
	ID             *uint
	UUID           *uuid.UUID
	ReceiptNumber  *int64
	VendorName     *string
	ReceivedAfter  *time.Time
	ReceivedBefore *time.Time
}
