package models

import (
	"time"

	"github.com/covxx/pelattahub-sub002/gs1"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a catalog item. GTIN is assigned once and only rewritten by an explicit repair.
// Table: products
// Unique by SKU and by GTIN (NULLs allowed for products still waiting for one)
type Product struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_products_uuid" json:"uuid"`

	SKU         string  `gorm:"size:64;not null;uniqueIndex:uk_products_sku" json:"sku"`
	Name        string  `gorm:"size:255;not null" json:"name"`
	Description *string `gorm:"type:text" json:"description,omitempty"`
	GTIN        *string `gorm:"column:gtin;size:14;uniqueIndex:uk_products_gtin" json:"gtin,omitempty"`

	IsActive  *bool     `gorm:"default:true;index:idx_products_is_active" json:"is_active"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_products_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// BeforeCreate ensures UUID and timestamps are set.
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = utils.UTCNow()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	return nil
}

// NeedsGTIN reports whether the product has no GTIN or holds one with a bad check digit.
func (p *Product) NeedsGTIN() bool {
	return p.GTIN == nil || !gs1.HasValidCheckDigit(*p.GTIN)
}

// ProductFilter represents filter criteria for product queries
type ProductFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	SKU           *string
	GTIN          *string
	IsActive      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
