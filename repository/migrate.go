package repository

import (
	"fmt"

	"github.com/covxx/pelattahub-sub002/models"
	"gorm.io/gorm"
)

// Models lists every persisted entity in dependency order.
func Models() []any {
	return []any{
		&models.SequenceCounter{},
		&models.SystemSetting{},
		&models.Product{},
		&models.Receipt{},
		&models.Lot{},
		&models.AuditLog{},
	}
}

// AutoMigrate creates or updates the schema for all entities.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
