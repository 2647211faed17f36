package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SystemSettingRepositoryImpl implements SystemSettingRepository interface
type SystemSettingRepositoryImpl struct {
	*BaseRepository[models.SystemSetting, models.SystemSettingFilter]
}

// NewSystemSettingRepository creates a new system setting repository
func NewSystemSettingRepository(db *gorm.DB) SystemSettingRepository {
	return &SystemSettingRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SystemSetting, models.SystemSettingFilter](db),
	}
}

// ByKey retrieves a setting, returning nil when it has never been set
func (r *SystemSettingRepositoryImpl) ByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	db := r.getDB(ctx)

	var setting models.SystemSetting
	err := db.Where(`"key" = ?`, key).Take(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find setting %s: %w", key, err)
	}
	return &setting, nil
}

// Upsert creates or replaces a setting value
func (r *SystemSettingRepositoryImpl) Upsert(ctx context.Context, key, value string) error {
	db := r.getDB(ctx)

	setting := models.SystemSetting{Key: key, Value: value, UpdatedAt: utils.UTCNow()}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      clause.Expr{SQL: "EXCLUDED.value"},
			"updated_at": clause.Expr{SQL: "EXCLUDED.updated_at"},
		}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}
