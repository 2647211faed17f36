package repository

import (
	"context"
	"fmt"

	"github.com/covxx/pelattahub-sub002/models"
	"gorm.io/gorm"
)

// LotRepositoryImpl implements LotRepository interface
type LotRepositoryImpl struct {
	*BaseRepository[models.Lot, models.LotFilter]
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *gorm.DB) LotRepository {
	return &LotRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Lot, models.LotFilter](db),
	}
}

// ByLotNumber retrieves a lot with its product
func (r *LotRepositoryImpl) ByLotNumber(ctx context.Context, lotNumber string) (*models.Lot, error) {
	items, err := r.ByFilter(ctx, models.LotFilter{LotNumber: &lotNumber}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// MaxLotSequence returns the highest sequence embedded in an issued lot number, or 0.
// Only numbers of the form 01 followed by digits are considered.
func (r *LotRepositoryImpl) MaxLotSequence(ctx context.Context) (int64, error) {
	db := r.getDB(ctx)

	var max int64
	err := db.Model(&models.Lot{}).
		Select("COALESCE(MAX(CAST(SUBSTRING(lot_number FROM 3) AS BIGINT)), 0)").
		Where("lot_number ~ ?", "^"+models.LotNumberPrefix+"[0-9]{6,18}$").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read max lot sequence: %w", err)
	}
	return max, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *LotRepositoryImpl) applyFilter(query *gorm.DB, filter models.LotFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.LotNumber != nil {
		query = query.Where("lot_number = ?", *filter.LotNumber)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.ReceiptID != nil {
		query = query.Where("receipt_id = ?", *filter.ReceiptID)
	}
	if filter.PackedAfter != nil {
		query = query.Where("pack_date >= ?", *filter.PackedAfter)
	}
	if filter.PackedBefore != nil {
		query = query.Where("pack_date <= ?", *filter.PackedBefore)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves lots with their products based on filter criteria
func (r *LotRepositoryImpl) ByFilter(ctx context.Context, filter models.LotFilter, orderBy string, limit, offset int) ([]*models.Lot, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Lot{}), filter).Preload("Product")

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var lots []*models.Lot
	if err := query.Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("failed to find lots: %w", err)
	}
	return lots, nil
}

// Count returns the number of lots matching the filter
func (r *LotRepositoryImpl) Count(ctx context.Context, filter models.LotFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Lot{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count lots: %w", err)
	}
	return count, nil
}

// Exists checks if any lot matching the filter exists
func (r *LotRepositoryImpl) Exists(ctx context.Context, filter models.LotFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
