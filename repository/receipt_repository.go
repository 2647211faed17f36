package repository

import (
	"context"
	"fmt"

	"github.com/covxx/pelattahub-sub002/models"
	"gorm.io/gorm"
)

// ReceiptRepositoryImpl implements ReceiptRepository interface
type ReceiptRepositoryImpl struct {
	*BaseRepository[models.Receipt, models.ReceiptFilter]
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &ReceiptRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Receipt, models.ReceiptFilter](db),
	}
}

// ByNumber retrieves a receipt with its lots
func (r *ReceiptRepositoryImpl) ByNumber(ctx context.Context, receiptNumber int64) (*models.Receipt, error) {
	db := r.getDB(ctx)

	var receipts []*models.Receipt
	err := r.applyFilter(db.Model(&models.Receipt{}), models.ReceiptFilter{ReceiptNumber: &receiptNumber}).
		Preload("Lots", func(tx *gorm.DB) *gorm.DB { return tx.Order("lot_number ASC") }).
		Limit(1).
		Find(&receipts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find receipt %d: %w", receiptNumber, err)
	}
	if len(receipts) == 0 {
		return nil, nil
	}
	return receipts[0], nil
}

// MaxReceiptNumber returns the highest receipt number issued so far, or 0
func (r *ReceiptRepositoryImpl) MaxReceiptNumber(ctx context.Context) (int64, error) {
	db := r.getDB(ctx)

	var max int64
	err := db.Model(&models.Receipt{}).
		Select("COALESCE(MAX(receipt_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read max receipt number: %w", err)
	}
	return max, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *ReceiptRepositoryImpl) applyFilter(query *gorm.DB, filter models.ReceiptFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.ReceiptNumber != nil {
		query = query.Where("receipt_number = ?", *filter.ReceiptNumber)
	}
	if filter.VendorName != nil {
		query = query.Where("vendor_name = ?", *filter.VendorName)
	}
	if filter.ReceivedAfter != nil {
		query = query.Where("received_at > ?", *filter.ReceivedAfter)
	}
	if filter.ReceivedBefore != nil {
		query = query.Where("received_at < ?", *filter.ReceivedBefore)
	}
	return query
}

// ByFilter retrieves receipts based on filter criteria
func (r *ReceiptRepositoryImpl) ByFilter(ctx context.Context, filter models.ReceiptFilter, orderBy string, limit, offset int) ([]*models.Receipt, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Receipt{}), filter)

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

	var receipts []*models.Receipt
	if err := query.Find(&receipts).Error; err != nil {
		return nil, fmt.Errorf("failed to find receipts: %w", err)
	}
	return receipts, nil
}

// Count returns the number of receipts matching the filter
func (r *ReceiptRepositoryImpl) Count(ctx context.Context, filter models.ReceiptFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Receipt{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count receipts: %w", err)
	}
	return count, nil
}

// Exists checks if any receipt matching the filter exists
func (r *ReceiptRepositoryImpl) Exists(ctx context.Context, filter models.ReceiptFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
