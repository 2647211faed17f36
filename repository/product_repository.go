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

// ProductRepositoryImpl implements ProductRepository interface
type ProductRepositoryImpl struct {
	*BaseRepository[models.Product, models.ProductFilter]
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &ProductRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Product, models.ProductFilter](db),
	}
}

// BySKU retrieves a product by its SKU
func (r *ProductRepositoryImpl) BySKU(ctx context.Context, sku string) (*models.Product, error) {
	items, err := r.ByFilter(ctx, models.ProductFilter{SKU: &sku}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// ByIDForUpdate retrieves a product and locks its row for the rest of the transaction
func (r *ProductRepositoryImpl) ByIDForUpdate(ctx context.Context, id uint) (*models.Product, error) {
	if !InTransaction(ctx) {
		return nil, ErrTransactionRequired
	}
	db := r.getDB(ctx)

	var product models.Product
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock product %d: %w", id, err)
	}
	return &product, nil
}

// ExistsByGTIN reports whether any product already carries gtin
func (r *ProductRepositoryImpl) ExistsByGTIN(ctx context.Context, gtin string) (bool, error) {
	return r.Exists(ctx, models.ProductFilter{GTIN: &gtin})
}

// UpdateGTIN stores a GTIN on a product. A unique violation means another product won the value.
func (r *ProductRepositoryImpl) UpdateGTIN(ctx context.Context, id uint, gtin string) error {
	db := r.getDB(ctx)

	result := db.Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"gtin":       gtin,
			"updated_at": utils.UTCNow(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update gtin of product %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("product %d not found", id)
	}
	return nil
}

// ListNeedingGTIN pages through active products by id and keeps those without a valid GTIN
func (r *ProductRepositoryImpl) ListNeedingGTIN(ctx context.Context, afterID uint, limit int) ([]*models.Product, uint, error) {
	db := r.getDB(ctx)

	var batch []*models.Product
	err := db.Where("id > ? AND is_active IS NOT FALSE", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&batch).Error
	if err != nil {
		return nil, afterID, fmt.Errorf("failed to scan products for gtin repair: %w", err)
	}
	if len(batch) == 0 {
		return nil, afterID, nil
	}

	needing := make([]*models.Product, 0, len(batch))
	for _, p := range batch {
		if p.NeedsGTIN() {
			needing = append(needing, p)
		}
	}
	return needing, batch[len(batch)-1].ID, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *ProductRepositoryImpl) applyFilter(query *gorm.DB, filter models.ProductFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.SKU != nil {
		query = query.Where("sku = ?", *filter.SKU)
	}
	if filter.GTIN != nil {
		query = query.Where("gtin = ?", *filter.GTIN)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves products based on filter criteria
func (r *ProductRepositoryImpl) ByFilter(ctx context.Context, filter models.ProductFilter, orderBy string, limit, offset int) ([]*models.Product, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Product{}), filter)

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

	var products []*models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	return products, nil
}

// Count returns the number of products matching the filter
func (r *ProductRepositoryImpl) Count(ctx context.Context, filter models.ProductFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Product{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// Exists checks if any product matching the filter exists
func (r *ProductRepositoryImpl) Exists(ctx context.Context, filter models.ProductFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
