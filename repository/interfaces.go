package repository

import (
	"context"

	"github.com/covxx/pelattahub-sub002/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// SequenceCounterRepository defines row level operations on named counters.
// LockOrCreate and SetValue must run inside a transaction carried by ctx.
type SequenceCounterRepository interface {
	LockOrCreate(ctx context.Context, key string) (int64, error)
	SetValue(ctx context.Context, key string, value int64) error
	ByKey(ctx context.Context, key string) (*models.SequenceCounter, error)
}

// ProductRepository defines operations for catalog products
type ProductRepository interface {
	Repository[models.Product, models.ProductFilter]
	BySKU(ctx context.Context, sku string) (*models.Product, error)
	ByIDForUpdate(ctx context.Context, id uint) (*models.Product, error)
	ExistsByGTIN(ctx context.Context, gtin string) (bool, error)
	UpdateGTIN(ctx context.Context, id uint, gtin string) error
	// ListNeedingGTIN scans products with id > afterID in id order and returns those
	// without a valid GTIN, plus the last id scanned so callers can page.
	ListNeedingGTIN(ctx context.Context, afterID uint, limit int) ([]*models.Product, uint, error)
}

// LotRepository defines operations for lots
type LotRepository interface {
	Repository[models.Lot, models.LotFilter]
	ByLotNumber(ctx context.Context, lotNumber string) (*models.Lot, error)
	MaxLotSequence(ctx context.Context) (int64, error)
}

// ReceiptRepository defines operations for receipts
type ReceiptRepository interface {
	Repository[models.Receipt, models.ReceiptFilter]
	ByNumber(ctx context.Context, receiptNumber int64) (*models.Receipt, error)
	MaxReceiptNumber(ctx context.Context) (int64, error)
}

// SystemSettingRepository defines operations for runtime settings
type SystemSettingRepository interface {
	ByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	Upsert(ctx context.Context, key, value string) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	Record(ctx context.Context, detail models.AuditDetail, actor, requestID *string) error
	ListBySubject(ctx context.Context, subject string, limit, offset int) ([]*models.AuditLog, error)
}
