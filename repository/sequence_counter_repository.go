package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceCounterRepositoryImpl implements SequenceCounterRepository on a row per key.
type SequenceCounterRepositoryImpl struct {
	*BaseRepository[models.SequenceCounter, models.SequenceCounterFilter]
	lockTimeout time.Duration
}

// NewSequenceCounterRepository creates a counter repository. lockTimeout bounds the wait
// for a row lock held by another transaction; zero leaves the server default in place.
func NewSequenceCounterRepository(db *gorm.DB, lockTimeout time.Duration) SequenceCounterRepository {
	return &SequenceCounterRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SequenceCounter, models.SequenceCounterFilter](db),
		lockTimeout:    lockTimeout,
	}
}

// LockOrCreate inserts the counter row with value 1 if it is missing, then takes an
// exclusive row lock held until the surrounding transaction ends and returns the
// current value. The configured lock timeout applies to the counter lock only; the
// transaction's own lock_timeout is restored once the row is held.
func (r *SequenceCounterRepositoryImpl) LockOrCreate(ctx context.Context, key string) (int64, error) {
	if !InTransaction(ctx) {
		return 0, ErrTransactionRequired
	}
	db := r.getDB(ctx)

	var previousTimeout string
	if r.lockTimeout > 0 {
		if err := db.Raw("SELECT current_setting('lock_timeout')").Scan(&previousTimeout).Error; err != nil {
			return 0, fmt.Errorf("failed to read lock timeout: %w", err)
		}
		if err := setLocalLockTimeout(db, fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())); err != nil {
			return 0, err
		}
	}

	seed := models.SequenceCounter{Key: key, CurrentValue: 1}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return 0, fmt.Errorf("failed to ensure counter %s: %w", key, err)
	}

	var counter models.SequenceCounter
	err = db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(`"key" = ?`, key).
		Take(&counter).Error
	if err != nil {
		return 0, fmt.Errorf("failed to lock counter %s: %w", key, err)
	}

	if r.lockTimeout > 0 {
		if err := setLocalLockTimeout(db, previousTimeout); err != nil {
			return 0, err
		}
	}

	return counter.CurrentValue, nil
}

// setLocalLockTimeout is SET LOCAL lock_timeout with a bindable value
func setLocalLockTimeout(db *gorm.DB, value string) error {
	if err := db.Exec("SELECT set_config('lock_timeout', ?, true)", value).Error; err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}
	return nil
}

// SetValue overwrites the counter value. The row must be locked by the current transaction.
func (r *SequenceCounterRepositoryImpl) SetValue(ctx context.Context, key string, value int64) error {
	if !InTransaction(ctx) {
		return ErrTransactionRequired
	}
	db := r.getDB(ctx)

	result := db.Model(&models.SequenceCounter{}).
		Where(`"key" = ?`, key).
		Updates(map[string]any{
			"current_value": value,
			"updated_at":    utils.UTCNow(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update counter %s: %w", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("counter %s not found", key)
	}

	return nil
}

// ByKey retrieves a counter without locking it
func (r *SequenceCounterRepositoryImpl) ByKey(ctx context.Context, key string) (*models.SequenceCounter, error) {
	db := r.getDB(ctx)

	var counter models.SequenceCounter
	err := db.Where(`"key" = ?`, key).Take(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find counter %s: %w", key, err)
	}

	return &counter, nil
}
