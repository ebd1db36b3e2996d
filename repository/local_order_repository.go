package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/utils"
	"gorm.io/gorm"
)

// LocalOrderRepositoryImpl implements LocalOrderRepository
type LocalOrderRepositoryImpl struct {
	*BaseRepository[models.LocalOrder, models.LocalOrderFilter]
}

func NewLocalOrderRepository(db *gorm.DB) LocalOrderRepository {
	return &LocalOrderRepositoryImpl{BaseRepository: NewBaseRepository[models.LocalOrder, models.LocalOrderFilter](db)}
}

func (r *LocalOrderRepositoryImpl) ByExternalOrderID(ctx context.Context, externalOrderID string) (*models.LocalOrder, error) {
	rows, err := r.ByFilter(ctx, models.LocalOrderFilter{ExternalOrderID: &externalOrderID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *LocalOrderRepositoryImpl) ByTransactionCode(ctx context.Context, code string) (*models.LocalOrder, error) {
	rows, err := r.ByFilter(ctx, models.LocalOrderFilter{TransactionCode: &code}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByIDWithDetails loads the order together with its provisioner order and units
func (r *LocalOrderRepositoryImpl) ByIDWithDetails(ctx context.Context, id uint) (*models.LocalOrder, error) {
	db := r.getDB(ctx)
	var row models.LocalOrder
	err := db.Preload("ProvisionerOrder").
		Preload("ProvisionerOrder.Units", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Last(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load local order %d: %w", id, err)
	}
	return &row, nil
}

func (r *LocalOrderRepositoryImpl) Update(ctx context.Context, order *models.LocalOrder) error {
	return r.update(ctx, order)
}

// ListStaleReceived returns orders that sat in received longer than expected
func (r *LocalOrderRepositoryImpl) ListStaleReceived(ctx context.Context, olderThan time.Time, limit int) ([]*models.LocalOrder, error) {
	status := models.LocalOrderStatusReceived
	return r.ByFilter(ctx, models.LocalOrderFilter{Status: &status, UpdatedBefore: &olderThan}, "id ASC", limit, 0)
}

// ListUnconfirmed returns completed orders whose delivery was never acknowledged by the storefront.
// Orders never attempted come first, then the ones attempted longest ago.
func (r *LocalOrderRepositoryImpl) ListUnconfirmed(ctx context.Context, olderThan time.Time, maxConfirmAttempts, limit int) ([]*models.LocalOrder, error) {
	status := models.LocalOrderStatusCompleted
	unconfirmed := true
	filter := models.LocalOrderFilter{Status: &status, Unconfirmed: &unconfirmed, UpdatedBefore: &olderThan}
	if maxConfirmAttempts > 0 {
		filter.MaxConfirmAttempts = &maxConfirmAttempts
	}
	return r.ByFilter(ctx, filter, "last_confirm_attempt_at ASC NULLS FIRST, id ASC", limit, 0)
}

// ClaimForProcessing moves a received or failed order to processing and counts the attempt.
// It reports false when another run already holds the order or it is no longer claimable.
func (r *LocalOrderRepositoryImpl) ClaimForProcessing(ctx context.Context, id uint) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.LocalOrder{}).
		Where("id = ? AND status IN ?", id, []models.LocalOrderStatus{models.LocalOrderStatusReceived, models.LocalOrderStatusFailed}).
		Updates(map[string]any{
			"status":       models.LocalOrderStatusProcessing,
			"attempts":     gorm.Expr("attempts + 1"),
			"error_detail": nil,
			"updated_at":   utils.UTCNow(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim local order %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RecordConfirmFailure counts a rejected or unreachable delivery confirmation
func (r *LocalOrderRepositoryImpl) RecordConfirmFailure(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	now := utils.UTCNow()
	err := db.Model(&models.LocalOrder{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"confirm_attempts":        gorm.Expr("confirm_attempts + 1"),
			"last_confirm_attempt_at": now,
			"updated_at":              now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record confirmation attempt of local order %d: %w", id, err)
	}
	return nil
}

func (r *LocalOrderRepositoryImpl) applyFilter(db *gorm.DB, f models.LocalOrderFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.ExternalOrderID != nil {
		db = db.Where("external_order_id = ?", *f.ExternalOrderID)
	}
	if f.TransactionCode != nil {
		db = db.Where("transaction_code = ?", *f.TransactionCode)
	}
	if f.ProductRef != nil {
		db = db.Where("product_ref = ?", *f.ProductRef)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.Unconfirmed != nil {
		if *f.Unconfirmed {
			db = db.Where("delivery_confirmed_at IS NULL")
		} else {
			db = db.Where("delivery_confirmed_at IS NOT NULL")
		}
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	if f.UpdatedBefore != nil {
		db = db.Where("updated_at < ?", *f.UpdatedBefore)
	}
	if f.MaxConfirmAttempts != nil {
		db = db.Where("confirm_attempts < ?", *f.MaxConfirmAttempts)
	}
	return db
}

func (r *LocalOrderRepositoryImpl) ByFilter(ctx context.Context, filter models.LocalOrderFilter, orderBy string, limit, offset int) ([]*models.LocalOrder, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.LocalOrder{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.LocalOrder
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list local orders: %w", err)
	}
	return rows, nil
}

func (r *LocalOrderRepositoryImpl) Count(ctx context.Context, filter models.LocalOrderFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.LocalOrder{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *LocalOrderRepositoryImpl) Exists(ctx context.Context, filter models.LocalOrderFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
