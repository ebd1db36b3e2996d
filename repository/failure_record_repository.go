package repository

import (
	"context"

	"github.com/amirphl/esim-fulfillment/models"
	"gorm.io/gorm"
)

// FailureRecordRepositoryImpl implements FailureRecordRepository
type FailureRecordRepositoryImpl struct {
	*BaseRepository[models.FailureRecord, models.FailureRecordFilter]
}

func NewFailureRecordRepository(db *gorm.DB) FailureRecordRepository {
	return &FailureRecordRepositoryImpl{BaseRepository: NewBaseRepository[models.FailureRecord, models.FailureRecordFilter](db)}
}

func (r *FailureRecordRepositoryImpl) applyFilter(db *gorm.DB, f models.FailureRecordFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.Source != nil {
		db = db.Where("source = ?", *f.Source)
	}
	if f.LocalOrderID != nil {
		db = db.Where("local_order_id = ?", *f.LocalOrderID)
	}
	if f.After != nil {
		db = db.Where("timestamp >= ?", *f.After)
	}
	if f.Before != nil {
		db = db.Where("timestamp < ?", *f.Before)
	}
	return db
}

func (r *FailureRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.FailureRecordFilter, orderBy string, limit, offset int) ([]*models.FailureRecord, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.FailureRecord{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.FailureRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FailureRecordRepositoryImpl) Count(ctx context.Context, filter models.FailureRecordFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.FailureRecord{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *FailureRecordRepositoryImpl) Exists(ctx context.Context, filter models.FailureRecordFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
