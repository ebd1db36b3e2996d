package repository

import (
	"context"

	"github.com/amirphl/esim-fulfillment/models"
	"gorm.io/gorm"
)

// ProvisionedUnitRepositoryImpl implements ProvisionedUnitRepository
type ProvisionedUnitRepositoryImpl struct {
	*BaseRepository[models.ProvisionedUnit, models.ProvisionedUnitFilter]
}

func NewProvisionedUnitRepository(db *gorm.DB) ProvisionedUnitRepository {
	return &ProvisionedUnitRepositoryImpl{BaseRepository: NewBaseRepository[models.ProvisionedUnit, models.ProvisionedUnitFilter](db)}
}

func (r *ProvisionedUnitRepositoryImpl) ListByProvisionerOrder(ctx context.Context, provisionerOrderID uint) ([]*models.ProvisionedUnit, error) {
	return r.ByFilter(ctx, models.ProvisionedUnitFilter{ProvisionerOrderID: &provisionerOrderID}, "id ASC", 0, 0)
}

func (r *ProvisionedUnitRepositoryImpl) applyFilter(db *gorm.DB, f models.ProvisionedUnitFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UnitID != nil {
		db = db.Where("unit_id = ?", *f.UnitID)
	}
	if f.ProvisionerOrderID != nil {
		db = db.Where("provisioner_order_id = ?", *f.ProvisionerOrderID)
	}
	if f.ICCID != nil {
		db = db.Where("iccid = ?", *f.ICCID)
	}
	return db
}

func (r *ProvisionedUnitRepositoryImpl) ByFilter(ctx context.Context, filter models.ProvisionedUnitFilter, orderBy string, limit, offset int) ([]*models.ProvisionedUnit, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ProvisionedUnit{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ProvisionedUnit
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ProvisionedUnitRepositoryImpl) Count(ctx context.Context, filter models.ProvisionedUnitFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ProvisionedUnit{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ProvisionedUnitRepositoryImpl) Exists(ctx context.Context, filter models.ProvisionedUnitFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
