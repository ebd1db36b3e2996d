package repository

import (
	"context"

	"github.com/amirphl/esim-fulfillment/models"
	"gorm.io/gorm"
)

// ProvisionerOrderRepositoryImpl implements ProvisionerOrderRepository
type ProvisionerOrderRepositoryImpl struct {
	*BaseRepository[models.ProvisionerOrder, models.ProvisionerOrderFilter]
}

func NewProvisionerOrderRepository(db *gorm.DB) ProvisionerOrderRepository {
	return &ProvisionerOrderRepositoryImpl{BaseRepository: NewBaseRepository[models.ProvisionerOrder, models.ProvisionerOrderFilter](db)}
}

func (r *ProvisionerOrderRepositoryImpl) ByProviderOrderID(ctx context.Context, providerOrderID string) (*models.ProvisionerOrder, error) {
	rows, err := r.ByFilter(ctx, models.ProvisionerOrderFilter{ProviderOrderID: &providerOrderID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *ProvisionerOrderRepositoryImpl) applyFilter(db *gorm.DB, f models.ProvisionerOrderFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ProviderOrderID != nil {
		db = db.Where("provider_order_id = ?", *f.ProviderOrderID)
	}
	if f.Code != nil {
		db = db.Where("code = ?", *f.Code)
	}
	if f.PackageRef != nil {
		db = db.Where("package_ref = ?", *f.PackageRef)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *ProvisionerOrderRepositoryImpl) ByFilter(ctx context.Context, filter models.ProvisionerOrderFilter, orderBy string, limit, offset int) ([]*models.ProvisionerOrder, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ProvisionerOrder{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ProvisionerOrder
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ProvisionerOrderRepositoryImpl) Count(ctx context.Context, filter models.ProvisionerOrderFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ProvisionerOrder{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ProvisionerOrderRepositoryImpl) Exists(ctx context.Context, filter models.ProvisionerOrderFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
