package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/esim-fulfillment/models"
	"gorm.io/gorm"
)

// StorefrontProductRepositoryImpl implements StorefrontProductRepository
type StorefrontProductRepositoryImpl struct {
	*BaseRepository[models.StorefrontProduct, models.StorefrontProductFilter]
}

func NewStorefrontProductRepository(db *gorm.DB) StorefrontProductRepository {
	return &StorefrontProductRepositoryImpl{BaseRepository: NewBaseRepository[models.StorefrontProduct, models.StorefrontProductFilter](db)}
}

func (r *StorefrontProductRepositoryImpl) ByIDGoods(ctx context.Context, idGoods int64) (*models.StorefrontProduct, error) {
	rows, err := r.ByFilter(ctx, models.StorefrontProductFilter{IDGoods: &idGoods}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *StorefrontProductRepositoryImpl) applyFilter(db *gorm.DB, f models.StorefrontProductFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.IDGoods != nil {
		db = db.Where("id_goods = ?", *f.IDGoods)
	}
	return db
}

func (r *StorefrontProductRepositoryImpl) ByFilter(ctx context.Context, filter models.StorefrontProductFilter, orderBy string, limit, offset int) ([]*models.StorefrontProduct, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.StorefrontProduct{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.StorefrontProduct
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *StorefrontProductRepositoryImpl) Count(ctx context.Context, filter models.StorefrontProductFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.StorefrontProduct{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *StorefrontProductRepositoryImpl) Exists(ctx context.Context, filter models.StorefrontProductFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// VariantMappingRepositoryImpl implements VariantMappingRepository
type VariantMappingRepositoryImpl struct {
	*BaseRepository[models.VariantMapping, models.VariantMappingFilter]
}

func NewVariantMappingRepository(db *gorm.DB) VariantMappingRepository {
	return &VariantMappingRepositoryImpl{BaseRepository: NewBaseRepository[models.VariantMapping, models.VariantMappingFilter](db)}
}

// ByProductAndValue looks a variant up by storefront product id and variant value, with its package preloaded
func (r *VariantMappingRepositoryImpl) ByProductAndValue(ctx context.Context, productIDGoods, variantValue int64) (*models.VariantMapping, error) {
	db := r.getDB(ctx)
	var row models.VariantMapping
	err := db.Model(&models.VariantMapping{}).
		Joins("JOIN storefront_products ON storefront_products.id = storefront_variants.storefront_product_id").
		Where("storefront_products.id_goods = ? AND storefront_variants.variant_value = ?", productIDGoods, variantValue).
		Preload("Package").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find variant %d of product %d: %w", variantValue, productIDGoods, err)
	}
	return &row, nil
}

func (r *VariantMappingRepositoryImpl) applyFilter(db *gorm.DB, f models.VariantMappingFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.StorefrontProductID != nil {
		db = db.Where("storefront_product_id = ?", *f.StorefrontProductID)
	}
	if f.VariantValue != nil {
		db = db.Where("variant_value = ?", *f.VariantValue)
	}
	if f.PackageID != nil {
		db = db.Where("package_id = ?", *f.PackageID)
	}
	if f.Mapped != nil {
		if *f.Mapped {
			db = db.Where("package_id IS NOT NULL")
		} else {
			db = db.Where("package_id IS NULL")
		}
	}
	return db
}

func (r *VariantMappingRepositoryImpl) ByFilter(ctx context.Context, filter models.VariantMappingFilter, orderBy string, limit, offset int) ([]*models.VariantMapping, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.VariantMapping{}), filter).Preload("Package")
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.VariantMapping
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *VariantMappingRepositoryImpl) Count(ctx context.Context, filter models.VariantMappingFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.VariantMapping{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *VariantMappingRepositoryImpl) Exists(ctx context.Context, filter models.VariantMappingFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
