package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/esim-fulfillment/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderTokenRepositoryImpl implements ProviderTokenRepository
type ProviderTokenRepositoryImpl struct {
	*BaseRepository[models.ProviderToken, models.ProviderTokenFilter]
}

func NewProviderTokenRepository(db *gorm.DB) ProviderTokenRepository {
	return &ProviderTokenRepositoryImpl{BaseRepository: NewBaseRepository[models.ProviderToken, models.ProviderTokenFilter](db)}
}

func (r *ProviderTokenRepositoryImpl) ByProvider(ctx context.Context, provider string) (*models.ProviderToken, error) {
	rows, err := r.ByFilter(ctx, models.ProviderTokenFilter{Provider: &provider}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Upsert replaces the stored token of the provider, keeping a single row per provider
func (r *ProviderTokenRepositoryImpl) Upsert(ctx context.Context, token *models.ProviderToken) error {
	db := r.getDB(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "expires_at", "updated_at"}),
	}).Create(token).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %s token: %w", token.Provider, err)
	}
	return nil
}

func (r *ProviderTokenRepositoryImpl) applyFilter(db *gorm.DB, f models.ProviderTokenFilter) *gorm.DB {
	if f.Provider != nil {
		db = db.Where("provider = ?", *f.Provider)
	}
	return db
}

func (r *ProviderTokenRepositoryImpl) ByFilter(ctx context.Context, filter models.ProviderTokenFilter, orderBy string, limit, offset int) ([]*models.ProviderToken, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ProviderToken{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ProviderToken
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ProviderTokenRepositoryImpl) Count(ctx context.Context, filter models.ProviderTokenFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.ProviderToken{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ProviderTokenRepositoryImpl) Exists(ctx context.Context, filter models.ProviderTokenFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
