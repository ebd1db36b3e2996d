// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/esim-fulfillment/models"
	"gorm.io/gorm"
)

// AuditLogRepositoryImpl implements AuditLogRepository interface
type AuditLogRepositoryImpl struct {
	*BaseRepository[models.AuditLog, models.AuditLogFilter]
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AuditLog, models.AuditLogFilter](db),
	}
}

// ListByLocalOrder retrieves the audit trail of one order with pagination
func (r *AuditLogRepositoryImpl) ListByLocalOrder(ctx context.Context, localOrderID uint, limit, offset int) ([]*models.AuditLog, error) {
	logs, err := r.ByFilter(ctx, models.AuditLogFilter{LocalOrderID: &localOrderID}, "created_at DESC", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs by order: %w", err)
	}
	return logs, nil
}

func (r *AuditLogRepositoryImpl) applyFilter(db *gorm.DB, f models.AuditLogFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.LocalOrderID != nil {
		db = db.Where("local_order_id = ?", *f.LocalOrderID)
	}
	if f.Action != nil {
		db = db.Where("action = ?", *f.Action)
	}
	if f.Success != nil {
		db = db.Where("success = ?", *f.Success)
	}
	if f.RequestID != nil {
		db = db.Where("request_id = ?", *f.RequestID)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *AuditLogRepositoryImpl) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.AuditLog{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var logs []*models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *AuditLogRepositoryImpl) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.AuditLog{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *AuditLogRepositoryImpl) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
