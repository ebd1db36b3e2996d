// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/esim-fulfillment/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// LocalOrderRepository defines operations for local orders
type LocalOrderRepository interface {
	Repository[models.LocalOrder, models.LocalOrderFilter]
	ByExternalOrderID(ctx context.Context, externalOrderID string) (*models.LocalOrder, error)
	ByTransactionCode(ctx context.Context, code string) (*models.LocalOrder, error)
	ByIDWithDetails(ctx context.Context, id uint) (*models.LocalOrder, error)
	Update(ctx context.Context, order *models.LocalOrder) error
	ListStaleReceived(ctx context.Context, olderThan time.Time, limit int) ([]*models.LocalOrder, error)
	ListUnconfirmed(ctx context.Context, olderThan time.Time, maxConfirmAttempts, limit int) ([]*models.LocalOrder, error)
	ClaimForProcessing(ctx context.Context, id uint) (bool, error)
	RecordConfirmFailure(ctx context.Context, id uint) error
}

// ProvisionerOrderRepository defines operations for provisioner orders
type ProvisionerOrderRepository interface {
	Repository[models.ProvisionerOrder, models.ProvisionerOrderFilter]
	ByProviderOrderID(ctx context.Context, providerOrderID string) (*models.ProvisionerOrder, error)
}

// ProvisionedUnitRepository defines operations for provisioned units
type ProvisionedUnitRepository interface {
	Repository[models.ProvisionedUnit, models.ProvisionedUnitFilter]
	ListByProvisionerOrder(ctx context.Context, provisionerOrderID uint) ([]*models.ProvisionedUnit, error)
}

// StorefrontProductRepository defines read operations for mirrored storefront products
type StorefrontProductRepository interface {
	Repository[models.StorefrontProduct, models.StorefrontProductFilter]
	ByIDGoods(ctx context.Context, idGoods int64) (*models.StorefrontProduct, error)
}

// VariantMappingRepository defines read operations for variant to package mappings
type VariantMappingRepository interface {
	Repository[models.VariantMapping, models.VariantMappingFilter]
	ByProductAndValue(ctx context.Context, productIDGoods, variantValue int64) (*models.VariantMapping, error)
}

// FailureRecordRepository defines operations for failure records
type FailureRecordRepository interface {
	Repository[models.FailureRecord, models.FailureRecordFilter]
}

// ProviderTokenRepository defines operations for persisted provider tokens
type ProviderTokenRepository interface {
	Repository[models.ProviderToken, models.ProviderTokenFilter]
	ByProvider(ctx context.Context, provider string) (*models.ProviderToken, error)
	Upsert(ctx context.Context, token *models.ProviderToken) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByLocalOrder(ctx context.Context, localOrderID uint, limit, offset int) ([]*models.AuditLog, error)
}
