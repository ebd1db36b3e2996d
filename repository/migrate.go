package repository

import (
	"fmt"

	"github.com/amirphl/esim-fulfillment/models"
	"gorm.io/gorm"
)

// AllModels lists every table owned by the service, in dependency order
func AllModels() []any {
	return []any{
		&models.StorefrontProduct{},
		&models.ProvisioningPackage{},
		&models.VariantMapping{},
		&models.ProvisionerOrder{},
		&models.ProvisionedUnit{},
		&models.LocalOrder{},
		&models.FailureRecord{},
		&models.ProviderToken{},
		&models.AuditLog{},
	}
}

// AutoMigrate creates or updates the schema for all models
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
