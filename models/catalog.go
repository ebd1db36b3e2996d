package models

import (
	"encoding/json"
	"time"
)

// StorefrontProduct mirrors a Digiseller product that sells eSIM packages.
// The catalog sync owns these rows; the pipeline only reads them.
type StorefrontProduct struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	IDGoods   int64     `gorm:"column:id_goods;uniqueIndex;not null" json:"id_goods"`
	NameGoods string    `gorm:"type:varchar(512);not null" json:"name_goods"`
	Currency  string    `gorm:"type:varchar(10)" json:"currency"`
	Price     string    `gorm:"type:varchar(32)" json:"price"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Variants []VariantMapping `gorm:"foreignKey:StorefrontProductID;constraint:OnDelete:CASCADE" json:"variants,omitempty"`
}

func (StorefrontProduct) TableName() string {
	return "storefront_products"
}

// ProvisioningPackage is an Airalo package a variant can be mapped to
type ProvisioningPackage struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	PackageID   string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"package_id"`
	Title       string          `gorm:"type:varchar(255)" json:"title"`
	Type        string          `gorm:"type:varchar(50)" json:"type"`
	Price       float64         `json:"price"`
	NetPrice    *float64        `json:"net_price,omitempty"`
	Day         *int            `json:"day,omitempty"`
	Amount      *int            `json:"amount,omitempty"`
	IsUnlimited bool            `gorm:"not null;default:false" json:"is_unlimited"`
	Data        string          `gorm:"type:varchar(50)" json:"data"`
	RawData     json.RawMessage `gorm:"type:jsonb" json:"raw_data,omitempty"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ProvisioningPackage) TableName() string {
	return "provisioning_packages"
}

// VariantMapping associates a storefront variant with zero or one provisioning package
type VariantMapping struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	StorefrontProductID uint   `gorm:"not null;uniqueIndex:ux_storefront_variants_product_value,priority:1" json:"storefront_product_id"`
	VariantValue        int64  `gorm:"not null;uniqueIndex:ux_storefront_variants_product_value,priority:2" json:"variant_value"`
	Text                string `gorm:"type:varchar(255)" json:"text"`
	IsDefault           bool   `gorm:"column:is_default;not null;default:false" json:"is_default"`
	Visible             bool   `gorm:"not null;default:true" json:"visible"`
	PackageID           *uint  `gorm:"index" json:"package_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Product *StorefrontProduct   `gorm:"foreignKey:StorefrontProductID" json:"product,omitempty"`
	Package *ProvisioningPackage `gorm:"foreignKey:PackageID;constraint:OnDelete:SET NULL" json:"package,omitempty"`
}

func (VariantMapping) TableName() string {
	return "storefront_variants"
}

// HasPackage reports whether the variant is mapped to a provisioning package
func (v *VariantMapping) HasPackage() bool {
	return v.PackageID != nil && v.Package != nil && v.Package.PackageID != ""
}

// StorefrontProductFilter represents filter criteria for storefront product queries
type StorefrontProductFilter struct {
	ID      *uint  `json:"id,omitempty"`
	IDGoods *int64 `json:"id_goods,omitempty"`
}

// VariantMappingFilter represents filter criteria for variant mapping queries
type VariantMappingFilter struct {
	ID                  *uint  `json:"id,omitempty"`
	StorefrontProductID *uint  `json:"storefront_product_id,omitempty"`
	VariantValue        *int64 `json:"variant_value,omitempty"`
	PackageID           *uint  `json:"package_id,omitempty"`
	Mapped              *bool  `json:"mapped,omitempty"`
}
