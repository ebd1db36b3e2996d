package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// ProvisionerOrder is the provider's record of a successful provisioning call.
// It is written once and never updated.
type ProvisionerOrder struct {
	ID              uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProviderOrderID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"provider_order_id"`
	Code            string `gorm:"type:varchar(128);index;not null" json:"code"`

	PackageRef  string `gorm:"type:varchar(255);not null" json:"package_ref"`
	Quantity    int    `gorm:"not null" json:"quantity"`
	Price       string `gorm:"type:varchar(32)" json:"price"`
	NetPrice    string `gorm:"type:varchar(32)" json:"net_price"`
	Currency    string `gorm:"type:varchar(10)" json:"currency"`
	Type        string `gorm:"type:varchar(20)" json:"type"`
	Description string `gorm:"type:text" json:"description"`
	EsimType    string `gorm:"type:varchar(50)" json:"esim_type"`
	Validity    string `gorm:"type:varchar(20)" json:"validity"`
	PackageName string `gorm:"type:varchar(255)" json:"package_name"`
	DataAmount  string `gorm:"type:varchar(50)" json:"data_amount"`

	ManualInstallation string          `gorm:"type:text" json:"manual_installation,omitempty"`
	QRCodeInstallation string          `gorm:"type:text" json:"qrcode_installation,omitempty"`
	InstallationGuides json.RawMessage `gorm:"type:jsonb" json:"installation_guides,omitempty"`
	CopyAddresses      pq.StringArray  `gorm:"type:text[]" json:"copy_addresses,omitempty"`

	ProviderCreatedAt *time.Time      `json:"provider_created_at,omitempty"`
	RawPayload        json.RawMessage `gorm:"type:jsonb;not null" json:"raw_payload"`
	CreatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	Units []ProvisionedUnit `gorm:"foreignKey:ProvisionerOrderID" json:"units,omitempty"`
}

func (ProvisionerOrder) TableName() string {
	return "provisioner_orders"
}

// ProvisionerOrderFilter represents filter criteria for provisioner order queries
type ProvisionerOrderFilter struct {
	ID              *uint      `json:"id,omitempty"`
	ProviderOrderID *string    `json:"provider_order_id,omitempty"`
	Code            *string    `json:"code,omitempty"`
	PackageRef      *string    `json:"package_ref,omitempty"`
	CreatedAfter    *time.Time `json:"created_after,omitempty"`
	CreatedBefore   *time.Time `json:"created_before,omitempty"`
}
