package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LocalOrderStatus represents the lifecycle state of a storefront purchase on our side
type LocalOrderStatus string

const (
	LocalOrderStatusReceived   LocalOrderStatus = "received"   // Materialized from a notification, waiting for the worker
	LocalOrderStatusProcessing LocalOrderStatus = "processing" // Worker is talking to the provisioner
	LocalOrderStatusCompleted  LocalOrderStatus = "completed"  // Provisioner order created and linked
	LocalOrderStatusFailed     LocalOrderStatus = "failed"     // Provisioning rejected or exhausted its attempts
	LocalOrderStatusInvalid    LocalOrderStatus = "invalid"    // Order can never be provisioned as stored
)

// LocalOrder reconciles one storefront purchase with its provisioning outcome.
// Rows are never deleted and serve as the audit trail of the pipeline.
type LocalOrder struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	// Storefront identifiers
	ExternalOrderID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"external_order_id"`
	TransactionCode string `gorm:"type:varchar(128);uniqueIndex;not null" json:"transaction_code"`
	ProductRef      int64  `gorm:"not null;index" json:"product_ref"`
	VariantRef      int64  `gorm:"not null" json:"variant_ref"`

	// Resolved provisioning target
	ResolvedPackageRef string `gorm:"type:varchar(255);not null" json:"resolved_package_ref"`
	Quantity           int    `gorm:"not null;default:1" json:"quantity"`

	// Purchase details
	BuyerContact      string     `gorm:"type:varchar(255)" json:"buyer_contact"`
	PurchaseAmount    string     `gorm:"type:varchar(32)" json:"purchase_amount"`
	PurchaseCurrency  string     `gorm:"type:varchar(10)" json:"purchase_currency"`
	PurchaseTimestamp *time.Time `json:"purchase_timestamp,omitempty"`

	// Status tracking
	Status              LocalOrderStatus `gorm:"type:varchar(20);not null;default:'received';index" json:"status"`
	ErrorDetail         *string          `gorm:"type:text" json:"error_detail,omitempty"`
	Attempts            int              `gorm:"not null;default:0" json:"attempts"`
	ProvisionerOrderID  *uint            `gorm:"uniqueIndex" json:"provisioner_order_id,omitempty"`
	DeliveryConfirmedAt *time.Time       `gorm:"index" json:"delivery_confirmed_at,omitempty"`

	// Failed delivery confirmations; the recovery sweep stops after a configured bound
	ConfirmAttempts      int        `gorm:"not null;default:0" json:"confirm_attempts"`
	LastConfirmAttemptAt *time.Time `json:"last_confirm_attempt_at,omitempty"`

	Metadata  json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	ProvisionerOrder *ProvisionerOrder `gorm:"foreignKey:ProvisionerOrderID;constraint:OnDelete:SET NULL" json:"provisioner_order,omitempty"`
}

func (LocalOrder) TableName() string {
	return "local_orders"
}

// BeforeCreate ensures UUID is set
func (o *LocalOrder) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == uuid.Nil {
		o.UUID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether the executor must leave the order alone.
// Failed orders stay re-runnable so that bounded retries and manual re-triggers can pick them up.
func (o *LocalOrder) IsTerminal() bool {
	return o.Status == LocalOrderStatusCompleted || o.Status == LocalOrderStatusInvalid
}

// IsClaimable reports whether the executor may move the order to processing
func (o *LocalOrder) IsClaimable() bool {
	return o.Status == LocalOrderStatusReceived || o.Status == LocalOrderStatusFailed
}

// IsRetryable reports whether an operator may re-enqueue the order
func (o *LocalOrder) IsRetryable() bool {
	return o.Status == LocalOrderStatusFailed || o.Status == LocalOrderStatusReceived
}

// NeedsDeliveryConfirmation reports whether the storefront has not yet acknowledged delivery
func (o *LocalOrder) NeedsDeliveryConfirmation() bool {
	return o.Status == LocalOrderStatusCompleted && o.DeliveryConfirmedAt == nil
}

// LocalOrderFilter represents filter criteria for local order queries
type LocalOrderFilter struct {
	ID              *uint             `json:"id,omitempty"`
	UUID            *uuid.UUID        `json:"uuid,omitempty"`
	ExternalOrderID *string           `json:"external_order_id,omitempty"`
	TransactionCode *string           `json:"transaction_code,omitempty"`
	ProductRef      *int64            `json:"product_ref,omitempty"`
	Status          *LocalOrderStatus `json:"status,omitempty"`
	Unconfirmed     *bool             `json:"unconfirmed,omitempty"`
	CreatedAfter    *time.Time        `json:"created_after,omitempty"`
	CreatedBefore   *time.Time        `json:"created_before,omitempty"`
	UpdatedBefore   *time.Time        `json:"updated_before,omitempty"`

	MaxConfirmAttempts *int `json:"max_confirm_attempts,omitempty"` // confirm_attempts < value
}
