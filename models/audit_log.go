// Package models contains domain entities for the eSIM fulfillment pipeline
package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	LocalOrderID *uint           `gorm:"index:idx_audit_local_order_id" json:"local_order_id,omitempty"`
	Action       string          `gorm:"type:varchar(50);not null;index:idx_audit_action" json:"action"`
	Actor        string          `gorm:"type:varchar(50);not null;default:'system'" json:"actor"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionOrderMaterialized     = "order_materialized"
	AuditActionOrderDuplicate        = "order_duplicate"
	AuditActionNotificationIgnored   = "notification_ignored"
	AuditActionProvisioningStarted   = "provisioning_started"
	AuditActionProvisioningCompleted = "provisioning_completed"
	AuditActionProvisioningFailed    = "provisioning_failed"
	AuditActionOrderInvalid          = "order_invalid"
	AuditActionDeliveryConfirmed     = "delivery_confirmed"
	AuditActionDeliveryConfirmFailed = "delivery_confirm_failed"
	AuditActionOrderRetryRequested   = "order_retry_requested"
	AuditActionAdminLoginSuccess     = "admin_login_success"
	AuditActionAdminLoginFailed      = "admin_login_failed"
	AuditActionOrdersExported        = "orders_exported"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	LocalOrderID  *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
