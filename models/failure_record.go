package models

import (
	"encoding/json"
	"time"
)

// Failure sources
const (
	FailureSourceStorefront  = "storefront"
	FailureSourceProvisioner = "provisioner"
	FailureSourceIntake      = "intake"
	FailureSourceExecutor    = "executor"
	FailureSourceDelivery    = "delivery"
	FailureSourceTokenStore  = "token_store"
)

// FailureRecord is an append-only diagnostic row. The pipeline writes them and never reads them back.
type FailureRecord struct {
	ID             uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Source         string          `gorm:"type:varchar(30);not null;index" json:"source"`
	Reason         string          `gorm:"type:text;not null" json:"reason"`
	LocalOrderID   *uint           `gorm:"index" json:"local_order_id,omitempty"`
	ContextPayload json.RawMessage `gorm:"type:jsonb" json:"context_payload,omitempty"`
	Timestamp      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"timestamp"`
}

func (FailureRecord) TableName() string {
	return "failure_records"
}

// FailureRecordFilter represents filter criteria for failure record queries
type FailureRecordFilter struct {
	ID           *uint      `json:"id,omitempty"`
	Source       *string    `json:"source,omitempty"`
	LocalOrderID *uint      `json:"local_order_id,omitempty"`
	After        *time.Time `json:"after,omitempty"`
	Before       *time.Time `json:"before,omitempty"`
}
