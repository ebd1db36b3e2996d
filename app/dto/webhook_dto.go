package dto

import "encoding/json"

// StorefrontNotificationRequest is the payment notification the storefront posts after a sale.
// Numeric fields arrive either as numbers or as numeric strings.
type StorefrontNotificationRequest struct {
	InvoiceID   json.Number `json:"id_i" validate:"required"`
	ProductID   json.Number `json:"id_d" validate:"required"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"curr" validate:"omitempty,max=10"`
	Email       string      `json:"email" validate:"omitempty,max=255"`
	Date        string      `json:"date" validate:"omitempty,max=64"`
	Signature   string      `json:"sha256" validate:"omitempty,max=128"`
	UniqueCode  string      `json:"unique_code" validate:"omitempty,max=128"`
	Through     string      `json:"through,omitempty"`
	IP          string      `json:"ip,omitempty"`
	IsMyProduct *bool       `json:"is_my_product,omitempty"`
	CartUID     string      `json:"cart_uid,omitempty"`
}

// StorefrontNotificationResponse acknowledges a notification
type StorefrontNotificationResponse struct {
	Status       string `json:"status"` // processed, ignored
	LocalOrderID *uint  `json:"local_order_id,omitempty"`
	OrderUUID    string `json:"order_uuid,omitempty"`
	Created      bool   `json:"created"`
	Reason       string `json:"reason,omitempty"`
}
