package dto

import "time"

type AdminSessionDTO struct {
	AccessToken string    `json:"access_token" example:"jwt"`
	ExpiresIn   int       `json:"expires_in" example:"43200"`
	ExpiresAt   time.Time `json:"expires_at" example:"2025-01-15T22:30:00Z"`
	TokenType   string    `json:"token_type" example:"Bearer"`
}

type AdminLoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=255"`
	Password string `json:"password" validate:"required,min=8,max=100"`
}

type AdminLoginResponse struct {
	Username string          `json:"username" example:"operator"`
	Session  AdminSessionDTO `json:"session"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// ListOrdersFilter narrows admin order listings and exports
type ListOrdersFilter struct {
	Status          *string    `json:"status,omitempty"`
	ProductRef      *int64     `json:"product_ref,omitempty"`
	ExternalOrderID *string    `json:"external_order_id,omitempty"`
	Unconfirmed     *bool      `json:"unconfirmed,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
}

// ListOrdersRequest represents a paginated list request for local orders
type ListOrdersRequest struct {
	Page   int              `json:"page"`
	Limit  int              `json:"limit"`
	Filter ListOrdersFilter `json:"filter"`
}

// LocalOrderDTO is the admin view of a local order
type LocalOrderDTO struct {
	ID                  uint       `json:"id"`
	UUID                string     `json:"uuid"`
	ExternalOrderID     string     `json:"external_order_id"`
	TransactionCode     string     `json:"transaction_code"`
	ProductRef          int64      `json:"product_ref"`
	VariantRef          int64      `json:"variant_ref"`
	ResolvedPackageRef  string     `json:"resolved_package_ref"`
	Quantity            int        `json:"quantity"`
	BuyerContact        string     `json:"buyer_contact"`
	PurchaseAmount      string     `json:"purchase_amount"`
	PurchaseCurrency    string     `json:"purchase_currency"`
	PurchaseTimestamp   *time.Time `json:"purchase_timestamp,omitempty"`
	Status              string     `json:"status"`
	ErrorDetail         *string    `json:"error_detail,omitempty"`
	Attempts            int        `json:"attempts"`
	ProvisionerOrderID  *uint      `json:"provisioner_order_id,omitempty"`
	DeliveryConfirmedAt *time.Time `json:"delivery_confirmed_at,omitempty"`
	ConfirmAttempts     int        `json:"confirm_attempts"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ProvisionerOrderDTO is the admin view of a provider order
type ProvisionerOrderDTO struct {
	ID                uint       `json:"id"`
	ProviderOrderID   string     `json:"provider_order_id"`
	Code              string     `json:"code"`
	PackageRef        string     `json:"package_ref"`
	Quantity          int        `json:"quantity"`
	Price             string     `json:"price"`
	NetPrice          string     `json:"net_price"`
	Currency          string     `json:"currency"`
	EsimType          string     `json:"esim_type"`
	Validity          string     `json:"validity"`
	DataAmount        string     `json:"data_amount"`
	ProviderCreatedAt *time.Time `json:"provider_created_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ProvisionedUnitDTO is one SIM with its activation data
type ProvisionedUnitDTO struct {
	UnitID                     string `json:"unit_id"`
	ICCID                      string `json:"iccid"`
	LPA                        string `json:"lpa,omitempty"`
	QRCode                     string `json:"qrcode,omitempty"`
	QRCodeURL                  string `json:"qrcode_url,omitempty"`
	DirectAppleInstallationURL string `json:"direct_apple_installation_url,omitempty"`
	APNType                    string `json:"apn_type,omitempty"`
	APNValue                   string `json:"apn_value,omitempty"`
	IsRoaming                  bool   `json:"is_roaming"`
}

type AuditLogDTO struct {
	Action       string    `json:"action"`
	Actor        string    `json:"actor"`
	Description  *string   `json:"description,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// OrderDetailResponse is a local order with everything linked to it
type OrderDetailResponse struct {
	Order            LocalOrderDTO        `json:"order"`
	ProvisionerOrder *ProvisionerOrderDTO `json:"provisioner_order,omitempty"`
	Units            []ProvisionedUnitDTO `json:"units"`
	AuditTrail       []AuditLogDTO        `json:"audit_trail"`
}

type ListOrdersResponse struct {
	Items      []LocalOrderDTO `json:"items"`
	Pagination PaginationInfo  `json:"pagination"`
}

type RetryOrderResponse struct {
	OrderID  uint   `json:"order_id"`
	Status   string `json:"status"`
	Enqueued bool   `json:"enqueued"`
}

type ConfirmDeliveryResponse struct {
	OrderID         uint      `json:"order_id"`
	TransactionCode string    `json:"transaction_code"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// ExportOrdersResponse carries a generated spreadsheet
type ExportOrdersResponse struct {
	Filename string `json:"filename"`
	Rows     int    `json:"rows"`
	Content  []byte `json:"-"`
}

type ListFailuresRequest struct {
	Page         int     `json:"page"`
	Limit        int     `json:"limit"`
	Source       *string `json:"source,omitempty"`
	LocalOrderID *uint   `json:"local_order_id,omitempty"`
}

type FailureRecordDTO struct {
	ID           uint      `json:"id"`
	Source       string    `json:"source"`
	Reason       string    `json:"reason"`
	LocalOrderID *uint     `json:"local_order_id,omitempty"`
	Context      any       `json:"context,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type ListFailuresResponse struct {
	Items      []FailureRecordDTO `json:"items"`
	Pagination PaginationInfo     `json:"pagination"`
}
