// Package businessflow contains the core business logic of the fulfillment pipeline
package businessflow

import (
	"context"
	"encoding/json"
	"log"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/amirphl/esim-fulfillment/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds caller information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetActor sets who performed the action
func (cm *ClientMetadata) SetActor(actor string) {
	cm.Actor = actor
}

// recorder writes audit logs and failure records. Both are best effort.
type recorder struct {
	auditRepo   repository.AuditLogRepository
	failureRepo repository.FailureRecordRepository
	logger      *log.Logger
}

func (r *recorder) audit(ctx context.Context, orderID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) {
	if r.auditRepo == nil {
		return
	}
	entry := &models.AuditLog{
		LocalOrderID: orderID,
		Action:       action,
		Actor:        "system",
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMsg,
	}
	if metadata != nil {
		entry.IPAddress = utils.ToPtr(metadata.IPAddress)
		entry.UserAgent = utils.ToPtr(metadata.UserAgent)
		if metadata.Actor != "" {
			entry.Actor = metadata.Actor
		}
		if metadata.RequestID != "" {
			entry.RequestID = utils.ToPtr(metadata.RequestID)
		}
		if len(metadata.Additional) > 0 {
			if raw, err := json.Marshal(metadata.Additional); err == nil {
				entry.Metadata = raw
			}
		}
	}
	if entry.RequestID == nil {
		if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
			entry.RequestID = &requestID
		}
	}

	if err := r.auditRepo.Save(ctx, entry); err != nil {
		r.logger.Printf("failed to save audit log %s: %v", action, err)
	}
}

func (r *recorder) failure(ctx context.Context, source, reason string, orderID *uint, payload any) {
	if r.failureRepo == nil {
		return
	}
	record := &models.FailureRecord{
		Source:       source,
		Reason:       reason,
		LocalOrderID: orderID,
		Timestamp:    utils.UTCNow(),
	}
	if payload != nil {
		switch p := payload.(type) {
		case json.RawMessage:
			if json.Valid(p) {
				record.ContextPayload = p
			}
		case []byte:
			if json.Valid(p) {
				record.ContextPayload = p
			}
		default:
			if raw, err := json.Marshal(p); err == nil {
				record.ContextPayload = raw
			}
		}
	}

	if err := r.failureRepo.Save(ctx, record); err != nil {
		r.logger.Printf("failed to save failure record (%s: %s): %v", source, reason, err)
	}
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	return utils.ToPtr(err.Error())
}

// ToLocalOrderDTO converts a local order model to its admin view
func ToLocalOrderDTO(o *models.LocalOrder) dto.LocalOrderDTO {
	return dto.LocalOrderDTO{
		ID:                  o.ID,
		UUID:                o.UUID.String(),
		ExternalOrderID:     o.ExternalOrderID,
		TransactionCode:     o.TransactionCode,
		ProductRef:          o.ProductRef,
		VariantRef:          o.VariantRef,
		ResolvedPackageRef:  o.ResolvedPackageRef,
		Quantity:            o.Quantity,
		BuyerContact:        o.BuyerContact,
		PurchaseAmount:      o.PurchaseAmount,
		PurchaseCurrency:    o.PurchaseCurrency,
		PurchaseTimestamp:   o.PurchaseTimestamp,
		Status:              string(o.Status),
		ErrorDetail:         o.ErrorDetail,
		Attempts:            o.Attempts,
		ProvisionerOrderID:  o.ProvisionerOrderID,
		DeliveryConfirmedAt: o.DeliveryConfirmedAt,
		ConfirmAttempts:     o.ConfirmAttempts,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

// ToProvisionerOrderDTO converts a provider order model to its admin view
func ToProvisionerOrderDTO(p *models.ProvisionerOrder) *dto.ProvisionerOrderDTO {
	if p == nil {
		return nil
	}
	return &dto.ProvisionerOrderDTO{
		ID:                p.ID,
		ProviderOrderID:   p.ProviderOrderID,
		Code:              p.Code,
		PackageRef:        p.PackageRef,
		Quantity:          p.Quantity,
		Price:             p.Price,
		NetPrice:          p.NetPrice,
		Currency:          p.Currency,
		EsimType:          p.EsimType,
		Validity:          p.Validity,
		DataAmount:        p.DataAmount,
		ProviderCreatedAt: p.ProviderCreatedAt,
		CreatedAt:         p.CreatedAt,
	}
}

// ToProvisionedUnitDTO flattens a unit and its activation payload
func ToProvisionedUnitDTO(u *models.ProvisionedUnit) dto.ProvisionedUnitDTO {
	out := dto.ProvisionedUnitDTO{UnitID: u.UnitID, ICCID: u.ICCID}
	activation, err := u.Activation()
	if err != nil {
		return out
	}
	out.LPA = activation.LPA
	out.QRCode = activation.QRCode
	out.QRCodeURL = activation.QRCodeURL
	out.DirectAppleInstallationURL = activation.DirectAppleInstallationURL
	out.APNType = activation.APNType
	out.APNValue = activation.APNValue
	out.IsRoaming = activation.IsRoaming
	return out
}

func ToAuditLogDTO(a *models.AuditLog) dto.AuditLogDTO {
	return dto.AuditLogDTO{
		Action:       a.Action,
		Actor:        a.Actor,
		Description:  a.Description,
		Success:      !a.IsFailed(),
		ErrorMessage: a.ErrorMessage,
		CreatedAt:    a.CreatedAt,
	}
}

func ToFailureRecordDTO(f *models.FailureRecord) dto.FailureRecordDTO {
	out := dto.FailureRecordDTO{
		ID:           f.ID,
		Source:       f.Source,
		Reason:       f.Reason,
		LocalOrderID: f.LocalOrderID,
		Timestamp:    f.Timestamp,
	}
	if len(f.ContextPayload) > 0 {
		var payload any
		if err := json.Unmarshal(f.ContextPayload, &payload); err == nil {
			out.Context = payload
		}
	}
	return out
}
