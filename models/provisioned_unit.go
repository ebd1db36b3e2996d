package models

import (
	"encoding/json"
	"time"
)

// ActivationPayload is what a buyer needs to install one eSIM
type ActivationPayload struct {
	LPA                        string `json:"lpa,omitempty"`
	QRCode                     string `json:"qrcode,omitempty"`
	QRCodeURL                  string `json:"qrcode_url,omitempty"`
	DirectAppleInstallationURL string `json:"direct_apple_installation_url,omitempty"`
	APNType                    string `json:"apn_type,omitempty"`
	APNValue                   string `json:"apn_value,omitempty"`
	IsRoaming                  bool   `json:"is_roaming"`
}

// ProvisionedUnit is a single activatable SIM returned for a provisioner order
type ProvisionedUnit struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UnitID             string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"unit_id"`
	ProvisionerOrderID uint            `gorm:"not null;index" json:"provisioner_order_id"`
	ICCID              string          `gorm:"column:iccid;type:varchar(32);index" json:"iccid"`
	ActivationPayload  json.RawMessage `gorm:"type:jsonb;not null" json:"activation_payload"`
	RawPayload         json.RawMessage `gorm:"type:jsonb;not null" json:"raw_payload"`
	CreatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ProvisionedUnit) TableName() string {
	return "provisioned_units"
}

// Activation decodes the stored activation payload
func (u *ProvisionedUnit) Activation() (ActivationPayload, error) {
	var payload ActivationPayload
	if len(u.ActivationPayload) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(u.ActivationPayload, &payload)
	return payload, err
}

// ProvisionedUnitFilter represents filter criteria for provisioned unit queries
type ProvisionedUnitFilter struct {
	ID                 *uint   `json:"id,omitempty"`
	UnitID             *string `json:"unit_id,omitempty"`
	ProvisionerOrderID *uint   `json:"provisioner_order_id,omitempty"`
	ICCID              *string `json:"iccid,omitempty"`
}
