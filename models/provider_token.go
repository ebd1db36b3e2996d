package models

import "time"

// ProviderToken persists the live bearer token of an external provider, one row per provider
type ProviderToken struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider    string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"provider"`
	AccessToken string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ProviderToken) TableName() string {
	return "provider_tokens"
}

// ProviderTokenFilter represents filter criteria for provider token queries
type ProviderTokenFilter struct {
	Provider *string `json:"provider,omitempty"`
}
