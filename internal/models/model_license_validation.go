package models

import "time"

// LicenseValidation is an append-only audit row written on every validate or
// deactivate attempt, including failed key lookups (LicenseID empty then).
// The core never mutates or deletes these rows.
type LicenseValidation struct {
	ID                string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	LicenseID         *string   `gorm:"column:license_id;type:uuid;index;default:null" json:"license_id"`
	LicenseKey        string    `gorm:"column:license_key;type:varchar(19);index" json:"license_key"`
	Valid             bool      `gorm:"column:valid;not null" json:"valid"`
	Message           string    `gorm:"column:message;type:varchar(255);not null" json:"message"`
	IPAddress         string    `gorm:"column:ip_address;type:varchar(64)" json:"ip_address"`
	UserAgent         string    `gorm:"column:user_agent;type:varchar(512)" json:"user_agent"`
	DeviceFingerprint string    `gorm:"column:device_fingerprint;type:varchar(255)" json:"device_fingerprint"`
	CreatedAt         time.Time `json:"created_at"`
}

func (LicenseValidation) TableName() string { return "license_validation" }
