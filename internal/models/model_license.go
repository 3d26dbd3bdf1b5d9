package models

import (
	"time"

	"gorm.io/datatypes"
)

type LicenseStatus string

const (
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusExpired   LicenseStatus = "expired"
	LicenseStatusRevoked   LicenseStatus = "revoked"
	LicenseStatusSuspended LicenseStatus = "suspended"
)

// License is the core licensable entity. The key is immutable once issued.
// ActivationCount is denormalized from LicenseActivation rows and is
// maintained inside the same transaction that creates or removes them.
type License struct {
	ID             string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID         string             `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	LicenseKey     string             `gorm:"column:license_key;type:varchar(19);not null;uniqueIndex" json:"license_key"`
	Status         LicenseStatus      `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	IssuedAt       time.Time          `gorm:"column:issued_at;not null" json:"issued_at"`
	ExpiresAt      *time.Time         `gorm:"column:expires_at;default:null" json:"expires_at"`
	ActivatedAt    *time.Time         `gorm:"column:activated_at;default:null" json:"activated_at"`
	RevokedAt      *time.Time         `gorm:"column:revoked_at;default:null" json:"revoked_at"`
	MaxActivations int                `gorm:"column:max_activations;not null;default:5" json:"max_activations"`
	// ActivationCount never exceeds MaxActivations.
	ActivationCount int                `gorm:"column:activation_count;not null;default:0" json:"activation_count"`
	Metadata        datatypes.JSONMap  `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	Notes           string             `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (License) TableName() string { return "license" }

// Expired reports whether the license has an expiry in the past relative to now.
func (l *License) Expired(now time.Time) bool {
	return l != nil && l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// LicenseActivation records one device slot consumed on a license. A device
// re-validating with the same fingerprint is idempotent; deactivation frees
// exactly this row.
type LicenseActivation struct {
	ID                string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	LicenseID         string    `gorm:"column:license_id;type:uuid;not null;uniqueIndex:unique_license_device,priority:1" json:"license_id"`
	DeviceFingerprint string    `gorm:"column:device_fingerprint;type:varchar(255);not null;uniqueIndex:unique_license_device,priority:2" json:"device_fingerprint"`
	IPAddress         string    `gorm:"column:ip_address;type:varchar(64)" json:"ip_address"`
	UserAgent         string    `gorm:"column:user_agent;type:varchar(512)" json:"user_agent"`
	ActivatedAt       time.Time `gorm:"column:activated_at;not null" json:"activated_at"`
	CreatedAt         time.Time `json:"created_at"`
}

func (LicenseActivation) TableName() string { return "license_activation" }
