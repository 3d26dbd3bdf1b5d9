package models

import (
	"time"

	"github.com/keymasterhq/keymaster/pkg/types"
	"gorm.io/datatypes"
)

// Purchase records one successfully processed provider transaction. The
// unique (provider_id, transaction_id) pair is the idempotency anchor for the
// in-transaction double-check inside the purchase processor.
type Purchase struct {
	ID            string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ProviderID    types.WebhookSource `gorm:"column:provider_id;type:varchar(32);not null;uniqueIndex:unique_provider_transaction,priority:1" json:"provider_id"`
	TransactionID string              `gorm:"column:transaction_id;type:varchar(128);not null;uniqueIndex:unique_provider_transaction,priority:2" json:"transaction_id"`
	CustomerID    string              `gorm:"column:customer_id;type:varchar(128);not null" json:"customer_id"`
	Email         string              `gorm:"column:email;type:varchar(255);not null;index" json:"email"`
	LicenseID     string              `gorm:"column:license_id;type:uuid;not null" json:"license_id"`
	UserID        string              `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	EmailSent     bool                `gorm:"column:email_sent;not null;default:false" json:"email_sent"`
	RawPayload    datatypes.JSON      `gorm:"column:raw_payload;type:jsonb" json:"raw_payload"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (Purchase) TableName() string { return "purchase" }

// Migration records a one-shot RevenueCat account conversion, keyed uniquely
// by the external app user id. Repeat calls become read-only lookups.
type Migration struct {
	ID               string                 `gorm:"column:id;type:uuid;primary_key" json:"id"`
	RCAppUserID      string                 `gorm:"column:rc_app_user_id;type:varchar(128);not null;uniqueIndex" json:"rc_app_user_id"`
	Email            string                 `gorm:"column:email;type:varchar(255);not null" json:"email"`
	SubscriptionType types.SubscriptionType `gorm:"column:subscription_type;type:varchar(32);not null" json:"subscription_type"`
	LicenseID        string                 `gorm:"column:license_id;type:uuid;not null" json:"license_id"`
	UserID           string                 `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	CreatedAt        time.Time              `json:"created_at"`
}

func (Migration) TableName() string { return "migration" }
