package models

import (
	"time"

	"github.com/keymasterhq/keymaster/pkg/types"
	"gorm.io/datatypes"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending    WebhookEventStatus = "pending"
	WebhookEventStatusProcessing WebhookEventStatus = "processing"
	WebhookEventStatusCompleted  WebhookEventStatus = "completed"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
	WebhookEventStatusRetrying   WebhookEventStatus = "retrying"
)

// WebhookEvent is the idempotency and audit record for inbound provider
// events, keyed uniquely by (source, event_id). Result stores the outcome of
// a completed run so duplicate deliveries can replay it without side effects.
type WebhookEvent struct {
	ID          string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Source      types.WebhookSource `gorm:"column:source;type:varchar(32);not null;uniqueIndex:unique_source_event,priority:1" json:"source"`
	EventID     string              `gorm:"column:event_id;type:varchar(128);not null;uniqueIndex:unique_source_event,priority:2" json:"event_id"`
	EventType   string              `gorm:"column:event_type;type:varchar(128);not null;index" json:"event_type"`
	Payload     datatypes.JSON      `gorm:"column:payload;type:jsonb" json:"payload"`
	Result      *datatypes.JSON     `gorm:"column:result;type:jsonb" json:"result"`
	Status      WebhookEventStatus  `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Attempts    int                 `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError   *string             `gorm:"column:last_error;type:text" json:"last_error"`
	CompletedAt *time.Time          `gorm:"column:completed_at;default:null" json:"completed_at"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (WebhookEvent) TableName() string { return "webhook_event" }
