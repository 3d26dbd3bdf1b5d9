package models

import (
	"time"

	"gorm.io/datatypes"
)

type EmailStatus string

const (
	EmailStatusPending  EmailStatus = "pending"
	EmailStatusSending  EmailStatus = "sending"
	EmailStatusSent     EmailStatus = "sent"
	EmailStatusRetrying EmailStatus = "retrying"
	EmailStatusFailed   EmailStatus = "failed"
)

// EmailQueueItem is a durable outbox row. Only the queue sweep mutates it
// after creation.
type EmailQueueItem struct {
	ID                string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Recipient         string            `gorm:"column:recipient;type:varchar(255);not null" json:"recipient"`
	Subject           string            `gorm:"column:subject;type:varchar(255);not null" json:"subject"`
	BodyText          string            `gorm:"column:body_text;type:text;not null" json:"body_text"`
	BodyHTML          string            `gorm:"column:body_html;type:text" json:"body_html"`
	Status            EmailStatus       `gorm:"column:status;type:varchar(32);not null;index:idx_email_due,priority:1" json:"status"`
	Attempts          int               `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts       int               `gorm:"column:max_attempts;not null;default:5" json:"max_attempts"`
	NextRetryAt       time.Time         `gorm:"column:next_retry_at;not null;index:idx_email_due,priority:2" json:"next_retry_at"`
	LastAttemptAt     *time.Time        `gorm:"column:last_attempt_at;default:null" json:"last_attempt_at"`
	SentAt            *time.Time        `gorm:"column:sent_at;default:null" json:"sent_at"`
	LastError         *string           `gorm:"column:last_error;type:text" json:"last_error"`
	ProviderMessageID *string           `gorm:"column:provider_message_id;type:varchar(255)" json:"provider_message_id"`
	Metadata          datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (EmailQueueItem) TableName() string { return "email_queue_item" }
