package models

import "time"

// User is identified by email. A row is created on the first purchase or
// migration referencing a new address and updated in place afterwards.
type User struct {
	ID               string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Email            string    `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	Name             *string   `gorm:"column:name;type:varchar(255)" json:"name"`
	MarketingConsent bool      `gorm:"column:marketing_consent;not null;default:false" json:"marketing_consent"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (User) TableName() string { return "app_user" }
