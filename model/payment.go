package model

import (
	"time"

	"gorm.io/datatypes"
)

// Subscription states
const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)

// Subscription is a paid plan attached to an email address
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	Email                string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Plan                 string     `gorm:"type:varchar(20);not null" json:"plan"`                    // basic, plus, pro
	Status               string     `gorm:"type:varchar(20);not null;default:'active'" json:"status"` // active, cancelled
	StripeSessionID      string     `gorm:"type:varchar(255)" json:"-"`
	StripeCustomerID     string     `gorm:"type:varchar(255);index" json:"stripe_customer_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(255);index" json:"-"`
	SearchesUsed         int        `gorm:"default:0" json:"searches_used"`
	LastReset            *time.Time `json:"last_reset,omitempty"`
	LastUsed             *time.Time `json:"last_used,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
}

// TableName specifies the table name for Subscription
func (Subscription) TableName() string {
	return "subscriptions"
}

// IsActive reports whether the subscription currently grants searches
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionActive
}

// WebhookEvent records processed Stripe events so redeliveries are ignored
type WebhookEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EventID     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"event_id"`
	Type        string         `gorm:"type:varchar(100);index" json:"type"`
	Payload     datatypes.JSON `json:"payload"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// TableName specifies the table name for WebhookEvent
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
