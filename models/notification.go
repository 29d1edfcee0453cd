package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationChannel represents the channel a notification is delivered through
type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// Notification is an immutable record of a triggered condition. Only
// IsRead is mutated after creation, and only by the API layer. The
// alert fields are a snapshot so the record survives alert deletion.
type Notification struct {
	ID      uint  `gorm:"primaryKey" json:"id"`
	UserID  uint  `gorm:"index" json:"user_id"`
	AlertID *uint `json:"alert_id"` // nil for sector notifications

	Channel NotificationChannel `gorm:"default:'in_app'" json:"channel"`
	Title   string              `gorm:"not null" json:"title"`
	Message string              `gorm:"type:text" json:"message"`

	Symbol         string              `gorm:"not null" json:"symbol"`
	TriggerPrice   decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"trigger_price"`
	AlertType      string              `json:"alert_type"`
	ThresholdValue decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"threshold_value"`

	// DedupeKey makes dispatch idempotent: a key already persisted
	// within its window is never persisted again.
	DedupeKey string `gorm:"index" json:"-"`

	IsRead    bool      `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
