package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertType represents the kind of condition an alert watches
type AlertType string

const (
	AlertPriceAbove    AlertType = "price_above"
	AlertPriceBelow    AlertType = "price_below"
	AlertPercentChange AlertType = "percent_change"
	AlertVolumeSpike   AlertType = "volume_spike"
)

// String returns the string representation of AlertType
func (t AlertType) String() string {
	return string(t)
}

// Valid reports whether the alert type is one of the known variants
func (t AlertType) Valid() bool {
	switch t {
	case AlertPriceAbove, AlertPriceBelow, AlertPercentChange, AlertVolumeSpike:
		return true
	}
	return false
}

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusTriggered AlertStatus = "triggered"
	AlertStatusDisabled  AlertStatus = "disabled"
)

// Alert represents a user-defined price condition on a single symbol.
// Status and trigger fields are mutated only by the alert engine; the
// API layer owns create/disable/delete.
type Alert struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"index" json:"user_id"`
	User   User `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Symbol    string `gorm:"index;not null" json:"symbol"`
	StockName string `json:"stock_name"`

	AlertType      AlertType       `gorm:"not null" json:"alert_type"`
	ThresholdValue decimal.Decimal `gorm:"type:decimal(15,4);not null" json:"threshold_value"`
	IsRepeating    bool            `gorm:"default:false" json:"is_repeating"`
	Message        string          `json:"message"`

	Status        AlertStatus         `gorm:"default:'active';index" json:"status"`
	TriggerPrice  decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"trigger_price"`
	TriggeredAt   *time.Time          `json:"triggered_at"`
	LastCheckedAt *time.Time          `json:"last_checked_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckCondition reports whether the alert condition is met by the given
// price snapshot. Volume spike alerts need a trailing baseline and are
// evaluated by the alert engine instead.
func (a *Alert) CheckCondition(currentPrice, percentChange float64) bool {
	price := decimal.NewFromFloat(currentPrice)

	switch a.AlertType {
	case AlertPriceAbove:
		return price.GreaterThanOrEqual(a.ThresholdValue)
	case AlertPriceBelow:
		return price.LessThanOrEqual(a.ThresholdValue)
	case AlertPercentChange:
		change := decimal.NewFromFloat(percentChange)
		return change.Abs().GreaterThanOrEqual(a.ThresholdValue)
	}

	return false
}
