package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCheckCondition(t *testing.T) {
	tests := []struct {
		name          string
		alertType     AlertType
		threshold     string
		price         float64
		percentChange float64
		want          bool
	}{
		{"price above met", AlertPriceAbove, "150", 151, 0, true},
		{"price above met at boundary", AlertPriceAbove, "150", 150, 0, true},
		{"price above not met", AlertPriceAbove, "150", 149.99, 0, false},
		{"price below met", AlertPriceBelow, "120", 119.5, 0, true},
		{"price below met at boundary", AlertPriceBelow, "120", 120, 0, true},
		{"price below not met", AlertPriceBelow, "120", 120.01, 0, false},
		{"percent change up met", AlertPercentChange, "5", 100, 5.2, true},
		{"percent change down met", AlertPercentChange, "5", 100, -6.1, true},
		{"percent change at boundary", AlertPercentChange, "5", 100, 5, true},
		{"percent change not met", AlertPercentChange, "5", 100, 4.9, false},
		{"percent change not met negative", AlertPercentChange, "5", 100, -4.9, false},
		{"volume spike needs a baseline", AlertVolumeSpike, "3", 100, 50, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Alert{
				AlertType:      tt.alertType,
				ThresholdValue: decimal.RequireFromString(tt.threshold),
			}
			if got := a.CheckCondition(tt.price, tt.percentChange); got != tt.want {
				t.Errorf("CheckCondition(%v, %v) = %v, want %v", tt.price, tt.percentChange, got, tt.want)
			}
		})
	}
}

func TestAlertTypeValid(t *testing.T) {
	for _, typ := range []AlertType{AlertPriceAbove, AlertPriceBelow, AlertPercentChange, AlertVolumeSpike} {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if AlertType("price_equal").Valid() {
		t.Error("unknown type should be invalid")
	}
}
