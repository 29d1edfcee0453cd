package models

import (
	"time"
)

// Sector is a user-defined basket of symbols tracked together
type Sector struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index:idx_user_sector_name,unique" json:"user_id"`
	Name   string `gorm:"index:idx_user_sector_name,unique;size:100;not null" json:"name"`
	Color  string `gorm:"size:7;default:'#6366f1'" json:"color"`
	Icon   string `gorm:"size:20;default:'folder'" json:"icon"`

	Stocks   []SectorStock   `gorm:"foreignKey:SectorID;constraint:OnDelete:CASCADE" json:"stocks,omitempty"`
	Strategy *SectorStrategy `gorm:"foreignKey:SectorID;constraint:OnDelete:CASCADE" json:"strategy,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SectorStock is a single symbol belonging to a sector
type SectorStock struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SectorID  uint   `gorm:"index:idx_sector_symbol,unique" json:"sector_id"`
	Symbol    string `gorm:"index:idx_sector_symbol,unique;size:5;not null" json:"symbol"`
	StockName string `gorm:"size:256" json:"stock_name"`

	CreatedAt time.Time `json:"created_at"`
}

// SectorStrategy configures divergence detection for one sector: when a
// majority of the basket trends past TrendThreshold in one direction,
// stocks moving the other way past LaggardThreshold are flagged.
// At most one strategy exists per sector.
type SectorStrategy struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	UserID   uint `gorm:"index" json:"user_id"`
	SectorID uint `gorm:"uniqueIndex" json:"sector_id"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// Fraction of the basket that must be trending, in [50,100]
	PercentMajority float64 `gorm:"not null;default:70" json:"percent_majority"`
	// Minimum percent move to count a stock as trending (> 0)
	TrendThreshold float64 `gorm:"not null;default:1.5" json:"trend_threshold"`
	// Maximum percent move for a laggard, against the trend (< 0)
	LaggardThreshold float64 `gorm:"not null;default:-1" json:"laggard_threshold"`

	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
