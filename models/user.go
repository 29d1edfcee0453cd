package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered user of the alerting dashboard
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	FullName     string     `json:"full_name"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Alert{},
		&Notification{},
		&Sector{},
		&SectorStock{},
		&SectorStrategy{},
	)
}
