package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"stock_alert_backend/models"
)

// GormRepository backs the core's storage interfaces (AlertStore,
// SectorStore, NotificationStore, SymbolSource) with Postgres.
type GormRepository struct {
	db *gorm.DB
}

// New creates a repository on top of a gorm connection
func New(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// LoadActiveAlerts returns every alert the engine must evaluate: active
// alerts plus triggered repeating ones waiting to rearm.
func (r *GormRepository) LoadActiveAlerts() ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.
		Where("status = ? OR (status = ? AND is_repeating = ?)",
			models.AlertStatusActive, models.AlertStatusTriggered, true).
		Find(&alerts).Error
	return alerts, err
}

// SaveAlert persists alert state changes
func (r *GormRepository) SaveAlert(a *models.Alert) error {
	return r.db.Save(a).Error
}

// LoadSectorsWithActiveStrategy returns sectors that have an active
// strategy, with stocks and strategy preloaded.
func (r *GormRepository) LoadSectorsWithActiveStrategy() ([]models.Sector, error) {
	var sectors []models.Sector
	err := r.db.
		Joins("JOIN sector_strategies ON sector_strategies.sector_id = sectors.id AND sector_strategies.is_active = ?", true).
		Preload("Stocks").
		Preload("Strategy").
		Find(&sectors).Error
	return sectors, err
}

// SaveSectorStrategy persists strategy state changes
func (r *GormRepository) SaveSectorStrategy(s *models.SectorStrategy) error {
	return r.db.Save(s).Error
}

// CreateNotification persists a new notification record
func (r *GormRepository) CreateNotification(n *models.Notification) error {
	return r.db.Create(n).Error
}

// FindRecentNotification returns the most recent notification carrying
// the dedupe key within the window, or nil when none exists.
func (r *GormRepository) FindRecentNotification(dedupeKey string, window time.Duration) (*models.Notification, error) {
	var n models.Notification
	err := r.db.
		Where("dedupe_key = ? AND created_at >= ?", dedupeKey, time.Now().Add(-window)).
		Order("created_at DESC").
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// LoadTrackedSymbols returns the distinct symbols referenced by active
// alerts and sector baskets.
func (r *GormRepository) LoadTrackedSymbols() ([]string, error) {
	var alertSymbols []string
	if err := r.db.Model(&models.Alert{}).
		Where("status = ?", models.AlertStatusActive).
		Distinct("symbol").
		Pluck("symbol", &alertSymbols).Error; err != nil {
		return nil, err
	}

	var sectorSymbols []string
	if err := r.db.Model(&models.SectorStock{}).
		Distinct("symbol").
		Pluck("symbol", &sectorSymbols).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(alertSymbols)+len(sectorSymbols))
	symbols := make([]string, 0, len(alertSymbols)+len(sectorSymbols))
	for _, s := range append(alertSymbols, sectorSymbols...) {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	return symbols, nil
}
