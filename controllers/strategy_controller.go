package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock_alert_backend/middleware"
	"stock_alert_backend/models"
)

// StrategyController handles the divergence strategy attached to a sector
type StrategyController struct {
	db *gorm.DB
}

// NewStrategyController creates a new strategy controller
func NewStrategyController(db *gorm.DB) *StrategyController {
	return &StrategyController{db: db}
}

type strategyRequest struct {
	PercentMajority  *float64 `json:"percent_majority"`
	TrendThreshold   *float64 `json:"trend_threshold"`
	LaggardThreshold *float64 `json:"laggard_threshold"`
	IsActive         *bool    `json:"is_active"`
}

// validate rejects parameter combinations the detector cannot work with.
// Majority below 50 would let two opposing trends win at once.
func (r *strategyRequest) validate() string {
	if r.PercentMajority != nil && (*r.PercentMajority < 50 || *r.PercentMajority > 100) {
		return "percent_majority must be between 50 and 100"
	}
	if r.TrendThreshold != nil && *r.TrendThreshold <= 0 {
		return "trend_threshold must be positive"
	}
	if r.LaggardThreshold != nil && *r.LaggardThreshold >= 0 {
		return "laggard_threshold must be negative"
	}
	return ""
}

// UpsertStrategy creates or replaces the strategy for a sector
// PUT /api/v1/sectors/:id/strategy
func (sc *StrategyController) UpsertStrategy(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	sector, ok := sc.findUserSector(c, userID)
	if !ok {
		return
	}

	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	var strategy models.SectorStrategy
	err := sc.db.Where("sector_id = ?", sector.ID).First(&strategy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		strategy = models.SectorStrategy{
			UserID:           sector.UserID,
			SectorID:         sector.ID,
			PercentMajority:  70,
			TrendThreshold:   1.5,
			LaggardThreshold: -1,
			IsActive:         true,
		}
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch strategy"})
		return
	}

	if req.PercentMajority != nil {
		strategy.PercentMajority = *req.PercentMajority
	}
	if req.TrendThreshold != nil {
		strategy.TrendThreshold = *req.TrendThreshold
	}
	if req.LaggardThreshold != nil {
		strategy.LaggardThreshold = *req.LaggardThreshold
	}
	if req.IsActive != nil {
		strategy.IsActive = *req.IsActive
	}

	if err := sc.db.Save(&strategy).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save strategy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": strategy})
}

// GetStrategy returns the strategy for a sector
// GET /api/v1/sectors/:id/strategy
func (sc *StrategyController) GetStrategy(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	sector, ok := sc.findUserSector(c, userID)
	if !ok {
		return
	}

	var strategy models.SectorStrategy
	err := sc.db.Where("sector_id = ?", sector.ID).First(&strategy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No strategy configured for this sector"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch strategy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": strategy})
}

// DeleteStrategy removes the strategy from a sector
// DELETE /api/v1/sectors/:id/strategy
func (sc *StrategyController) DeleteStrategy(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	sector, ok := sc.findUserSector(c, userID)
	if !ok {
		return
	}

	result := sc.db.Where("sector_id = ?", sector.ID).Delete(&models.SectorStrategy{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete strategy"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No strategy configured for this sector"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (sc *StrategyController) findUserSector(c *gin.Context, userID uint) (*models.Sector, bool) {
	var sector models.Sector
	err := sc.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&sector).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sector not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sector"})
		return nil, false
	}
	return &sector, true
}
