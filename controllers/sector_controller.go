package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock_alert_backend/middleware"
	"stock_alert_backend/models"
)

// SectorController handles sector and sector-stock CRUD
type SectorController struct {
	db *gorm.DB
}

// NewSectorController creates a new sector controller
func NewSectorController(db *gorm.DB) *SectorController {
	return &SectorController{db: db}
}

type sectorCreateRequest struct {
	Name  string `json:"name" binding:"required,max=100"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

type sectorStockRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	StockName string `json:"stock_name"`
}

// CreateSector creates a new sector
// POST /api/v1/sectors
func (sc *SectorController) CreateSector(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var req sectorCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.Sector
	if err := sc.db.Where("user_id = ? AND name = ?", userID, req.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A sector with this name already exists"})
		return
	}

	sector := models.Sector{
		UserID: userID,
		Name:   req.Name,
		Color:  req.Color,
		Icon:   req.Icon,
	}
	if err := sc.db.Create(&sector).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create sector"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sector})
}

// GetSectors returns the user's sectors with stocks and strategy
// GET /api/v1/sectors
func (sc *SectorController) GetSectors(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var sectors []models.Sector
	err := sc.db.Where("user_id = ?", userID).
		Preload("Stocks").
		Preload("Strategy").
		Order("created_at ASC").
		Find(&sectors).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sectors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sectors})
}

// UpdateSector renames or recolors a sector
// PUT /api/v1/sectors/:id
func (sc *SectorController) UpdateSector(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	sector, ok := sc.findUserSector(c, userID)
	if !ok {
		return
	}

	var req sectorCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sector.Name = req.Name
	if req.Color != "" {
		sector.Color = req.Color
	}
	if req.Icon != "" {
		sector.Icon = req.Icon
	}
	if err := sc.db.Save(sector).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update sector"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sector})
}

// DeleteSector deletes a sector together with its stocks and strategy
// DELETE /api/v1/sectors/:id
func (sc *SectorController) DeleteSector(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	sector, ok := sc.findUserSector(c, userID)
	if !ok {
		return
	}

	if err := sc.db.Select("Stocks", "Strategy").Delete(sector).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete sector"})
		return
	}
	c.Status(http.StatusNoContent)
}

// AddSectorStock adds a symbol to a sector
// POST /api/v1/sectors/:id/stocks
func (sc *SectorController) AddSectorStock(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	sector, ok := sc.findUserSector(c, userID)
	if !ok {
		return
	}

	var req sectorStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if !symbolPattern.MatchString(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol must be 1-5 uppercase letters or digits"})
		return
	}

	var existing models.SectorStock
	if err := sc.db.Where("sector_id = ? AND symbol = ?", sector.ID, symbol).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Symbol already in sector"})
		return
	}

	stock := models.SectorStock{
		SectorID:  sector.ID,
		Symbol:    symbol,
		StockName: req.StockName,
	}
	if err := sc.db.Create(&stock).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add stock"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": stock})
}

// RemoveSectorStock removes a symbol from a sector
// DELETE /api/v1/sectors/:id/stocks/:symbol
func (sc *SectorController) RemoveSectorStock(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	sector, ok := sc.findUserSector(c, userID)
	if !ok {
		return
	}

	symbol := strings.ToUpper(c.Param("symbol"))
	result := sc.db.Where("sector_id = ? AND symbol = ?", sector.ID, symbol).Delete(&models.SectorStock{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove stock"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Symbol not in sector"})
		return
	}
	c.Status(http.StatusNoContent)
}

// findUserSector loads the sector from the :id param, enforcing ownership
func (sc *SectorController) findUserSector(c *gin.Context, userID uint) (*models.Sector, bool) {
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
