package controllers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stock_alert_backend/config"
	"stock_alert_backend/middleware"
	"stock_alert_backend/models"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,5}$`)

var maxThresholdValue = decimal.NewFromInt(999999)

// AlertController handles alert CRUD. Status changes made here are the
// user-driven transitions (disable/enable); trigger state belongs to
// the alert engine.
type AlertController struct {
	db *gorm.DB
}

// NewAlertController creates a new alert controller
func NewAlertController(db *gorm.DB) *AlertController {
	return &AlertController{db: db}
}

type alertCreateRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	StockName      string          `json:"stock_name"`
	AlertType      string          `json:"alert_type" binding:"required"`
	ThresholdValue decimal.Decimal `json:"threshold_value" binding:"required"`
	IsRepeating    bool            `json:"is_repeating"`
	Message        string          `json:"message"`
}

type alertUpdateRequest struct {
	ThresholdValue *decimal.Decimal `json:"threshold_value"`
	IsRepeating    *bool            `json:"is_repeating"`
	Message        *string          `json:"message"`
	Status         *string          `json:"status"`
}

// CreateAlert creates a new alert
// POST /api/v1/alerts
func (ac *AlertController) CreateAlert(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var req alertCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if !symbolPattern.MatchString(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol must be 1-5 uppercase letters or digits"})
		return
	}

	alertType := models.AlertType(req.AlertType)
	if !alertType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown alert type"})
		return
	}

	if req.ThresholdValue.LessThanOrEqual(decimal.Zero) || req.ThresholdValue.GreaterThan(maxThresholdValue) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Threshold must be positive and at most 999999"})
		return
	}

	var activeCount int64
	ac.db.Model(&models.Alert{}).
		Where("user_id = ? AND status = ?", userID, models.AlertStatusActive).
		Count(&activeCount)
	if activeCount >= int64(config.AppConfig.MaxAlertsPerUser) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Maximum number of active alerts reached"})
		return
	}

	alert := models.Alert{
		UserID:         userID,
		Symbol:         symbol,
		StockName:      req.StockName,
		AlertType:      alertType,
		ThresholdValue: req.ThresholdValue,
		IsRepeating:    req.IsRepeating,
		Message:        req.Message,
		Status:         models.AlertStatusActive,
	}
	if err := ac.db.Create(&alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": alert})
}

// GetAlerts returns the user's alerts, optionally filtered
// GET /api/v1/alerts?status=active&symbol=AAPL
func (ac *AlertController) GetAlerts(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	query := ac.db.Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if symbol := c.Query("symbol"); symbol != "" {
		query = query.Where("symbol = ?", strings.ToUpper(symbol))
	}

	var alerts []models.Alert
	if err := query.Order("created_at DESC").Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

// UpdateAlert updates threshold, repeat policy, message or status
// PUT /api/v1/alerts/:id
func (ac *AlertController) UpdateAlert(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	alert, ok := ac.findUserAlert(c, userID)
	if !ok {
		return
	}

	var req alertUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ThresholdValue != nil {
		if req.ThresholdValue.LessThanOrEqual(decimal.Zero) || req.ThresholdValue.GreaterThan(maxThresholdValue) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Threshold must be positive and at most 999999"})
			return
		}
		alert.ThresholdValue = *req.ThresholdValue
	}
	if req.IsRepeating != nil {
		alert.IsRepeating = *req.IsRepeating
	}
	if req.Message != nil {
		alert.Message = *req.Message
	}
	if req.Status != nil {
		// Users may only park an alert or put it back in play
		switch models.AlertStatus(*req.Status) {
		case models.AlertStatusActive, models.AlertStatusDisabled:
			alert.Status = models.AlertStatus(*req.Status)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status can only be set to active or disabled"})
			return
		}
	}

	if err := ac.db.Save(alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// DeleteAlert deletes an alert
// DELETE /api/v1/alerts/:id
func (ac *AlertController) DeleteAlert(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	alert, ok := ac.findUserAlert(c, userID)
	if !ok {
		return
	}

	if err := ac.db.Delete(alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert"})
		return
	}
	c.Status(http.StatusNoContent)
}

// findUserAlert loads the alert from the :id param, enforcing ownership
func (ac *AlertController) findUserAlert(c *gin.Context, userID uint) (*models.Alert, bool) {
	var alert models.Alert
	err := ac.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alert"})
		return nil, false
	}
	return &alert, true
}
