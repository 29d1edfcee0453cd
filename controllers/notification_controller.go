package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock_alert_backend/middleware"
	"stock_alert_backend/models"
)

const (
	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 100
)

// NotificationController serves the in-app notification feed
type NotificationController struct {
	db *gorm.DB
}

// NewNotificationController creates a new notification controller
func NewNotificationController(db *gorm.DB) *NotificationController {
	return &NotificationController{db: db}
}

// GetNotifications returns the user's notifications, newest first
// GET /api/v1/notifications?unread_only=true&page=1&page_size=20
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultNotificationPageSize)))
	if pageSize < 1 || pageSize > maxNotificationPageSize {
		pageSize = defaultNotificationPageSize
	}

	query := nc.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if c.Query("unread_only") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	query.Count(&total)

	var notifications []models.Notification
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&notifications).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      notifications,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetUnreadCount returns the number of unread notifications
// GET /api/v1/notifications/unread-count
func (nc *NotificationController) GetUnreadCount(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var count int64
	err := nc.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead marks one notification as read
// PUT /api/v1/notifications/:id/read
func (nc *NotificationController) MarkRead(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	result := nc.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", c.Param("id"), userID).
		Update("is_read", true)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// MarkAllRead marks every unread notification as read
// PUT /api/v1/notifications/read-all
func (nc *NotificationController) MarkAllRead(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	result := nc.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": result.RowsAffected})
}
