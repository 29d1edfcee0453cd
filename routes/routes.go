package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stock_alert_backend/controllers"
	"stock_alert_backend/middleware"
	"stock_alert_backend/services"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, quotes *services.QuoteCache, hub *services.Hub) {
	// Initialize controllers
	authController := controllers.NewAuthController(db)
	alertController := controllers.NewAlertController(db)
	sectorController := controllers.NewSectorController(db)
	strategyController := controllers.NewStrategyController(db)
	notificationController := controllers.NewNotificationController(db)
	stockController := controllers.NewStockController(quotes)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authController.Register)
			auth.POST("/login", authController.Login)
			auth.GET("/me", middleware.JWTAuthMiddleware(), authController.Me)
		}

		authorized := api.Group("")
		authorized.Use(middleware.JWTAuthMiddleware())
		{
			// Alert routes
			alerts := authorized.Group("/alerts")
			{
				alerts.GET("", alertController.GetAlerts)
				alerts.POST("", alertController.CreateAlert)
				alerts.PUT("/:id", alertController.UpdateAlert)
				alerts.DELETE("/:id", alertController.DeleteAlert)
			}

			// Sector routes, strategy nested under its sector
			sectors := authorized.Group("/sectors")
			{
				sectors.GET("", sectorController.GetSectors)
				sectors.POST("", sectorController.CreateSector)
				sectors.PUT("/:id", sectorController.UpdateSector)
				sectors.DELETE("/:id", sectorController.DeleteSector)
				sectors.POST("/:id/stocks", sectorController.AddSectorStock)
				sectors.DELETE("/:id/stocks/:symbol", sectorController.RemoveSectorStock)
				sectors.GET("/:id/strategy", strategyController.GetStrategy)
				sectors.PUT("/:id/strategy", strategyController.UpsertStrategy)
				sectors.DELETE("/:id/strategy", strategyController.DeleteStrategy)
			}

			// Notification routes
			notifications := authorized.Group("/notifications")
			{
				notifications.GET("", notificationController.GetNotifications)
				notifications.GET("/unread-count", notificationController.GetUnreadCount)
				notifications.PUT("/read-all", notificationController.MarkAllRead)
				notifications.PUT("/:id/read", notificationController.MarkRead)
			}

			// Stock routes
			stocks := authorized.Group("/stocks")
			{
				stocks.GET("/:symbol/quote", stockController.GetQuote)
			}
		}
	}

	// Realtime quote stream. Notifications are private per user, so the
	// socket authenticates like the rest of the API.
	router.GET("/ws/stocks", middleware.JWTAuthMiddleware(), func(c *gin.Context) {
		userID, ok := middleware.CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		hub.ServeWS(c, userID)
	})
}
