package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"stock_alert_backend/config"
	"stock_alert_backend/models"
	"stock_alert_backend/repository"
	"stock_alert_backend/routes"
	"stock_alert_backend/scheduler"
	"stock_alert_backend/services"
)

func main() {
	log.Println("==============================================")
	log.Println("  Stock Alert API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database connection
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	// Run database migrations
	log.Println("Running database migrations...")
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Database migrations completed successfully")

	// Quote pipeline: provider -> rate limiter -> Redis -> in-process cache
	provider := services.NewFinnhubClient(cfg.FinnhubAPIKey)
	limiter := services.NewCallLimiter(cfg.ProviderCallsPerMinute, time.Minute)
	priceStore := services.NewLivePriceStore(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	quotes := services.NewQuoteCache(provider, limiter, priceStore, cfg.QuoteCacheTTL)

	// Evaluation and delivery
	repo := repository.New(db)
	dispatcher := services.NewDispatcher(repo)
	engine := services.NewAlertEngine(repo, quotes, dispatcher)
	detector := services.NewSectorDetector(repo, quotes, dispatcher)
	warmup := services.NewPrevCloseWarmup(repo, provider, limiter, priceStore)

	// Realtime fan-out; the hub also receives created notifications
	hub := services.NewHub()
	dispatcher.Subscribe(hub)
	poller := services.NewMarketPoller(hub, quotes, cfg.QuoteCacheTTL)

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	routes.SetupRoutes(router, db, quotes, hub)

	// Start background jobs
	jobScheduler := scheduler.NewScheduler(cfg, engine, detector, warmup)
	jobScheduler.Start()
	poller.Start()

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(server, jobScheduler, poller, hub, priceStore)
}

// gracefulShutdown waits for a termination signal, then stops background
// jobs before draining HTTP connections
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler, poller *services.MarketPoller, hub *services.Hub, priceStore *services.LivePriceStore) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	jobScheduler.Stop()
	poller.Stop()
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	priceStore.Close()
	log.Println("Server exited")
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
