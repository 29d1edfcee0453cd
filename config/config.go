package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	Environment string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	FinnhubAPIKey string

	// Background evaluation settings
	AlertCheckInterval     time.Duration
	SectorCheckInterval    time.Duration
	QuoteCacheTTL          time.Duration
	ProviderCallsPerMinute int
	PrevCloseWarmupTime    string // "HH:MM"

	MaxAlertsPerUser int
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "stockalert_db"),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		FinnhubAPIKey: getEnv("FINNHUB_API_KEY", ""),

		AlertCheckInterval:     getEnvDuration("ALERT_CHECK_INTERVAL", 60*time.Second),
		SectorCheckInterval:    getEnvDuration("SECTOR_CHECK_INTERVAL", 30*time.Second),
		QuoteCacheTTL:          getEnvDuration("QUOTE_CACHE_TTL", 5*time.Second),
		ProviderCallsPerMinute: getEnvInt("PROVIDER_CALLS_PER_MINUTE", 60),
		PrevCloseWarmupTime:    getEnv("PREV_CLOSE_WARMUP_TIME", "06:00"),

		MaxAlertsPerUser: getEnvInt("MAX_ALERTS_PER_USER", 50),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	AppConfig = config
	return config, nil
}

// Validate checks that the scheduling configuration is usable. These
// errors are fatal at startup; everything else degrades at runtime.
func (c *Config) Validate() error {
	if c.AlertCheckInterval <= 0 {
		return fmt.Errorf("ALERT_CHECK_INTERVAL must be positive, got %v", c.AlertCheckInterval)
	}
	if c.SectorCheckInterval <= 0 {
		return fmt.Errorf("SECTOR_CHECK_INTERVAL must be positive, got %v", c.SectorCheckInterval)
	}
	if c.QuoteCacheTTL <= 0 {
		return fmt.Errorf("QUOTE_CACHE_TTL must be positive, got %v", c.QuoteCacheTTL)
	}
	if c.ProviderCallsPerMinute <= 0 {
		return fmt.Errorf("PROVIDER_CALLS_PER_MINUTE must be positive, got %d", c.ProviderCallsPerMinute)
	}
	if _, err := time.Parse("15:04", c.PrevCloseWarmupTime); err != nil {
		return fmt.Errorf("PREV_CLOSE_WARMUP_TIME must be HH:MM, got %q", c.PrevCloseWarmupTime)
	}
	return nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration gets a duration environment variable (e.g. "60s", "5m")
// or returns a default value. Bare numbers are treated as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}
