package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port                   string
	DatabaseURL            string // Primary database for messages, summaries, analytics
	CommerceDatabaseURL    string // Commerce database - read-only, for customer lookups
	CommerceTablePrefix    string // Table prefix of the commerce installation
	Version                string
	LogLevel               string
	AdminUsername          string
	AdminPassword          string
	MessageRetentionDays   int    // How long raw messages are kept
	AnalyticsRetentionDays int    // How long analytics buckets are kept
	RetentionSchedule      string // Cron expression for the retention run
	EnableRetention        bool   // Whether the scheduled retention run is active
	MaxQueryLength         int    // Normalized query key length limit
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:                   getEnv("PORT", "8080"),
		DatabaseURL:            getEnv("DATABASE_URL", "chatlog.db"),
		CommerceDatabaseURL:    os.Getenv("COMMERCE_DATABASE_URL"),
		CommerceTablePrefix:    getEnv("COMMERCE_TABLE_PREFIX", "wp"),
		Version:                getEnv("VERSION", "1.0.0"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		AdminUsername:          getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:          os.Getenv("ADMIN_PASSWORD"),
		MessageRetentionDays:   getEnvInt("MESSAGE_RETENTION_DAYS", 180),
		AnalyticsRetentionDays: getEnvInt("ANALYTICS_RETENTION_DAYS", 365),
		RetentionSchedule:      getEnv("RETENTION_SCHEDULE", "30 3 * * *"),
		EnableRetention:        getEnvBool("ENABLE_RETENTION_SCHEDULER", true),
		MaxQueryLength:         getEnvInt("MAX_QUERY_LENGTH", 256),
	}

	return config
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	// Configure zerolog to output JSON without newlines
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Create logger with JSON output to stdout
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "chatlog").
		Str("version", c.Version).
		Logger()

	// Set log level based on configuration
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
