// Package config provides configuration management for the server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration values for the server.
type Config struct {
	// HTTP
	Port           string
	AllowedOrigins []string

	// Storage
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Lending
	MinInvestment    decimal.Decimal
	MarketplaceLimit int
	FundingRetries   int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	_ = godotenv.Load()

	minInvestment, err := decimal.NewFromString(getEnv("MIN_INVESTMENT", "100"))
	if err != nil {
		return nil, fmt.Errorf("config: MIN_INVESTMENT: %w", err)
	}
	if !minInvestment.IsPositive() {
		return nil, fmt.Errorf("config: MIN_INVESTMENT must be positive, got %s", minInvestment)
	}

	cacheTTL, err := time.ParseDuration(getEnv("CACHE_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("config: CACHE_TTL: %w", err)
	}

	cfg := &Config{
		// HTTP
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		// Storage
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		CacheTTL:    cacheTTL,

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Lending
		MinInvestment:    minInvestment,
		MarketplaceLimit: getEnvInt("MARKETPLACE_LIMIT", 20),
		FundingRetries:   getEnvInt("FUNDING_RETRIES", 3),
	}

	if cfg.MarketplaceLimit <= 0 {
		return nil, fmt.Errorf("config: MARKETPLACE_LIMIT must be positive, got %d", cfg.MarketplaceLimit)
	}
	if cfg.FundingRetries < 1 {
		cfg.FundingRetries = 1
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as int or returns a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
