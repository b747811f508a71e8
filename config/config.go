package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Environment
	Environment string

	// Server
	Port           string
	GinMode        string
	AllowedOrigins []string

	// Database
	DatabaseURL string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// MailerSend
	MailerSendAPIKey    string
	MailerSendFromEmail string
	MailerSendFromName  string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeTimeout       time.Duration

	// Donation limits (minor currency units)
	MinDonationAmount int64
	MaxDonationAmount int64

	FrontendURL string
}

func Load() (*Config, error) {
	// Build DATABASE_URL from components
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "donorconnect")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbName := getEnv("DB_NAME", "donorconnect")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode,
	)

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),

		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		DatabaseURL: databaseURL,

		JWTSecret:        getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		MailerSendAPIKey:    getEnv("MAILERSEND_API_KEY", ""),
		MailerSendFromEmail: getEnv("MAILERSEND_FROM_EMAIL", "receipts@donorconnect.org"),
		MailerSendFromName:  getEnv("MAILERSEND_FROM_NAME", "DonorConnect"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeTimeout:       parseDuration(getEnv("STRIPE_TIMEOUT", "30s"), 30*time.Second),

		MinDonationAmount: parseInt64(getEnv("MIN_DONATION_AMOUNT", "100"), 100),
		MaxDonationAmount: parseInt64(getEnv("MAX_DONATION_AMOUNT", "100000000"), 100000000),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
	}

	// Validate required fields
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MinDonationAmount <= 0 {
		return nil, fmt.Errorf("MIN_DONATION_AMOUNT must be positive")
	}
	if cfg.MaxDonationAmount <= cfg.MinDonationAmount {
		return nil, fmt.Errorf("MAX_DONATION_AMOUNT must be greater than MIN_DONATION_AMOUNT")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func parseInt64(value string, defaultValue int64) int64 {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}
