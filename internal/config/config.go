package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"soko-service/internal/pkg/jwt"
)

type AppConfig struct {
	// Server
	HTTPAddr       string
	AllowedOrigins []string

	// PostgreSQL
	DatabaseURL string

	// Redis
	RedisAddr string
	RedisPass string
	RedisDB   int

	// JWT
	JWT jwt.Config

	// Settlement webhook
	WebhookSecret string

	// Lifecycle sweeper
	SweepInterval time.Duration

	// SMTP
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFromName string
	SMTPSecure   bool
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", nil),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr: getEnv("REDIS_ADDR", "redis-soko:6379"),
		RedisPass: getEnv("REDIS_PASS", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		JWT: jwt.Config{
			PrivPath: getEnv("JWT_PRIVATE_KEY_PATH", "/app/secrets/jwt_private.pem"),
			PubPath:  getEnv("JWT_PUBLIC_KEY_PATH", "/app/secrets/jwt_public.pem"),
			Issuer:   getEnv("JWT_ISSUER", "soko-identity"),
			Audience: getEnv("JWT_AUDIENCE", "soko-services"),
			TTL:      720 * time.Hour,
			KID:      getEnv("JWT_KID", "soko-key"),
		},

		WebhookSecret: getEnv("SETTLEMENT_WEBHOOK_SECRET", ""),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Hour),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "465"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPass:     getEnv("SMTP_PASS", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Soko Marketplace"),
		SMTPSecure:   strings.ToLower(getEnv("SMTP_SECURE", "true")) == "true",
	}
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
