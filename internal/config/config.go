package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	AdminJWTSecret     string
	CORSAllowedOrigins []string

	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	CallbackLockTTL time.Duration

	// VNPay gateway
	VNPayTmnCode    string
	VNPayHashSecret string
	VNPayPayURL     string
	VNPayReturnURL  string

	// Booking defaults
	DefaultSessionTime string
	LoyaltyTiers       string

	// AWS (notification fan-out)
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	NotificationQueueURL string

	// Admin email delivery
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	AdminNotifyEmails []string

	// Abuse limits
	CheckoutMaxAttempts int
	CheckoutWindow      time.Duration
	PublicRateLimitRPS  float64
	PublicRateBurst     int

	MetricsPort        string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		CallbackLockTTL: getEnvAsDuration("CALLBACK_LOCK_TTL", 30*time.Second),

		VNPayTmnCode:    getEnv("VNPAY_TMN_CODE", ""),
		VNPayHashSecret: getEnv("VNPAY_HASH_SECRET", ""),
		VNPayPayURL:     getEnv("VNPAY_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
		VNPayReturnURL:  getEnv("VNPAY_RETURN_URL", ""),

		DefaultSessionTime: getEnv("DEFAULT_SESSION_TIME", "09:00"),
		LoyaltyTiers:       getEnv("LOYALTY_TIERS", ""),

		AWSRegion:            getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		NotificationQueueURL: getEnv("NOTIFICATION_QUEUE_URL", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Spa Booking"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		AdminNotifyEmails: getEnvAsList("ADMIN_NOTIFY_EMAILS"),

		CheckoutMaxAttempts: getEnvAsInt("CHECKOUT_MAX_ATTEMPTS", 5),
		CheckoutWindow:      getEnvAsDuration("CHECKOUT_WINDOW", time.Hour),
		PublicRateLimitRPS:  getEnvAsFloat("PUBLIC_RATE_LIMIT_RPS", 10),
		PublicRateBurst:     getEnvAsInt("PUBLIC_RATE_LIMIT_BURST", 20),

		MetricsPort:        getEnv("METRICS_PORT", "9090"),

		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
