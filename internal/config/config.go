package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Tables    TablesConfig
	Tokens    TokenConfig
	Links     LinksConfig
	Mail      MailConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// RedisConfig holds Redis configuration. An empty URL disables rate limiting.
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// TablesConfig names the tables the repositories operate on. Names are
// resolved once from the deployment stage.
type TablesConfig struct {
	Stage       string
	Subscribers string
	Tokens      string
}

// TokenConfig holds capability token lifetimes and generation limits
type TokenConfig struct {
	VerificationTTL           time.Duration
	AccountCompletionTTL      time.Duration
	RegenVerificationTTL      time.Duration
	RegenAccountCompletionTTL time.Duration
	MaxAttempts               int
}

// LinksConfig holds the public site URL and the page paths tokens are
// appended to.
type LinksConfig struct {
	BaseURL             string
	VerifyEmailPath     string
	CompleteAccountPath string
	PreferencesPath     string
}

// MailConfig holds notification delivery settings
type MailConfig struct {
	Driver      string
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	FromName    string
	SendTimeout time.Duration
}

// RateLimitConfig bounds unauthenticated write endpoints per client IP
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// JobsConfig holds background job settings
type JobsConfig struct {
	TokenCleanupInterval  time.Duration
	TokenCleanupRetention time.Duration
	TokenCleanupBatchSize int
}

const (
	minTokenAttempts = 5
	maxTokenAttempts = 10
)

// Load loads configuration from environment variables
func Load() *Config {
	stage := getEnv("APP_STAGE", "development")

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Env:            getEnv("SERVER_ENV", "development"),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 15*time.Second),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			DBName:       getEnv("DB_NAME", "newsletter"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			AutoMigrate:  getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		Tables: loadTables(stage),
		Tokens: TokenConfig{
			VerificationTTL:           getEnvAsDuration("TOKEN_VERIFICATION_TTL", 24*time.Hour),
			AccountCompletionTTL:      getEnvAsDuration("TOKEN_ACCOUNT_COMPLETION_TTL", 24*time.Hour),
			RegenVerificationTTL:      getEnvAsDuration("TOKEN_REGEN_VERIFICATION_TTL", 24*time.Hour),
			RegenAccountCompletionTTL: getEnvAsDuration("TOKEN_REGEN_ACCOUNT_COMPLETION_TTL", time.Hour),
			MaxAttempts:               ClampAttempts(getEnvAsInt("TOKEN_MAX_ATTEMPTS", maxTokenAttempts)),
		},
		Links: LinksConfig{
			BaseURL:             strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),
			VerifyEmailPath:     getEnv("LINK_VERIFY_EMAIL_PATH", "verify-email"),
			CompleteAccountPath: getEnv("LINK_COMPLETE_ACCOUNT_PATH", "complete-account"),
			PreferencesPath:     getEnv("LINK_PREFERENCES_PATH", "manage-preferences"),
		},
		Mail: MailConfig{
			Driver:      getEnv("MAIL_DRIVER", "log"),
			Host:        getEnv("SMTP_HOST", "localhost"),
			Port:        getEnvAsInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			From:        getEnv("MAIL_FROM", "no-reply@localhost"),
			FromName:    getEnv("MAIL_FROM_NAME", "Newsletter"),
			SendTimeout: getEnvAsDuration("MAIL_SEND_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 5),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Jobs: JobsConfig{
			TokenCleanupInterval:  getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", time.Hour),
			TokenCleanupRetention: getEnvAsDuration("TOKEN_CLEANUP_RETENTION", 30*24*time.Hour),
			TokenCleanupBatchSize: getEnvAsInt("TOKEN_CLEANUP_BATCH_SIZE", 500),
		},
	}
}

func loadTables(stage string) TablesConfig {
	if stage == "production" {
		return TablesConfig{
			Stage:       stage,
			Subscribers: getEnv("SUBSCRIBERS_TABLE_PROD", "subscribers"),
			Tokens:      getEnv("TOKENS_TABLE_PROD", "subscriber_tokens"),
		}
	}
	return TablesConfig{
		Stage:       stage,
		Subscribers: getEnv("SUBSCRIBERS_TABLE_DEV", "subscribers_dev"),
		Tokens:      getEnv("TOKENS_TABLE_DEV", "subscriber_tokens_dev"),
	}
}

// ClampAttempts keeps the token generation retry ceiling within 5..10.
func ClampAttempts(n int) int {
	if n < minTokenAttempts {
		return minTokenAttempts
	}
	if n > maxTokenAttempts {
		return maxTokenAttempts
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
