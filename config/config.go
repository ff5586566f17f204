package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerConfig       ServerConfig       `json:"server"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	StripeConfig       StripeConfig       `json:"stripe"`
	MoneyMotionConfig  MoneyMotionConfig  `json:"moneymotion"`
	AuthConfig         AuthConfig         `json:"auth"`
	NotificationConfig NotificationConfig `json:"notification"`
	VaultConfig        VaultConfig        `json:"vault"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	StoreConfig        StoreConfig        `json:"store"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
	PublicBaseURL  string `json:"public_base_url"` // used for checkout success/cancel redirects
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

// RedisConfig holds Redis cache settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// StripeConfig holds Stripe API credentials
type StripeConfig struct {
	SecretKey     string `json:"secret_key"`
	WebhookSecret string `json:"webhook_secret"`
}

// MoneyMotionConfig holds MoneyMotion payment provider credentials
type MoneyMotionConfig struct {
	APIKey        string `json:"api_key"`
	StoreID       string `json:"store_id"`
	WebhookSecret string `json:"webhook_secret"`
	BaseURL       string `json:"base_url"`
}

// AuthConfig holds admin authentication settings
type AuthConfig struct {
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"-"`
	RefreshTokenDuration time.Duration `json:"-"`
	AccessTokenMinutes   int           `json:"access_token_minutes"`
	RefreshTokenHours    int           `json:"refresh_token_hours"`
}

// NotificationConfig holds fallback notification settings used when no
// outbound webhook rows match an event.
type NotificationConfig struct {
	Enabled           bool   `json:"enabled"`
	DiscordWebhookURL string `json:"discord_webhook_url"`
}

// VaultConfig holds HashiCorp Vault settings for payment provider secrets
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type LoggingConfig struct {
	Level   string `json:"level"`   // debug, info, warn, error
	Console bool   `json:"console"` // human-readable console output instead of JSON
}

// StoreConfig holds storefront business settings
type StoreConfig struct {
	Name            string `json:"name"`
	Currency        string `json:"currency"`
	LowStockAlertAt int    `json:"low_stock_alert_at"` // fire STOCK_LOW below this count, 0 disables
}

// Load reads config.json if present and applies environment overrides.
// Environment variables always take precedence over the file.
func Load() (*Config, error) {
	// Local development convenience; missing .env is not an error
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if cfg.AuthConfig.AccessTokenMinutes <= 0 {
		cfg.AuthConfig.AccessTokenMinutes = 15
	}
	if cfg.AuthConfig.RefreshTokenHours <= 0 {
		cfg.AuthConfig.RefreshTokenHours = 7 * 24
	}
	cfg.AuthConfig.AccessTokenDuration = time.Duration(cfg.AuthConfig.AccessTokenMinutes) * time.Minute
	cfg.AuthConfig.RefreshTokenDuration = time.Duration(cfg.AuthConfig.RefreshTokenHours) * time.Hour

	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", boolString(cfg.ServerConfig.ProductionMode)) == "true"
	cfg.ServerConfig.PublicBaseURL = getEnvOrDefault("PUBLIC_BASE_URL", cfg.ServerConfig.PublicBaseURL)
	if cfg.ServerConfig.PublicBaseURL == "" {
		cfg.ServerConfig.PublicBaseURL = "http://localhost:3000"
	}

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}

	// Stripe
	cfg.StripeConfig.SecretKey = getEnvOrDefault("STRIPE_SECRET_KEY", cfg.StripeConfig.SecretKey)
	cfg.StripeConfig.WebhookSecret = getEnvOrDefault("STRIPE_WEBHOOK_SECRET", cfg.StripeConfig.WebhookSecret)

	// MoneyMotion
	cfg.MoneyMotionConfig.APIKey = getEnvOrDefault("MONEYMOTION_API_KEY", cfg.MoneyMotionConfig.APIKey)
	cfg.MoneyMotionConfig.StoreID = getEnvOrDefault("MONEYMOTION_STORE_ID", cfg.MoneyMotionConfig.StoreID)
	cfg.MoneyMotionConfig.WebhookSecret = getEnvOrDefault("MONEYMOTION_WEBHOOK_SECRET", cfg.MoneyMotionConfig.WebhookSecret)
	cfg.MoneyMotionConfig.BaseURL = getEnvOrDefault("MONEYMOTION_BASE_URL", cfg.MoneyMotionConfig.BaseURL)
	if cfg.MoneyMotionConfig.BaseURL == "" {
		cfg.MoneyMotionConfig.BaseURL = "https://api.moneymotion.io/v1"
	}

	// Auth
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)

	// Notification fallback
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", boolString(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.DiscordWebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.DiscordWebhookURL)

	// Vault
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	cfg.LoggingConfig.Console = getEnvOrDefault("LOG_CONSOLE", boolString(cfg.LoggingConfig.Console)) == "true"

	// Store
	cfg.StoreConfig.Name = getEnvOrDefault("STORE_NAME", cfg.StoreConfig.Name)
	if cfg.StoreConfig.Name == "" {
		cfg.StoreConfig.Name = "GameKey Store"
	}
	cfg.StoreConfig.Currency = getEnvOrDefault("STORE_CURRENCY", cfg.StoreConfig.Currency)
	if cfg.StoreConfig.Currency == "" {
		cfg.StoreConfig.Currency = "USD"
	}
	cfg.StoreConfig.LowStockAlertAt = getEnvIntOrDefault("LOW_STOCK_ALERT_AT", cfg.StoreConfig.LowStockAlertAt)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
