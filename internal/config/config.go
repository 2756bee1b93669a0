// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for databases and staging (always absolute)
	RulesPath string // Path to the compliance rules file (JSON or YAML)
	LogLevel  string
	Port      int
	DevMode   bool

	// Detection tuning
	FreshnessWindow    time.Duration // Max age for a market fact to count as current
	CooldownWindow     time.Duration // Min time between admitted violations per key
	EscalationOverride float64       // Exposure fraction that forces escalation regardless of severity
	MarketPollInterval time.Duration // Interval between market feed cycles
	WorkflowWorkers    int           // Concurrent alert workflow instances

	// Market feed
	MarketFeedURL string   // WebSocket feed endpoint; empty enables the simulated feed
	Watchlist     []string // Symbols the feed follows

	// Collaborators
	TextGen  TextGenConfig
	Notifier NotifierConfig
	Backup   BackupConfig
}

// TextGenConfig holds settings for the text-generation collaborator.
type TextGenConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NotifierConfig holds settings for outbound alert notifications.
type NotifierConfig struct {
	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	AlertEmail string // Destination address; empty disables email delivery
}

// BackupConfig holds settings for S3-compatible ledger backups.
type BackupConfig struct {
	Enabled       bool
	Endpoint      string
	Bucket        string
	AccessKey     string
	SecretKey     string
	RetentionDays int
}

// DefaultWatchlist matches the symbols the simulated feed knows base prices for.
var DefaultWatchlist = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA",
	"NVDA", "META", "JPM", "BAC", "WFC",
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SENTINEL_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory to absolute path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		RulesPath: getEnv("SENTINEL_RULES_PATH", filepath.Join(absDataDir, "compliance_rules.json")),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Port:      getEnvInt("PORT", 8090),
		DevMode:   getEnvBool("DEV_MODE", false),

		FreshnessWindow:    getEnvDuration("FRESHNESS_WINDOW", 60*time.Second),
		CooldownWindow:     getEnvDuration("COOLDOWN_WINDOW", 15*time.Minute),
		EscalationOverride: getEnvFloat("ESCALATION_OVERRIDE", 0.25),
		MarketPollInterval: getEnvDuration("MARKET_POLL_INTERVAL", 10*time.Second),
		WorkflowWorkers:    getEnvInt("WORKFLOW_WORKERS", 4),

		MarketFeedURL: getEnv("MARKET_FEED_URL", ""),
		Watchlist:     DefaultWatchlist,

		TextGen: TextGenConfig{
			BaseURL: getEnv("TEXTGEN_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  getEnv("TEXTGEN_API_KEY", ""),
			Model:   getEnv("TEXTGEN_MODEL", "gpt-4-turbo-preview"),
			Timeout: getEnvDuration("TEXTGEN_TIMEOUT", 20*time.Second),
		},
		Notifier: NotifierConfig{
			SMTPHost:   getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:   getEnvInt("SMTP_PORT", 587),
			SMTPUser:   getEnv("SMTP_USER", ""),
			AlertEmail: getEnv("ALERT_EMAIL", ""),
		},
		Backup: BackupConfig{
			Enabled:       getEnvBool("BACKUP_ENABLED", false),
			Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
			Bucket:        getEnv("BACKUP_S3_BUCKET", "sentinel-backups"),
			AccessKey:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("BACKUP_S3_SECRET_KEY", ""),
			RetentionDays: getEnvInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate sanity-checks values that would otherwise break detection quietly.
func (c *Config) validate() error {
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("freshness window must be positive, got %s", c.FreshnessWindow)
	}
	if c.CooldownWindow <= 0 {
		return fmt.Errorf("cooldown window must be positive, got %s", c.CooldownWindow)
	}
	if c.EscalationOverride <= 0 || c.EscalationOverride > 1 {
		return fmt.Errorf("escalation override must be in (0, 1], got %f", c.EscalationOverride)
	}
	if c.MarketPollInterval <= 0 {
		return fmt.Errorf("market poll interval must be positive, got %s", c.MarketPollInterval)
	}
	// A poll interval longer than the freshness window would expire every
	// tick before the next cycle arrives.
	if c.MarketPollInterval > c.FreshnessWindow {
		return fmt.Errorf("market poll interval %s must not exceed freshness window %s", c.MarketPollInterval, c.FreshnessWindow)
	}
	if c.WorkflowWorkers < 1 {
		return fmt.Errorf("workflow workers must be at least 1, got %d", c.WorkflowWorkers)
	}
	return nil
}

// SMTPPassword retrieves the SMTP password at call time. It is intentionally
// not stored on the Config struct.
func (c *Config) SMTPPassword() string {
	return os.Getenv("SMTP_PASSWORD")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
