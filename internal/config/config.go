package config

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabasePath  string `json:"database_path"`
	APIPort       string `json:"api_port"`
	LogLevel      string `json:"log_level"`
	DataDir       string `json:"data_dir"`
	SessionSecret string `json:"session_secret"`
	EncryptionKey string `json:"encryption_key"` // 独立的加密密钥（用于加密 OAuth 令牌）
	CORSOrigins   string `json:"cors_origins"`   // CORS 允许的域名，逗号分隔，* 表示全部

	// Twitter app credentials (OAuth1 consumer)
	TwitterConsumerKey    string `json:"twitter_consumer_key"`
	TwitterConsumerSecret string `json:"twitter_consumer_secret"`

	// External callback base, e.g. https://forget.example.com
	BaseURL string `json:"base_url"`

	SessionTTLHours      int `json:"session_ttl_hours"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes"`
	SweepWorkers         int `json:"sweep_workers"`

	// Deletion API throttle: requests per minute
	DeleteRatePerMinute        int `json:"delete_rate_per_minute"`
	DeleteRatePerAccountMinute int `json:"delete_rate_per_account_minute"`
}

// Default configuration values
const (
	DefaultDatabasePath  = "data/forget.db"
	DefaultAPIPort       = "8080"
	DefaultLogLevel      = "INFO"
	DefaultDataDir       = "data"
	DefaultSessionSecret = "forget-default-secret-change-in-production"
	DefaultEncryptionKey = "" // 空表示从 SessionSecret 派生
	DefaultCORSOrigins   = "*"
	DefaultBaseURL       = "http://localhost:8080"

	DefaultSessionTTLHours      = 48
	DefaultSweepIntervalMinutes = 5
	DefaultSweepWorkers         = 4

	DefaultDeleteRatePerMinute        = 60
	DefaultDeleteRatePerAccountMinute = 10
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:               DefaultDatabasePath,
		APIPort:                    DefaultAPIPort,
		LogLevel:                   DefaultLogLevel,
		DataDir:                    DefaultDataDir,
		SessionSecret:              DefaultSessionSecret,
		EncryptionKey:              DefaultEncryptionKey,
		CORSOrigins:                DefaultCORSOrigins,
		BaseURL:                    DefaultBaseURL,
		SessionTTLHours:            DefaultSessionTTLHours,
		SweepIntervalMinutes:       DefaultSweepIntervalMinutes,
		SweepWorkers:               DefaultSweepWorkers,
		DeleteRatePerMinute:        DefaultDeleteRatePerMinute,
		DeleteRatePerAccountMinute: DefaultDeleteRatePerAccountMinute,
	}

	// Config file is optional; a malformed one is an error
	if err := cfg.loadFromFile(); err != nil {
		return nil, err
	}

	// Override with environment variables
	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	// Look for config file in current directory and data directory
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if err := json.Unmarshal(data, c); err != nil {
			return err
		}
		return nil
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("FORGET_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("FORGET_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("FORGET_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("FORGET_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("FORGET_SESSION_SECRET"); val != "" {
		c.SessionSecret = val
	}
	if val := os.Getenv("FORGET_ENCRYPTION_KEY"); val != "" {
		c.EncryptionKey = val
	}
	if val := os.Getenv("FORGET_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = val
	}
	if val := os.Getenv("FORGET_TWITTER_CONSUMER_KEY"); val != "" {
		c.TwitterConsumerKey = val
	}
	if val := os.Getenv("FORGET_TWITTER_CONSUMER_SECRET"); val != "" {
		c.TwitterConsumerSecret = val
	}
	if val := os.Getenv("FORGET_BASE_URL"); val != "" {
		c.BaseURL = val
	}
}

// SessionTTL returns the session lifetime
func (c *Config) SessionTTL() time.Duration {
	if c.SessionTTLHours <= 0 {
		return DefaultSessionTTLHours * time.Hour
	}
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// SweepInterval returns how often the scheduler looks for due accounts
func (c *Config) SweepInterval() time.Duration {
	if c.SweepIntervalMinutes <= 0 {
		return DefaultSweepIntervalMinutes * time.Minute
	}
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// GetEncryptionKey returns the key used to encrypt stored OAuth tokens
// If EncryptionKey is set, use it; otherwise derive from SessionSecret
func (c *Config) GetEncryptionKey() []byte {
	if c.EncryptionKey != "" {
		// 使用 SHA-256 确保密钥长度为 32 字节
		hash := sha256.Sum256([]byte(c.EncryptionKey))
		return hash[:]
	}
	// 从 SessionSecret 派生（向后兼容）
	hash := sha256.Sum256([]byte(c.SessionSecret + "-encryption"))
	return hash[:]
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
