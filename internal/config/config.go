// Package config defines the top-level configuration for the repricer
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by REPRICER_* environment
// variables.
type Config struct {
	Database     DatabaseConfig    `toml:"database"`
	Redis        RedisConfig       `toml:"redis"`
	S3           S3Config          `toml:"s3"`
	Feed         FeedConfig        `toml:"feed"`
	API          APIConfig         `toml:"api"`
	Repricing    RepricingConfig   `toml:"repricing"`
	Scheduler    SchedulerConfig   `toml:"scheduler"`
	Server       ServerConfig      `toml:"server"`
	Notify       NotifyConfig      `toml:"notify"`
	Marketplaces map[string]string `toml:"marketplaces"`
	LogLevel     string            `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when no
// address is configured the run lock and snapshot mirror are disabled.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters, used for the
// S3-backed floor feed source and bulk feed archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig controls where floor-price feeds are read from and when they
// count as stale.
type FeedConfig struct {
	// Source is "dir" for a local directory drop or "s3" for object storage.
	Source                string `toml:"source"`
	Root                  string `toml:"root"`
	Prefix                string `toml:"prefix"`
	StaleThresholdMinutes int    `toml:"stale_threshold_minutes"`
}

// APIConfig holds credentials and limits for the external marketplace
// pricing API.
type APIConfig struct {
	Endpoint     string  `toml:"endpoint"`
	TokenURL     string  `toml:"token_url"`
	ClientID     string  `toml:"client_id"`
	ClientSecret string  `toml:"client_secret"`
	RefreshToken string  `toml:"refresh_token"`
	SellerID     string  `toml:"seller_id"`
	Rate         float64 `toml:"rate"`
	Burst        int     `toml:"burst"`
	MaxAttempts  int     `toml:"max_attempts"`
}

// RepricingConfig holds batch sizing and the system default pricing policy
// applied to SKUs without a profile.
type RepricingConfig struct {
	BatchSize             int     `toml:"batch_size"`
	Concurrency           int     `toml:"concurrency"`
	UndercutPercent       float64 `toml:"undercut_percent"`
	MinMarginPercent      float64 `toml:"min_margin_percent"`
	MaxDailyChangePercent float64 `toml:"max_daily_change_percent"`
	StepUpType            string  `toml:"step_up_type"`
	StepUpValue           float64 `toml:"step_up_value"`
	StepUpIntervalHours   float64 `toml:"step_up_interval_hours"`
	TestMode              bool    `toml:"test_mode"`
}

// SchedulerConfig holds the scheduler's tick interval and queue depth.
type SchedulerConfig struct {
	TickSeconds int `toml:"tick_seconds"`
	QueueSize   int `toml:"queue_size"`
}

// ServerConfig holds the HTTP API server configuration.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds optional alert delivery channels.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// Defaults returns the built-in configuration that a TOML file and
// environment overrides are merged on top of.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "repricer",
			User:          "repricer",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 8,
		},
		Feed: FeedConfig{
			Source:                "dir",
			Root:                  "./ftp_feeds",
			StaleThresholdMinutes: 90,
		},
		API: APIConfig{
			Endpoint:    "https://sellingpartnerapi-eu.amazon.com",
			TokenURL:    "https://api.amazon.com/auth/o2/token",
			Rate:        0.1,
			Burst:       1,
			MaxAttempts: 5,
		},
		Repricing: RepricingConfig{
			BatchSize:             40,
			Concurrency:           8,
			UndercutPercent:       0.5,
			MinMarginPercent:      0,
			MaxDailyChangePercent: 20,
			StepUpType:            "percentage",
			StepUpValue:           2,
			StepUpIntervalHours:   6,
		},
		Scheduler: SchedulerConfig{
			TickSeconds: 60,
			QueueSize:   64,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Marketplaces: map[string]string{
			"DE": "A1PA6795UKMFR9",
			"FR": "A13V1IB3VIYZZH",
			"NL": "A1805IZSGTT6HS",
			"BE": "AMEN7PMS3EDWL",
			"IT": "APJ6JRA9NG5V4",
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for values the service cannot start
// with. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Database == "" || c.Database.User == "") {
		return fmt.Errorf("config: database requires a dsn or host/database/user")
	}

	switch strings.ToLower(c.Feed.Source) {
	case "dir":
		if c.Feed.Root == "" {
			return fmt.Errorf("config: feed.root is required for the dir source")
		}
	case "s3":
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("config: s3.bucket and s3.region are required for the s3 feed source")
		}
	default:
		return fmt.Errorf("config: unsupported feed source %q", c.Feed.Source)
	}
	if c.Feed.StaleThresholdMinutes <= 0 {
		return fmt.Errorf("config: feed.stale_threshold_minutes must be positive")
	}

	if c.API.Rate <= 0 {
		return fmt.Errorf("config: api.rate must be positive")
	}
	if c.API.Burst < 1 {
		return fmt.Errorf("config: api.burst must be at least 1")
	}
	if c.API.MaxAttempts < 1 {
		return fmt.Errorf("config: api.max_attempts must be at least 1")
	}

	if c.Repricing.BatchSize < 1 {
		return fmt.Errorf("config: repricing.batch_size must be at least 1")
	}
	if c.Repricing.Concurrency < 1 {
		return fmt.Errorf("config: repricing.concurrency must be at least 1")
	}
	switch c.Repricing.StepUpType {
	case "percentage", "absolute":
	default:
		return fmt.Errorf("config: unsupported repricing.step_up_type %q", c.Repricing.StepUpType)
	}

	if c.Scheduler.TickSeconds < 1 {
		return fmt.Errorf("config: scheduler.tick_seconds must be at least 1")
	}

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}

	if len(c.Marketplaces) == 0 {
		return fmt.Errorf("config: at least one marketplace must be configured")
	}
	for code, externalID := range c.Marketplaces {
		if strings.TrimSpace(code) == "" || strings.TrimSpace(externalID) == "" {
			return fmt.Errorf("config: marketplace entries need a code and an external id")
		}
	}

	return nil
}
