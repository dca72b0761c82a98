package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies REPRICER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known REPRICER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "REPRICER_DATABASE_DSN")
	setStr(&cfg.Database.Host, "REPRICER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "REPRICER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "REPRICER_DATABASE_NAME")
	setStr(&cfg.Database.User, "REPRICER_DATABASE_USER")
	setStr(&cfg.Database.Password, "REPRICER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "REPRICER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "REPRICER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "REPRICER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "REPRICER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "REPRICER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REPRICER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REPRICER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REPRICER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REPRICER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REPRICER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "REPRICER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "REPRICER_S3_REGION")
	setStr(&cfg.S3.Bucket, "REPRICER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "REPRICER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "REPRICER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "REPRICER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "REPRICER_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setStr(&cfg.Feed.Source, "REPRICER_FEED_SOURCE")
	setStr(&cfg.Feed.Root, "REPRICER_FEED_ROOT")
	setStr(&cfg.Feed.Prefix, "REPRICER_FEED_PREFIX")
	setInt(&cfg.Feed.StaleThresholdMinutes, "REPRICER_FEED_STALE_THRESHOLD_MINUTES")

	// ── API ──
	setStr(&cfg.API.Endpoint, "REPRICER_API_ENDPOINT")
	setStr(&cfg.API.TokenURL, "REPRICER_API_TOKEN_URL")
	setStr(&cfg.API.ClientID, "REPRICER_API_CLIENT_ID")
	setStr(&cfg.API.ClientSecret, "REPRICER_API_CLIENT_SECRET")
	setStr(&cfg.API.RefreshToken, "REPRICER_API_REFRESH_TOKEN")
	setStr(&cfg.API.SellerID, "REPRICER_API_SELLER_ID")
	setFloat64(&cfg.API.Rate, "REPRICER_API_RATE")
	setInt(&cfg.API.Burst, "REPRICER_API_BURST")
	setInt(&cfg.API.MaxAttempts, "REPRICER_API_MAX_ATTEMPTS")

	// ── Repricing ──
	setInt(&cfg.Repricing.BatchSize, "REPRICER_REPRICING_BATCH_SIZE")
	setInt(&cfg.Repricing.Concurrency, "REPRICER_REPRICING_CONCURRENCY")
	setFloat64(&cfg.Repricing.UndercutPercent, "REPRICER_REPRICING_UNDERCUT_PERCENT")
	setFloat64(&cfg.Repricing.MinMarginPercent, "REPRICER_REPRICING_MIN_MARGIN_PERCENT")
	setFloat64(&cfg.Repricing.MaxDailyChangePercent, "REPRICER_REPRICING_MAX_DAILY_CHANGE_PERCENT")
	setStr(&cfg.Repricing.StepUpType, "REPRICER_REPRICING_STEP_UP_TYPE")
	setFloat64(&cfg.Repricing.StepUpValue, "REPRICER_REPRICING_STEP_UP_VALUE")
	setFloat64(&cfg.Repricing.StepUpIntervalHours, "REPRICER_REPRICING_STEP_UP_INTERVAL_HOURS")
	setBool(&cfg.Repricing.TestMode, "REPRICER_REPRICING_TEST_MODE")

	// ── Scheduler ──
	setInt(&cfg.Scheduler.TickSeconds, "REPRICER_SCHEDULER_TICK_SECONDS")
	setInt(&cfg.Scheduler.QueueSize, "REPRICER_SCHEDULER_QUEUE_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "REPRICER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "REPRICER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "REPRICER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "REPRICER_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "REPRICER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "REPRICER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "REPRICER_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "REPRICER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
