package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADESENSE_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADESENSE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setFloat64(&cfg.Engine.DailyLossPct, "TRADESENSE_ENGINE_DAILY_LOSS_PCT")
	setFloat64(&cfg.Engine.TotalLossPct, "TRADESENSE_ENGINE_TOTAL_LOSS_PCT")
	setFloat64(&cfg.Engine.ProfitTargetPct, "TRADESENSE_ENGINE_PROFIT_TARGET_PCT")
	setStr(&cfg.Engine.PnLModel, "TRADESENSE_ENGINE_PNL_MODEL")
	setFloat64(&cfg.Engine.PnLFixedAmount, "TRADESENSE_ENGINE_PNL_FIXED_AMOUNT")
	setFloat64(&cfg.Engine.PnLRandomBound, "TRADESENSE_ENGINE_PNL_RANDOM_BOUND")
	setInt64(&cfg.Engine.PnLSeed, "TRADESENSE_ENGINE_PNL_SEED")
	setStr(&cfg.Engine.TimeZone, "TRADESENSE_ENGINE_TIME_ZONE")
	setBool(&cfg.Engine.LocalFallback, "TRADESENSE_ENGINE_LOCAL_FALLBACK")
	setDuration(&cfg.Engine.ResyncInterval, "TRADESENSE_ENGINE_RESYNC_INTERVAL")
	setDuration(&cfg.Engine.LockTTL, "TRADESENSE_ENGINE_LOCK_TTL")
	setDuration(&cfg.Engine.LockRetry, "TRADESENSE_ENGINE_LOCK_RETRY")
	setDuration(&cfg.Engine.DedupTTL, "TRADESENSE_ENGINE_DEDUP_TTL")

	// ── Storage ──
	setStr(&cfg.Storage.Driver, "TRADESENSE_STORAGE_DRIVER")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADESENSE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "TRADESENSE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADESENSE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADESENSE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADESENSE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADESENSE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADESENSE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADESENSE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADESENSE_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.ConnectTimeout, "TRADESENSE_POSTGRES_CONNECT_TIMEOUT")
	setBool(&cfg.Postgres.RunMigrations, "TRADESENSE_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "TRADESENSE_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADESENSE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADESENSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADESENSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADESENSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADESENSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADESENSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADESENSE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "TRADESENSE_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.CacheTTL, "TRADESENSE_REDIS_CACHE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADESENSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADESENSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADESENSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADESENSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADESENSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADESENSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADESENSE_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "TRADESENSE_S3_PREFIX")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRADESENSE_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "TRADESENSE_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "TRADESENSE_ARCHIVE_RETENTION_DAYS")
	setInt(&cfg.Archive.BatchSize, "TRADESENSE_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setInt(&cfg.Server.Port, "TRADESENSE_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform alias
	setStringSlice(&cfg.Server.CORSOrigins, "TRADESENSE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRADESENSE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TRADESENSE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TRADESENSE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADESENSE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADESENSE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADESENSE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADESENSE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADESENSE_MODE")
	setStr(&cfg.LogLevel, "TRADESENSE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
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
