// Package config defines the top-level configuration for the challenge
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // engine.time_zone must resolve on hosts without zoneinfo

	"github.com/shopspring/decimal"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADESENSE_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PlanConfig is one purchasable tier. Capital is the challenge's initial
// balance.
type PlanConfig struct {
	Name    string  `toml:"name"`
	Price   float64 `toml:"price"`
	Capital float64 `toml:"capital"`
}

// EngineConfig holds the challenge rules and orchestrator tuning.
type EngineConfig struct {
	Plans []PlanConfig `toml:"plans"`

	// Limit percentages as fractions of the initial balance (0.05 = 5%).
	DailyLossPct    float64 `toml:"daily_loss_pct"`
	TotalLossPct    float64 `toml:"total_loss_pct"`
	ProfitTargetPct float64 `toml:"profit_target_pct"`

	// PnLModel is "fixed" or "random".
	PnLModel       string  `toml:"pnl_model"`
	PnLFixedAmount float64 `toml:"pnl_fixed_amount"`
	PnLRandomBound float64 `toml:"pnl_random_bound"`
	PnLSeed        int64   `toml:"pnl_seed"`

	// TimeZone names the IANA zone whose midnight starts the daily window.
	TimeZone string `toml:"time_zone"`

	LocalFallback  bool     `toml:"local_fallback"`
	ResyncInterval duration `toml:"resync_interval"`
	LockTTL        duration `toml:"lock_ttl"`
	LockRetry      duration `toml:"lock_retry"`
	DedupTTL       duration `toml:"dedup_ttl"`
}

// StorageConfig selects the persistence driver.
type StorageConfig struct {
	// Driver is "postgres", "sqlite" or "memory".
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters. When disabled the engine
// runs single-instance with an in-process bus and rate limiter.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ArchiveConfig controls copying terminal challenges to S3.
type ArchiveConfig struct {
	// Enabled runs the archive loop inside server mode.
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	// RetentionDays delays archiving until a challenge has been terminal
	// this long.
	RetentionDays        int `toml:"retention_days"`
	BatchSize            int `toml:"batch_size"`
	MultipartThresholdMB int `toml:"multipart_threshold_mb"`
	PartSizeMB           int `toml:"part_size_mb"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects every route except /api/health; empty disables auth.
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	QueueSize         int      `toml:"queue_size"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Plans: []PlanConfig{
				{Name: "Starter", Price: 200, Capital: 2000},
				{Name: "Pro", Price: 500, Capital: 5000},
				{Name: "Elite", Price: 1000, Capital: 10000},
			},
			DailyLossPct:    0.05,
			TotalLossPct:    0.10,
			ProfitTargetPct: 0.10,
			PnLModel:        "fixed",
			PnLFixedAmount:  10,
			PnLRandomBound:  50,
			PnLSeed:         1,
			TimeZone:        "UTC",
			LocalFallback:   true,
			ResyncInterval:  duration{5 * time.Second},
			LockTTL:         duration{10 * time.Second},
			LockRetry:       duration{3 * time.Second},
			DedupTTL:        duration{10 * time.Minute},
		},
		Storage: StorageConfig{Driver: "postgres"},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "tradesense",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   2,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		SQLite: SQLiteConfig{Path: "data/tradesense.db"},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "tradesense:",
			CacheTTL:   duration{5 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradesense-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:              false,
			Interval:             duration{time.Hour},
			RetentionDays:        7,
			BatchSize:            100,
			MultipartThresholdMB: 16,
			PartSizeMB:           8,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Events:    []string{"challenge_passed", "challenge_failed"},
			QueueSize: 64,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"migrate": true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"memory":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if len(c.Engine.Plans) == 0 {
		errs = append(errs, "engine: at least one plan is required")
	}
	seen := make(map[string]bool, len(c.Engine.Plans))
	for i, p := range c.Engine.Plans {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		switch {
		case name == "":
			errs = append(errs, fmt.Sprintf("engine: plans[%d] name must not be empty", i))
		case seen[name]:
			errs = append(errs, fmt.Sprintf("engine: duplicate plan %q", p.Name))
		}
		seen[name] = true
		if p.Capital <= 0 {
			errs = append(errs, fmt.Sprintf("engine: plan %q capital must be > 0", p.Name))
		}
		if p.Price < 0 {
			errs = append(errs, fmt.Sprintf("engine: plan %q price must be >= 0", p.Name))
		}
	}
	for name, v := range map[string]float64{
		"daily_loss_pct":    c.Engine.DailyLossPct,
		"total_loss_pct":    c.Engine.TotalLossPct,
		"profit_target_pct": c.Engine.ProfitTargetPct,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("engine: %s must be within [0, 1], got %g", name, v))
		}
	}
	switch c.Engine.PnLModel {
	case "fixed":
	case "random":
		if c.Engine.PnLRandomBound <= 0 {
			errs = append(errs, "engine: pnl_random_bound must be > 0 for the random model")
		}
	default:
		errs = append(errs, fmt.Sprintf("engine: unknown pnl_model %q (valid: fixed, random)", c.Engine.PnLModel))
	}
	if _, err := time.LoadLocation(c.Engine.TimeZone); err != nil {
		errs = append(errs, fmt.Sprintf("engine: time_zone %q: %v", c.Engine.TimeZone, err))
	}
	if c.Engine.ResyncInterval.Duration <= 0 {
		errs = append(errs, "engine: resync_interval must be > 0")
	}
	if c.Redis.Enabled && c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0 when redis is enabled")
	}

	// Storage
	driver := strings.ToLower(c.Storage.Driver)
	if !validDrivers[driver] {
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: postgres, sqlite, memory)", c.Storage.Driver))
	}
	if driver == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be within [0, pool_max_conns]")
		}
	}
	if driver == "sqlite" && strings.TrimSpace(c.SQLite.Path) == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}
	if mode == "migrate" && driver == "memory" {
		errs = append(errs, "mode migrate requires the postgres or sqlite driver")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 / Archive
	if c.Archive.Enabled || mode == "archive" {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
	}

	// Server
	if mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// DomainPlans converts the configured plans to domain values.
func (e EngineConfig) DomainPlans() []domain.Plan {
	out := make([]domain.Plan, len(e.Plans))
	for i, p := range e.Plans {
		out[i] = domain.Plan{
			Name:    strings.TrimSpace(p.Name),
			Price:   decimal.NewFromFloat(p.Price),
			Capital: decimal.NewFromFloat(p.Capital),
		}
	}
	return out
}

// Limits converts the configured percentages to domain limits.
func (e EngineConfig) Limits() domain.Limits {
	return domain.Limits{
		DailyLossPct:    decimal.NewFromFloat(e.DailyLossPct),
		TotalLossPct:    decimal.NewFromFloat(e.TotalLossPct),
		ProfitTargetPct: decimal.NewFromFloat(e.ProfitTargetPct),
	}
}

// Location loads the configured time zone, falling back to UTC.
func (e EngineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(e.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
