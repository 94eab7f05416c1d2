package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	plans := cfg.Engine.DomainPlans()
	require.Len(t, plans, 3)
	assert.Equal(t, "Starter", plans[0].Name)
	assert.True(t, plans[2].Capital.Equal(decimal.NewFromInt(10000)))

	limits := cfg.Engine.Limits()
	assert.True(t, limits.DailyLossPct.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, time.UTC, cfg.Engine.Location())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Parallel()

	path := writeTOML(t, `
mode = "archive"
log_level = "debug"

[engine]
time_zone = "Europe/Paris"
resync_interval = "2s"

[[engine.plans]]
name = "Micro"
price = 50
capital = 500

[storage]
driver = "sqlite"

[sqlite]
path = "/tmp/ts.db"

[archive]
retention_days = 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "archive", cfg.Mode)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Engine.ResyncInterval.Duration)
	assert.Equal(t, "Europe/Paris", cfg.Engine.Location().String())
	require.Len(t, cfg.Engine.Plans, 1)
	assert.Equal(t, "Micro", cfg.Engine.Plans[0].Name)
	assert.Equal(t, 30, cfg.Archive.RetentionDays)
	// Untouched sections keep their defaults.
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.Equal(t, 0.10, cfg.Engine.TotalLossPct)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Load(writeTOML(t, "[engine]\nmax_leverage = 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_leverage")
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADESENSE_STORAGE_DRIVER", "memory")
	t.Setenv("TRADESENSE_ENGINE_LOCAL_FALLBACK", "false")
	t.Setenv("TRADESENSE_ENGINE_LOCK_TTL", "30s")
	t.Setenv("TRADESENSE_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("TRADESENSE_NOTIFY_EVENTS", "challenge_failed")
	t.Setenv("TRADESENSE_ENGINE_PNL_SEED", "42")
	t.Setenv("TRADESENSE_SERVER_PORT", "not-a-number")
	t.Setenv("PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.False(t, cfg.Engine.LocalFallback)
	assert.Equal(t, 30*time.Second, cfg.Engine.LockTTL.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, []string{"challenge_failed"}, cfg.Notify.Events)
	assert.Equal(t, int64(42), cfg.Engine.PnLSeed)
	assert.Equal(t, 8000, cfg.Server.Port, "unparsable values are ignored")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Storage.Driver = "mongo"
	cfg.Engine.PnLModel = "martingale"
	cfg.Engine.DailyLossPct = 1.5
	cfg.Engine.TimeZone = "Mars/Olympus"
	cfg.Engine.Plans = append(cfg.Engine.Plans, PlanConfig{Name: "pro", Capital: 0})
	cfg.Notify.TelegramToken = "t"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`storage: unknown driver "mongo"`,
		`unknown pnl_model "martingale"`,
		"daily_loss_pct must be within [0, 1]",
		`time_zone "Mars/Olympus"`,
		`duplicate plan "pro"`,
		`plan "pro" capital must be > 0`,
		"telegram_token and telegram_chat_id must be set together",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateModeSpecificRules(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Mode = "migrate"
	cfg.Storage.Driver = "memory"
	assert.ErrorContains(t, cfg.Validate(), "mode migrate requires")

	cfg = Defaults()
	cfg.Mode = "archive"
	cfg.S3.Bucket = ""
	assert.ErrorContains(t, cfg.Validate(), "s3: bucket must not be empty")

	cfg = Defaults()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	assert.ErrorContains(t, cfg.Validate(), "redis: addr must not be empty")
}

func TestRedactedConfig(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.S3.SecretKey)

	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)
	assert.Equal(t, "http://localhost:3000", cfg.Server.CORSOrigins[0])
}
