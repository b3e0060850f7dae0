package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAPERBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known PAPERBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "PAPERBOT_LEDGER_BACKEND")
	setStr(&cfg.Ledger.DataDir, "PAPERBOT_LEDGER_DATA_DIR")

	// ── Database ──
	setStr(&cfg.Database.DSN, "PAPERBOT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "PAPERBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "PAPERBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PAPERBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PAPERBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "PAPERBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "PAPERBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PAPERBOT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "PAPERBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PAPERBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PAPERBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PAPERBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PAPERBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAPERBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAPERBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAPERBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAPERBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAPERBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PAPERBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PAPERBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAPERBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAPERBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAPERBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAPERBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAPERBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAPERBOT_S3_FORCE_PATH_STYLE")

	// ── Execution ──
	setFloat64(&cfg.Execution.FeeRate, "PAPERBOT_EXECUTION_FEE_RATE")
	setFloat64(&cfg.Execution.SlippagePerThousand, "PAPERBOT_EXECUTION_SLIPPAGE_PER_1K")
	setInt(&cfg.Execution.LatencyMinMs, "PAPERBOT_EXECUTION_LATENCY_MIN_MS")
	setInt(&cfg.Execution.LatencyMaxMs, "PAPERBOT_EXECUTION_LATENCY_MAX_MS")
	setInt(&cfg.Execution.LockTTLSeconds, "PAPERBOT_EXECUTION_LOCK_TTL_SECONDS")

	// ── TPSL ──
	setFloat64(&cfg.TPSL.TP1Percent, "PAPERBOT_TPSL_TP1_PERCENT")
	setFloat64(&cfg.TPSL.TP1SizePercent, "PAPERBOT_TPSL_TP1_SIZE_PERCENT")
	setFloat64(&cfg.TPSL.TP2Percent, "PAPERBOT_TPSL_TP2_PERCENT")
	setFloat64(&cfg.TPSL.StopLossPercent, "PAPERBOT_TPSL_STOP_LOSS_PERCENT")

	// ── Profile ──
	setStr(&cfg.Profile.DefaultName, "PAPERBOT_PROFILE_DEFAULT_NAME")
	setFloat64(&cfg.Profile.DefaultBalance, "PAPERBOT_PROFILE_DEFAULT_BALANCE")
	setFloat64(&cfg.Profile.RiskPerTrade, "PAPERBOT_PROFILE_RISK_PER_TRADE")
	setFloat64(&cfg.Profile.AutoStopLoss, "PAPERBOT_PROFILE_AUTO_STOP_LOSS")
	setFloat64(&cfg.Profile.AutoTakeProfit, "PAPERBOT_PROFILE_AUTO_TAKE_PROFIT")
	setInt(&cfg.Profile.MaxOpenPositions, "PAPERBOT_PROFILE_MAX_OPEN_POSITIONS")
	setBool(&cfg.Profile.AllowShorts, "PAPERBOT_PROFILE_ALLOW_SHORTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PAPERBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PAPERBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAPERBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PAPERBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PAPERBOT_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateLimitWindowS, "PAPERBOT_SERVER_RATE_LIMIT_WINDOW_SECONDS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAPERBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAPERBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAPERBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAPERBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PAPERBOT_MODE")
	setStr(&cfg.LogLevel, "PAPERBOT_LOG_LEVEL")
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
