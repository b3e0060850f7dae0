// Package config defines the top-level configuration for the paper trading
// ledger and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAPERBOT_* environment variables.
type Config struct {
	Ledger    LedgerConfig    `toml:"ledger"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Execution ExecutionConfig `toml:"execution"`
	TPSL      TPSLConfig      `toml:"tpsl"`
	Profile   ProfileConfig   `toml:"profile"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// LedgerConfig selects and parameterizes the persistence backend.
type LedgerConfig struct {
	// Backend is "jsonfile" or "postgres".
	Backend string `toml:"backend"`
	// DataDir is where the jsonfile backend keeps its collections.
	DataDir string `toml:"data_dir"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the postgres
// ledger backend.
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

// RedisConfig holds Redis connection parameters. Redis backs the price
// snapshot cache, the event bus, the mutation lock and the API rate limiter;
// all of those degrade gracefully when disabled.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for cold archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ExecutionConfig holds simulated fill parameters.
type ExecutionConfig struct {
	// FeeRate is charged on the order amount for buys (0.001 = 0.1%).
	FeeRate float64 `toml:"fee_rate"`
	// SlippagePerThousand moves the execution price per $1000 of order size.
	SlippagePerThousand float64 `toml:"slippage_per_1k"`
	// LatencyMinMs / LatencyMaxMs bound the simulated settlement delay.
	LatencyMinMs int `toml:"latency_min_ms"`
	LatencyMaxMs int `toml:"latency_max_ms"`
	// LockTTLSeconds bounds how long the distributed mutation lock is held.
	LockTTLSeconds int `toml:"lock_ttl_seconds"`
}

// TPSLConfig holds default take-profit / stop-loss thresholds applied to new
// positions that do not override them.
type TPSLConfig struct {
	TP1Percent     float64 `toml:"tp1_percent"`
	TP1SizePercent float64 `toml:"tp1_size_percent"`
	TP2Percent     float64 `toml:"tp2_percent"`
	// StopLossPercent is signed: -50 closes everything at -50%.
	StopLossPercent float64 `toml:"stop_loss_percent"`
}

// ProfileConfig holds parameters for the default profile created on first run
// and the defaults applied to new profiles.
type ProfileConfig struct {
	DefaultName      string  `toml:"default_name"`
	DefaultBalance   float64 `toml:"default_balance"`
	RiskPerTrade     float64 `toml:"risk_per_trade"`
	AutoStopLoss     float64 `toml:"auto_stop_loss"`
	AutoTakeProfit   float64 `toml:"auto_take_profit"`
	MaxOpenPositions int     `toml:"max_open_positions"`
	AllowShorts      bool    `toml:"allow_shorts"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey enables bearer/X-API-Key auth when non-empty.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per window per client IP; 0 disables. Requires
	// Redis.
	RateLimit        int `toml:"rate_limit"`
	RateLimitWindowS int `toml:"rate_limit_window_seconds"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			Backend: "jsonfile",
			DataDir: "data",
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "paperbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "paperbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Execution: ExecutionConfig{
			FeeRate:             0.001,
			SlippagePerThousand: 0.0001,
			LatencyMinMs:        100,
			LatencyMaxMs:        300,
			LockTTLSeconds:      10,
		},
		TPSL: TPSLConfig{
			TP1Percent:      30,
			TP1SizePercent:  50,
			TP2Percent:      100,
			StopLossPercent: -50,
		},
		Profile: ProfileConfig{
			DefaultName:      "Default",
			DefaultBalance:   10000,
			RiskPerTrade:     5,
			AutoStopLoss:     20,
			AutoTakeProfit:   50,
			MaxOpenPositions: 10,
			AllowShorts:      true,
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:        0,
			RateLimitWindowS: 60,
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "order_closed", "tp1_hit", "tp2_hit", "sl_hit", "error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"check":  true,
}

// validBackends enumerates the accepted values for Config.Ledger.Backend.
var validBackends = map[string]bool{
	"jsonfile": true,
	"postgres": true,
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

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, check)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger backend
	if !validBackends[strings.ToLower(c.Ledger.Backend)] {
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: jsonfile, postgres)", c.Ledger.Backend))
	}
	if strings.EqualFold(c.Ledger.Backend, "jsonfile") && strings.TrimSpace(c.Ledger.DataDir) == "" {
		errs = append(errs, "ledger: data_dir must not be empty for the jsonfile backend")
	}

	// Database — only required when the postgres backend is selected.
	if strings.EqualFold(c.Ledger.Backend, "postgres") {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Execution
	if c.Execution.FeeRate < 0 || c.Execution.FeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("execution: fee_rate must be in [0, 1), got %g", c.Execution.FeeRate))
	}
	if c.Execution.SlippagePerThousand < 0 {
		errs = append(errs, "execution: slippage_per_1k must be >= 0")
	}
	if c.Execution.LatencyMinMs < 0 || c.Execution.LatencyMaxMs < c.Execution.LatencyMinMs {
		errs = append(errs, "execution: latency bounds must satisfy 0 <= latency_min_ms <= latency_max_ms")
	}
	if c.Execution.LockTTLSeconds < 1 {
		errs = append(errs, "execution: lock_ttl_seconds must be >= 1")
	}

	// TPSL
	if c.TPSL.TP1Percent < 0 {
		errs = append(errs, "tpsl: tp1_percent must be >= 0")
	}
	if c.TPSL.TP1SizePercent < 0 || c.TPSL.TP1SizePercent > 100 {
		errs = append(errs, fmt.Sprintf("tpsl: tp1_size_percent must be 0-100, got %g", c.TPSL.TP1SizePercent))
	}
	if c.TPSL.TP2Percent < 0 {
		errs = append(errs, "tpsl: tp2_percent must be >= 0")
	}
	if c.TPSL.StopLossPercent > 0 {
		errs = append(errs, fmt.Sprintf("tpsl: stop_loss_percent must be <= 0, got %g", c.TPSL.StopLossPercent))
	}

	// Profile
	if c.Profile.DefaultBalance <= 0 {
		errs = append(errs, "profile: default_balance must be > 0")
	}
	if c.Profile.MaxOpenPositions < 1 {
		errs = append(errs, "profile: max_open_positions must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis to be enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
