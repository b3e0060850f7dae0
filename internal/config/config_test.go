package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeTempTOML(t, `
mode = "check"

[ledger]
backend = "jsonfile"
data_dir = "/tmp/ledger"

[execution]
fee_rate = 0.002

[tpsl]
tp1_percent = 25.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "check", cfg.Mode)
	assert.Equal(t, "/tmp/ledger", cfg.Ledger.DataDir)
	assert.Equal(t, 0.002, cfg.Execution.FeeRate)
	assert.Equal(t, 25.0, cfg.TPSL.TP1Percent)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10000.0, cfg.Profile.DefaultBalance)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeTempTOML(t, `mode = "server"`)

	t.Setenv("PAPERBOT_SERVER_PORT", "9001")
	t.Setenv("PAPERBOT_LEDGER_BACKEND", "postgres")
	t.Setenv("PAPERBOT_DATABASE_DSN", "postgres://u:p@db/paperbot")
	t.Setenv("PAPERBOT_NOTIFY_EVENTS", "order_filled, sl_hit")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Ledger.Backend)
	assert.Equal(t, "postgres://u:p@db/paperbot", cfg.Database.DSN)
	assert.Equal(t, []string{"order_filled", "sl_hit"}, cfg.Notify.Events)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "full" }, "unknown mode"},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "sqlite" }, "unknown backend"},
		{"missing data dir", func(c *Config) { c.Ledger.DataDir = " " }, "data_dir"},
		{"positive stop loss", func(c *Config) { c.TPSL.StopLossPercent = 10 }, "stop_loss_percent"},
		{"zero balance", func(c *Config) { c.Profile.DefaultBalance = 0 }, "default_balance"},
		{"bad latency bounds", func(c *Config) {
			c.Execution.LatencyMinMs = 500
			c.Execution.LatencyMaxMs = 100
		}, "latency"},
		{"rate limit without redis", func(c *Config) { c.Server.RateLimit = 100 }, "requires redis"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantSub)
		})
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.Redis.Password = "redispw"
	cfg.S3.SecretKey = "sekrit"
	cfg.Server.APIKey = "token"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// The original is untouched.
	assert.Equal(t, "hunter2", cfg.Database.Password)
}
