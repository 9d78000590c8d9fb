package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123")
	t.Setenv("ADMIN_EMAIL", "atelier@garage.test")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z9uPlU7hMsaIIq3Kp/kbS0zW")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 30, cfg.QuoteValidityDays)
	assert.Equal(t, 30, cfg.InvoiceDueDays)
	assert.Equal(t, 10, cfg.LoginRateLimit)
	assert.Equal(t, 72*time.Hour, cfg.IdempotencyRetention)
	assert.False(t, cfg.DBMigrate)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("QUOTE_VALIDITY_DAYS", "15")
	t.Setenv("DB_MIGRATE", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 15, cfg.QuoteValidityDays)
	assert.True(t, cfg.DBMigrate)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"short secret":    {"SESSION_SECRET", "short"},
		"zero validity":   {"QUOTE_VALIDITY_DAYS", "0"},
		"negative due":    {"INVOICE_DUE_DAYS", "-1"},
		"unknown format":  {"LOG_FORMAT", "xml"},
		"missing email":   {"ADMIN_EMAIL", ""},
		"non numeric int": {"LOGIN_RATE_LIMIT", "ten"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn", AppEnv: "staging"}, &buf)
	logger.Info("hidden")
	logger.Warn("visible", slog.String("number", "FA2026-000001"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "visible", line["msg"])
	assert.Equal(t, "staging", line["env"])
	assert.Equal(t, "FA2026-000001", line["number"])
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
