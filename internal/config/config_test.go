package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("AUTH_RESET_TOKEN_TTL_MINUTES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.App.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.App.AllowedOrigins)
	assert.Equal(t, 64, cfg.Realtime.SendBuffer)
	assert.Equal(t, 15*time.Minute, cfg.Auth.ResetTokenTTL())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_HOST", "127.0.0.1")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("REALTIME_INBOUND_RATE", "2.5")
	t.Setenv("COMPOSER_TIMEOUT_SECONDS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.App.Addr())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.App.AllowedOrigins)
	assert.InDelta(t, 2.5, cfg.Realtime.InboundRate, 0.0001)
	assert.Equal(t, 3*time.Second, cfg.Composer.Timeout())
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateProductionSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
}

func TestValidateBuffers(t *testing.T) {
	cfg := Config{
		Realtime:     RealtimeConfig{SendBuffer: 0, MaxMessageBytes: 1, InboundRate: 1, InboundBurst: 1},
		Notification: NotificationConfig{Workers: 1, QueueSize: 1},
	}
	assert.Error(t, cfg.Validate())

	cfg.Realtime.SendBuffer = 8
	assert.NoError(t, cfg.Validate())
}
