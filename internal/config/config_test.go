package config_test

import (
	"testing"
	"time"

	"nearprop/chat/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"NEARPROP_API_URL", "NEARPROP_BROKER_URL", "CHAT_STORAGE_DSN", "CHAT_SESSION_BACKEND",
		"CHAT_PAGE_SIZE", "CHAT_HTTP_TIMEOUT", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "CHAT_BELL",
		"CHAT_LISTEN_ADDR", "REDIS_DB",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.API.BaseURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Broker.URL)
	assert.Equal(t, config.DefaultPageSize, cfg.API.PageSize)
	assert.Equal(t, config.DefaultHTTPTimeout, cfg.API.Timeout)
	assert.Equal(t, "db", cfg.Storage.SessionBackend)
	assert.Equal(t, config.DefaultStorageDSN, cfg.Storage.DSN)
	assert.Equal(t, config.DefaultListenAddr, cfg.Listen)
	assert.True(t, cfg.Notify.Bell)
	assert.False(t, cfg.Notify.TelegramEnabled())
}

func TestLoad_DerivesSecureBrokerURL(t *testing.T) {
	t.Setenv("NEARPROP_API_URL", "https://api.nearprop.in/api/")
	t.Setenv("NEARPROP_BROKER_URL", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.nearprop.in/api", cfg.API.BaseURL)
	assert.Equal(t, "wss://api.nearprop.in/ws", cfg.Broker.URL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CHAT_SESSION_BACKEND", "redis")
	t.Setenv("CHAT_PAGE_SIZE", "50")
	t.Setenv("CHAT_HTTP_TIMEOUT", "3s")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("CHAT_BELL", "false")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.SessionBackend)
	assert.Equal(t, 50, cfg.API.PageSize)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.Notify.TelegramEnabled())
	assert.Equal(t, int64(-1001), cfg.Notify.TelegramChatID)
	assert.False(t, cfg.Notify.Bell)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"CHAT_SESSION_BACKEND": "memcache",
		"CHAT_PAGE_SIZE":       "0",
		"TELEGRAM_CHAT_ID":     "chat",
		"NEARPROP_BROKER_URL":  "http://not-a-socket",
		"CHAT_HTTP_TIMEOUT":    "soon",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
