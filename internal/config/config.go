// Package config loads the chat client's settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates the client settings.
type Config struct {
	API      APIConfig
	Broker   BrokerConfig
	Storage  StorageConfig
	Notify   NotifyConfig
	Listen   string
	Language string
}

// APIConfig describes the REST chat backend.
type APIConfig struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int
}

// BrokerConfig describes the STOMP-over-WebSocket endpoint.
type BrokerConfig struct {
	URL string
}

// StorageConfig selects where the session and the local mirror live.
type StorageConfig struct {
	DSN            string
	SessionBackend string // "db" or "redis"
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
}

// NotifyConfig configures inbound-message notifications.
type NotifyConfig struct {
	Bell           bool
	TelegramToken  string
	TelegramChatID int64
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Listen:   envOr("CHAT_LISTEN_ADDR", DefaultListenAddr),
		Language: envOr("CHAT_LANGUAGE", "en"),
	}

	var err error
	if cfg.API, err = loadAPIConfig(); err != nil {
		return nil, err
	}
	if cfg.Broker, err = loadBrokerConfig(cfg.API.BaseURL); err != nil {
		return nil, err
	}
	if cfg.Storage, err = loadStorageConfig(); err != nil {
		return nil, err
	}
	if cfg.Notify, err = loadNotifyConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIConfig() (APIConfig, error) {
	base := strings.TrimRight(envOr("NEARPROP_API_URL", "http://localhost:8080/api"), "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return APIConfig{}, fmt.Errorf("invalid NEARPROP_API_URL %q: %w", base, err)
	}

	timeout, err := envDuration("CHAT_HTTP_TIMEOUT", DefaultHTTPTimeout)
	if err != nil {
		return APIConfig{}, err
	}

	pageSize, err := envInt("CHAT_PAGE_SIZE", DefaultPageSize)
	if err != nil {
		return APIConfig{}, err
	}
	if pageSize <= 0 {
		return APIConfig{}, fmt.Errorf("invalid CHAT_PAGE_SIZE value: %d", pageSize)
	}

	return APIConfig{BaseURL: base, Timeout: timeout, PageSize: pageSize}, nil
}

// loadBrokerConfig derives ws(s)://host/ws from the API URL when
// NEARPROP_BROKER_URL is not set.
func loadBrokerConfig(apiBase string) (BrokerConfig, error) {
	raw := strings.TrimSpace(os.Getenv("NEARPROP_BROKER_URL"))
	if raw == "" {
		u, err := url.Parse(apiBase)
		if err != nil {
			return BrokerConfig{}, err
		}
		scheme := "ws"
		if u.Scheme == "https" {
			scheme = "wss"
		}
		raw = scheme + "://" + u.Host + "/ws"
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return BrokerConfig{}, fmt.Errorf("invalid NEARPROP_BROKER_URL %q", raw)
	}
	return BrokerConfig{URL: raw}, nil
}

func loadStorageConfig() (StorageConfig, error) {
	backend := strings.ToLower(envOr("CHAT_SESSION_BACKEND", "db"))
	if backend != "db" && backend != "redis" {
		return StorageConfig{}, fmt.Errorf("invalid CHAT_SESSION_BACKEND value: %q", backend)
	}

	db, err := envInt("REDIS_DB", 0)
	if err != nil {
		return StorageConfig{}, err
	}

	return StorageConfig{
		DSN:            envOr("CHAT_STORAGE_DSN", DefaultStorageDSN),
		SessionBackend: backend,
		RedisAddr:      envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        db,
	}, nil
}

func loadNotifyConfig() (NotifyConfig, error) {
	bell, err := envBool("CHAT_BELL", true)
	if err != nil {
		return NotifyConfig{}, err
	}

	cfg := NotifyConfig{
		Bell:          bell,
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
	}
	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return NotifyConfig{}, fmt.Errorf("invalid TELEGRAM_CHAT_ID value: %q", raw)
		}
		cfg.TelegramChatID = id
	}
	return cfg, nil
}

// TelegramEnabled reports whether both the bot token and target chat are set.
func (c NotifyConfig) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return v, nil
}
