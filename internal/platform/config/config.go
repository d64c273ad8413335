// Package config loads application configuration from environment variables.
// All variables use the LEARN_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Session   SessionConfig
	Telegram  TelegramConfig
	WebSocket WebSocketConfig
	Admin     AdminConfig
	Images    ImagesConfig
	Log       LogConfig
	// ContentSeedPath is a directory of curriculum bundles imported at startup.
	// Empty disables seeding.
	ContentSeedPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL keeps all
// content in memory.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings.
type CacheConfig struct {
	URL string
}

// SessionConfig selects where wizard and test sessions live.
type SessionConfig struct {
	Backend  string // "memory" or "redis"
	TTLHours int
}

// TTL returns the session lifetime.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string
}

// WebSocketConfig enables the browser chat channel on /ws.
type WebSocketConfig struct {
	Enabled bool
}

// AdminConfig holds the administrator registration secret. When both are set
// the hash wins.
type AdminConfig struct {
	SecretCode string
	SecretHash string // bcrypt
}

// ImagesConfig holds uploaded image storage settings.
type ImagesConfig struct {
	Dir     string
	Default string
	MaxSide int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with LEARN_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LEARN_SERVER_PORT", 8080),
			Host: envStr("LEARN_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("LEARN_DATABASE_URL", ""),
			MaxConns: envInt("LEARN_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("LEARN_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL: envStr("LEARN_CACHE_URL", "redis://localhost:6379"),
		},
		Session: SessionConfig{
			Backend:  strings.ToLower(envStr("LEARN_SESSION_BACKEND", "memory")),
			TTLHours: envInt("LEARN_SESSION_TTL_HOURS", 24),
		},
		Telegram: TelegramConfig{
			BotToken: envStr("LEARN_TELEGRAM_BOT_TOKEN", ""),
		},
		WebSocket: WebSocketConfig{
			Enabled: envBool("LEARN_WEBSOCKET_ENABLED", false),
		},
		Admin: AdminConfig{
			SecretCode: envStr("LEARN_ADMIN_SECRET_CODE", ""),
			SecretHash: envStr("LEARN_ADMIN_SECRET_HASH", ""),
		},
		Images: ImagesConfig{
			Dir:     envStr("LEARN_IMAGES_DIR", "./img"),
			Default: envStr("LEARN_IMAGES_DEFAULT", ""),
			MaxSide: envInt("LEARN_IMAGES_MAX_SIDE", 1280),
		},
		Log: LogConfig{
			Level:  envStr("LEARN_LOG_LEVEL", "info"),
			Format: envStr("LEARN_LOG_FORMAT", "json"),
		},
		ContentSeedPath: envStr("LEARN_CONTENT_SEED_PATH", ""),
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" && !c.WebSocket.Enabled {
		return fmt.Errorf("LEARN_TELEGRAM_BOT_TOKEN is required unless LEARN_WEBSOCKET_ENABLED is set")
	}

	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Cache.URL == "" {
			return fmt.Errorf("LEARN_CACHE_URL is required for the redis session backend")
		}
	default:
		return fmt.Errorf("LEARN_SESSION_BACKEND must be 'memory' or 'redis', got %q", c.Session.Backend)
	}

	if c.Session.TTLHours <= 0 {
		return fmt.Errorf("LEARN_SESSION_TTL_HOURS must be positive, got %d", c.Session.TTLHours)
	}

	if c.Images.MaxSide <= 0 {
		return fmt.Errorf("LEARN_IMAGES_MAX_SIDE must be positive, got %d", c.Images.MaxSide)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LEARN_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// HasAdminSecret reports whether administrator registration is possible.
func (c *Config) HasAdminSecret() bool {
	return c.Admin.SecretCode != "" || c.Admin.SecretHash != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
