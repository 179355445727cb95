package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hitoshi/chatline/internal/chat"
	"github.com/hitoshi/chatline/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string
	LogLevel   string
	Timezone   string
	Location   *time.Location

	// Session
	SessionMaxAge int

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// WebSocket
	WSMaxConnections int
	WSSendTimeout    time.Duration
	WSSaveTimeout    time.Duration
	WSMaxInFlight    int
	WSReadLimit      int64
	WSPingInterval   time.Duration
	WSMessageRate    float64
	WSMessageBurst   int
	WSRequireSession bool

	// History
	HistoryLimit int

	// Relay
	RedisURL     string
	RedisChannel string

	// Cleanup
	MessageRetentionDays int
	CleanupInterval      time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.Timezone = getEnvString("TIMEZONE", "Local")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.WSMaxConnections = getEnvInt("WS_MAX_CONNECTIONS", 1000)
	cfg.WSSendTimeout = getEnvDuration("WS_SEND_TIMEOUT", 5*time.Second)
	cfg.WSSaveTimeout = getEnvDuration("WS_SAVE_TIMEOUT", 5*time.Second)
	cfg.WSMaxInFlight = getEnvInt("WS_MAX_IN_FLIGHT", 32)
	// 検証を通るメッセージより小さい上限は受け付けない
	cfg.WSReadLimit = max(getEnvInt64("WS_READ_LIMIT", chat.DefaultReadLimit), chat.DefaultReadLimit)
	cfg.WSPingInterval = getEnvDuration("WS_PING_INTERVAL", 30*time.Second)
	cfg.WSMessageRate = getEnvFloat("WS_MESSAGE_RATE", 5)
	cfg.WSMessageBurst = getEnvInt("WS_MESSAGE_BURST", 10)
	cfg.WSRequireSession = getEnvBool("WS_REQUIRE_SESSION", false)
	cfg.HistoryLimit = clampInt(getEnvInt("HISTORY_LIMIT", model.MaxHistoryLimit), 1, model.MaxHistoryLimit)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.RedisChannel = getEnvString("REDIS_CHANNEL", "chatline:messages")
	cfg.MessageRetentionDays = getEnvInt("MESSAGE_RETENTION_DAYS", 0)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// RelayEnabled はRedisによる中継が有効な場合にtrueを返す。
func (c *Config) RelayEnabled() bool {
	return c.RedisURL != ""
}

func clampInt(v, lower, upper int) int {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
