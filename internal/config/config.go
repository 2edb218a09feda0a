package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストアのバックエンド種別
const (
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
	StoreBackendRedis    = "redis"
)

// 永続化ポリシー
const (
	PersistenceStrict     = "strict"
	PersistenceBestEffort = "best_effort"
)

// Telegramの更新受信モード
const (
	TelegramModePolling = "polling"
	TelegramModeWebhook = "webhook"
)

// DefaultGeminiModels は試行するGeminiモデルのデフォルト順序。
var DefaultGeminiModels = []string{
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-pro",
	"models/gemini-1.5-flash",
	"models/gemini-1.5-pro",
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Telegram
	BotToken              string
	AdminID               string
	TelegramAPIURL        string
	TelegramMode          string
	TelegramWebhookSecret string
	PollTimeout           time.Duration
	MaxConcurrentUpdates  int

	// Gemini
	GeminiAPIKey         string
	GeminiModels         []string
	GeminiBaseURL        string
	GeminiAttemptTimeout time.Duration
	GeminiRateLimit      int
	UseAIInterpretations bool

	// Store
	StoreBackend    string
	UserDataFile    string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisKey        string
	PersistenceMode string

	// Eligibility
	Timezone string

	// Rate Limit
	RateLimitCommands int

	// Server
	ServerPort string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}

	cfg.StoreBackend = getEnvString("STORE_BACKEND", StoreBackendFile)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StoreBackend == StoreBackendPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TelegramMode = getEnvString("TELEGRAM_MODE", TelegramModePolling)
	cfg.TelegramWebhookSecret = os.Getenv("TELEGRAM_WEBHOOK_SECRET")
	if cfg.TelegramMode == TelegramModeWebhook && cfg.TelegramWebhookSecret == "" {
		missing = append(missing, "TELEGRAM_WEBHOOK_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AdminID = strings.TrimSpace(os.Getenv("ADMIN_ID"))
	cfg.TelegramAPIURL = getEnvString("TELEGRAM_API_URL", "https://api.telegram.org")
	cfg.PollTimeout = getEnvDuration("POLL_TIMEOUT", 30*time.Second)
	cfg.MaxConcurrentUpdates = getEnvInt("MAX_CONCURRENT_UPDATES", 8)

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModels = getEnvList("GEMINI_MODELS", DefaultGeminiModels)
	cfg.GeminiBaseURL = getEnvString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	cfg.GeminiAttemptTimeout = getEnvDuration("GEMINI_ATTEMPT_TIMEOUT", 4*time.Second)
	cfg.GeminiRateLimit = getEnvInt("GEMINI_RATE_LIMIT_PER_MIN", 60)
	cfg.UseAIInterpretations = getEnvBool("USE_AI_INTERPRETATIONS", true)

	cfg.UserDataFile = getEnvString("USER_DATA_FILE", "data/users/users_data.json")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RedisKey = getEnvString("REDIS_KEY", "fortunebot:users")
	cfg.PersistenceMode = getEnvString("PERSISTENCE_MODE", PersistenceStrict)

	cfg.Timezone = getEnvString("TIMEZONE", "Local")
	cfg.RateLimitCommands = getEnvInt("RATE_LIMIT_COMMANDS", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は列挙値の妥当性を検証する。
func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreBackendFile, StoreBackendPostgres, StoreBackendRedis:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be one of file, postgres, redis", c.StoreBackend)
	}

	switch c.PersistenceMode {
	case PersistenceStrict, PersistenceBestEffort:
	default:
		return fmt.Errorf("invalid PERSISTENCE_MODE %q: must be strict or best_effort", c.PersistenceMode)
	}

	switch c.TelegramMode {
	case TelegramModePolling, TelegramModeWebhook:
	default:
		return fmt.Errorf("invalid TELEGRAM_MODE %q: must be polling or webhook", c.TelegramMode)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

// Location はTIMEZONEに対応するtime.Locationを返す。
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// AIConfigured はGemini APIキーが設定されているかどうかを返す。
func (c *Config) AIConfigured() bool {
	return c.GeminiAPIKey != ""
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

// getEnvList はカンマ区切りの環境変数を読み込む。空要素は除外する。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		out := make([]string, len(defaultVal))
		copy(out, defaultVal)
		return out
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultVal...)
	}
	return out
}
