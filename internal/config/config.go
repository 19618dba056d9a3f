package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Telegram
	TelegramBotToken        string        `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`
	TelegramBotUsername     string        `env:"TELEGRAM_BOT_USERNAME,required,notEmpty"`
	TelegramWebhookSecret   string        `env:"TELEGRAM_WEBHOOK_SECRET,required,notEmpty"`
	TelegramSignatureScheme string        `env:"TELEGRAM_SIGNATURE_SCHEME" envDefault:"widget"`
	TelegramAPIURL          string        `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	TelegramAPITimeout      time.Duration `env:"TELEGRAM_API_TIMEOUT" envDefault:"10s"`
	BotIDCacheTTL           time.Duration `env:"BOT_ID_CACHE_TTL" envDefault:"24h"`
	BotIDCacheSize          int           `env:"BOT_ID_CACHE_SIZE" envDefault:"64"`

	// Session
	SessionSecret     string `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge     int    `env:"SESSION_MAX_AGE" envDefault:"604800"`
	ShadowEmailDomain string `env:"SHADOW_EMAIL_DOMAIN" envDefault:"telegram.rentcam.local"`

	// Verification
	WebCodeTTL time.Duration `env:"WEB_CODE_TTL" envDefault:"24h"`
	BotCodeTTL time.Duration `env:"BOT_CODE_TTL" envDefault:"30m"`

	// Store retry
	StoreRetryAttempts int           `env:"STORE_RETRY_ATTEMPTS" envDefault:"3"`
	StoreRetryBackoff  time.Duration `env:"STORE_RETRY_BACKOFF" envDefault:"100ms"`

	// Rate Limit (req/min)
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitLogin   int `env:"RATE_LIMIT_LOGIN" envDefault:"20"`

	// Worker
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	AppURL     string `env:"APP_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// requiredEnvVars は未設定の場合に起動を中止する環境変数。
// Configのrequiredタグと一致させる。空白のみの値も未設定として扱うため、パース前に確認する。
var requiredEnvVars = []string{
	"DATABASE_URL",
	"TELEGRAM_BOT_TOKEN",
	"TELEGRAM_BOT_USERNAME",
	"TELEGRAM_WEBHOOK_SECRET",
	"SESSION_SECRET",
	"APP_URL",
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーで返す。
func Load() (*Config, error) {
	var missing []string
	for _, key := range requiredEnvVars {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.BotIDCacheSize <= 0 {
		return nil, fmt.Errorf("BOT_ID_CACHE_SIZE must be positive: %d", cfg.BotIDCacheSize)
	}
	if cfg.StoreRetryAttempts <= 0 {
		return nil, fmt.Errorf("STORE_RETRY_ATTEMPTS must be positive: %d", cfg.StoreRetryAttempts)
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive: %v", cfg.CleanupInterval)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.AppURL, "https://")

	return &cfg, nil
}
