// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL  string        `env:"DATABASE_URL,required,notEmpty"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Session / Cookie
	SessionCookieName      string        `env:"SESSION_COOKIE_NAME" envDefault:"session_id"`
	CookieDomain           string        `env:"COOKIE_DOMAIN"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitCreate  int `env:"RATE_LIMIT_CREATE" envDefault:"10"`

	// Notify
	NotifyQueueSize      int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
	NotifyWorkers        int           `env:"NOTIFY_WORKERS" envDefault:"2"`
	NotifyTimeout        time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	NotifyMaxAttempts    int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`
	NotifyRetryBase      time.Duration `env:"NOTIFY_RETRY_BASE" envDefault:"2s"`
	NotifyRatePerSec     float64       `env:"NOTIFY_RATE_PER_SEC" envDefault:"5"`
	NotifyWebhookURL     string        `env:"NOTIFY_WEBHOOK_URL"`
	NotifyAllowPrivateIP bool          `env:"NOTIFY_ALLOW_PRIVATE_IP" envDefault:"false"`

	// 派生値
	CookieSecure bool `env:"-"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	return cfg, nil
}

func (c *Config) validate() error {
	var invalid []string
	if c.StoreTimeout <= 0 {
		invalid = append(invalid, "STORE_TIMEOUT")
	}
	if c.NotifyQueueSize < 1 {
		invalid = append(invalid, "NOTIFY_QUEUE_SIZE")
	}
	if c.NotifyWorkers < 1 {
		invalid = append(invalid, "NOTIFY_WORKERS")
	}
	if c.NotifyTimeout <= 0 {
		invalid = append(invalid, "NOTIFY_TIMEOUT")
	}
	if c.NotifyMaxAttempts < 1 {
		invalid = append(invalid, "NOTIFY_MAX_ATTEMPTS")
	}
	if c.NotifyRatePerSec <= 0 {
		invalid = append(invalid, "NOTIFY_RATE_PER_SEC")
	}
	if c.RateLimitGeneral < 1 {
		invalid = append(invalid, "RATE_LIMIT_GENERAL")
	}
	if c.RateLimitCreate < 1 {
		invalid = append(invalid, "RATE_LIMIT_CREATE")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment variables: %v", invalid)
	}
	return nil
}
