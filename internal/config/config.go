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
	// Backend
	DatabaseURL    string        `env:"DATABASE_URL"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`

	// Auth provider
	AuthURL       string `env:"AUTH_URL"`
	AuthAnonKey   string `env:"AUTH_ANON_KEY"`
	AuthJWTSecret string `env:"AUTH_JWT_SECRET"`

	// Session
	SessionMaxAge int `env:"SESSION_MAX_AGE" envDefault:"604800"`

	// Paywall
	PaywallFreePages int           `env:"PAYWALL_FREE_PAGES" envDefault:"5"`
	PaywallPersist   bool          `env:"PAYWALL_PERSIST"    envDefault:"false"`
	PaywallWindow    time.Duration `env:"PAYWALL_WINDOW"     envDefault:"720h"`

	// Creator search
	SearchCacheTTL           time.Duration `env:"SEARCH_CACHE_TTL"            envDefault:"5m"`
	SearchDebounce           time.Duration `env:"SEARCH_DEBOUNCE"             envDefault:"500ms"`
	SearchCacheSweepInterval time.Duration `env:"SEARCH_CACHE_SWEEP_INTERVAL" envDefault:"1m"`
	SearchGridPageSize       int           `env:"SEARCH_GRID_PAGE_SIZE"       envDefault:"30"`
	SearchListPageSize       int           `env:"SEARCH_LIST_PAGE_SIZE"       envDefault:"60"`

	// Avatar proxy
	AvatarMaxSize int64 `env:"AVATAR_MAX_SIZE" envDefault:"2097152"`

	// Rate Limit
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitReveal  int `env:"RATE_LIMIT_REVEAL"  envDefault:"20"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL"`
	StaticDir  string `env:"STATIC_DIR"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:5173"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"AUTH_URL", cfg.AuthURL},
		{"AUTH_ANON_KEY", cfg.AuthAnonKey},
		{"AUTH_JWT_SECRET", cfg.AuthJWTSecret},
		{"BASE_URL", cfg.BaseURL},
	}
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.PaywallFreePages < 0 {
		return nil, fmt.Errorf("PAYWALL_FREE_PAGES must not be negative: %d", cfg.PaywallFreePages)
	}
	if cfg.SearchGridPageSize <= 0 || cfg.SearchListPageSize <= 0 {
		return nil, fmt.Errorf("search page sizes must be positive: grid=%d list=%d",
			cfg.SearchGridPageSize, cfg.SearchListPageSize)
	}

	cfg.AuthURL = strings.TrimRight(cfg.AuthURL, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}
