package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 台帳ストアの種別
const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMemory   = "memory"
)

// デフォルトのリッスンポート
const (
	DefaultGatewayPort = "8080"
	DefaultServicePort = "3001"
)

// DefaultCatalogAPIURL はTheCocktailDBの公開APIのベースURL。
const DefaultCatalogAPIURL = "https://www.thecocktaildb.com/api/json/v1/1"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string // 未設定の場合は空。起動モードごとのデフォルトを使う
	BaseURL    string

	// Logging
	LogLevel string

	// Upstream
	AuthServiceURL     string
	CocktailServiceURL string
	CatalogAPIURL      string
	UpstreamTimeout    time.Duration

	// Circuit Breaker
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration

	// Sampler
	SamplerExcludeHistory bool

	// Identity
	JWTSecret string

	// Ledger
	LedgerBackend string
	DatabaseURL   string
	RedisURL      string

	// Rate Limit
	RateLimitGeneral int
	RateLimitRecord  int

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// ゲートウェイはすべての値にデフォルトを持つため、ここでは必須チェックを行わない。
// バックエンドサービスの必須項目はValidateServiceで検証する。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.AuthServiceURL = trimBase(getEnvString("AUTH_SERVICE_URL", "http://localhost:8000"))
	cfg.CocktailServiceURL = trimBase(getEnvString("COCKTAIL_SERVICE_URL", "http://localhost:3001/cocktail"))
	cfg.CatalogAPIURL = trimBase(getEnvString("CATALOG_API_URL", DefaultCatalogAPIURL))
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)

	cfg.BreakerFailureThreshold = getEnvInt("BREAKER_FAILURE_THRESHOLD", 5)
	cfg.BreakerOpenTimeout = getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second)

	cfg.SamplerExcludeHistory = getEnvBool("SAMPLER_EXCLUDE_HISTORY", false)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	cfg.LedgerBackend = strings.ToLower(getEnvString("LEDGER_BACKEND", LedgerPostgres))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRecord = getEnvInt("RATE_LIMIT_RECORD", 60)

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	switch cfg.LedgerBackend {
	case LedgerPostgres, LedgerRedis, LedgerMemory:
	default:
		return nil, fmt.Errorf("unsupported LEDGER_BACKEND: %q", cfg.LedgerBackend)
	}

	return cfg, nil
}

// ValidateService はバックエンドサービスの起動に必要な環境変数を検証する。
// 未設定の必須項目はまとめてエラーで返す。
func (c *Config) ValidateService() error {
	var missing []string

	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	switch c.LedgerBackend {
	case LedgerPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case LedgerRedis:
		if c.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

// PortFor は起動モードに応じたリッスンポートを返す。
// SERVER_PORTが設定されていればそれを優先する。
func (c *Config) PortFor(service bool) string {
	if c.ServerPort != "" {
		return c.ServerPort
	}
	if service {
		return DefaultServicePort
	}
	return DefaultGatewayPort
}

// trimBase はベースURL末尾のスラッシュを取り除く。
func trimBase(u string) string {
	return strings.TrimRight(u, "/")
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
