// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvProduction は本番モードを示すAPP_ENVの値。
const EnvProduction = "production"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Runtime
	AppEnv   string
	LogLevel string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
	ProviderTimeout    time.Duration

	// Session
	SessionSecret          string
	SessionStoreURL        string
	SessionMaxAge          time.Duration
	SessionTouchAfter      time.Duration
	SessionCleanupInterval time.Duration

	// Payment gateway
	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayAPIURL    string
	GatewayTimeout    time.Duration

	// Rate Limit (req/min/client)
	RateLimitPayment int

	// Server
	ServerPort string
	LandingURL string
	ProfileURL string

	// CORS
	CORSAllowedOrigin string
}

// MissingError は必須の環境変数が未設定であることを示す。
// 起動時に未設定の変数名をすべてまとめて報告する。
type MissingError struct {
	Names []string
}

// Error はerrorインターフェースを実装する。
func (e *MissingError) Error() string {
	return fmt.Sprintf("required environment variables are not set: %v", e.Names)
}

// IsProduction は本番モードで起動しているかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// CookieSecure はセッションCookieにSecure属性を付けるかを返す。本番モードのときのみ付与する。
func (c *Config) CookieSecure() bool {
	return c.IsProduction()
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は*MissingErrorを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.GoogleClientID = required("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = required("GOOGLE_CLIENT_SECRET")
	cfg.GoogleCallbackURL = required("GOOGLE_CALLBACK_URL")
	cfg.SessionSecret = required("SESSION_SECRET")
	cfg.RazorpayKeyID = required("RAZORPAY_KEY_ID")
	cfg.RazorpayKeySecret = required("RAZORPAY_KEY_SECRET")

	cfg.AppEnv = strings.ToLower(getEnvString("APP_ENV", "development"))

	// 本番モードではセッションの永続化が必須
	cfg.SessionStoreURL = os.Getenv("SESSION_STORE_URL")
	if cfg.SessionStoreURL == "" && cfg.IsProduction() {
		missing = append(missing, "SESSION_STORE_URL")
	}

	if len(missing) > 0 {
		return nil, &MissingError{Names: missing}
	}

	// Optional fields with defaults
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 24*time.Hour)
	cfg.SessionTouchAfter = getEnvDuration("SESSION_TOUCH_AFTER", 24*time.Hour)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.RazorpayAPIURL = strings.TrimRight(getEnvString("RAZORPAY_API_URL", "https://api.razorpay.com/v1"), "/")
	cfg.GatewayTimeout = getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second)
	cfg.RateLimitPayment = getEnvInt("RATE_LIMIT_PAYMENT", 30)
	cfg.ServerPort = getEnvString("PORT", "8080")
	cfg.LandingURL = getEnvString("LANDING_URL", "/")
	cfg.ProfileURL = getEnvString("PROFILE_URL", "/profile")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
