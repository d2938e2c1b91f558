// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	// APIBaseURL はサーバー側（プロキシ）から見たバックエンドAPIのベースURL。
	APIBaseURL string
	// PublicAPIBaseURL はクライアント側（CLI・リクエストパイプライン）から見たベースURL。
	// 未設定の場合はAPIBaseURLと同じ値を使う。
	PublicAPIBaseURL string

	// Request
	RequestTimeout time.Duration

	// Credential
	TokenStorePath string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit（req/min/IP）
	RateLimitAuth int
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのIPアドレスまたはCIDR。
	// 空の場合は接続元アドレスのみでクライアントを区別する。
	TrustedProxies []string

	// Proxy
	ProxyMaxErrorText int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// URLとして解釈できない値が指定された場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = getEnvString("API_BASE_URL", "http://localhost:8000")
	cfg.PublicAPIBaseURL = getEnvString("PUBLIC_API_BASE_URL", cfg.APIBaseURL)

	var invalid []string
	if !isAbsoluteURL(cfg.APIBaseURL) {
		invalid = append(invalid, "API_BASE_URL")
	}
	if !isAbsoluteURL(cfg.PublicAPIBaseURL) {
		invalid = append(invalid, "PUBLIC_API_BASE_URL")
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("environment variables must be absolute http(s) URLs: %v", invalid)
	}

	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second)
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive: %s", cfg.RequestTimeout)
	}
	cfg.TokenStorePath = getEnvString("TOKEN_STORE_PATH", defaultTokenStorePath())
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.TrustedProxies = getEnvList("TRUSTED_PROXIES")
	cfg.ProxyMaxErrorText = getEnvInt("PROXY_MAX_ERROR_TEXT", 500)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// defaultTokenStorePath はトークン保存ファイルの既定パスを返す。
// ユーザー設定ディレクトリが取得できない環境ではカレントディレクトリを使う。
func defaultTokenStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".archbuilder-token.json"
	}
	return filepath.Join(dir, "archbuilder", "token.json")
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
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

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
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
