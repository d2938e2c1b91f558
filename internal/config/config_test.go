package config

import (
	"path/filepath"
	"testing"
	"time"
)

// clearEnvVars は外部環境の影響を受けないように関連する環境変数を空にする。
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"API_BASE_URL",
		"PUBLIC_API_BASE_URL",
		"REQUEST_TIMEOUT",
		"TOKEN_STORE_PATH",
		"SERVER_PORT",
		"CORS_ALLOWED_ORIGIN",
		"RATE_LIMIT_AUTH",
		"TRUSTED_PROXIES",
		"PROXY_MAX_ERROR_TEXT",
		"LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "http://localhost:8000")
	}
	if cfg.PublicAPIBaseURL != cfg.APIBaseURL {
		t.Errorf("PublicAPIBaseURL = %q, want %q", cfg.PublicAPIBaseURL, cfg.APIBaseURL)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 30*time.Second)
	}
	if cfg.TokenStorePath == "" {
		t.Error("TokenStorePath should have a default value")
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "3000")
	}
	if cfg.CORSAllowedOrigin != "http://localhost:3000" {
		t.Errorf("CORSAllowedOrigin = %q, want %q", cfg.CORSAllowedOrigin, "http://localhost:3000")
	}
	if cfg.RateLimitAuth != 10 {
		t.Errorf("RateLimitAuth = %d, want %d", cfg.RateLimitAuth, 10)
	}
	if cfg.ProxyMaxErrorText != 500 {
		t.Errorf("ProxyMaxErrorText = %d, want %d", cfg.ProxyMaxErrorText, 500)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnvVars(t)
	tokenPath := filepath.Join(t.TempDir(), "token.json")

	t.Setenv("API_BASE_URL", "http://backend:8000")
	t.Setenv("PUBLIC_API_BASE_URL", "https://api.example.com")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("TOKEN_STORE_PATH", tokenPath)
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("CORS_ALLOWED_ORIGIN", "https://app.example.com")
	t.Setenv("RATE_LIMIT_AUTH", "30")
	t.Setenv("PROXY_MAX_ERROR_TEXT", "200")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, ,192.0.2.7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIBaseURL != "http://backend:8000" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "http://backend:8000")
	}
	if cfg.PublicAPIBaseURL != "https://api.example.com" {
		t.Errorf("PublicAPIBaseURL = %q, want %q", cfg.PublicAPIBaseURL, "https://api.example.com")
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 5*time.Second)
	}
	if cfg.TokenStorePath != tokenPath {
		t.Errorf("TokenStorePath = %q, want %q", cfg.TokenStorePath, tokenPath)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.CORSAllowedOrigin != "https://app.example.com" {
		t.Errorf("CORSAllowedOrigin = %q, want %q", cfg.CORSAllowedOrigin, "https://app.example.com")
	}
	if cfg.RateLimitAuth != 30 {
		t.Errorf("RateLimitAuth = %d, want %d", cfg.RateLimitAuth, 30)
	}
	if cfg.ProxyMaxErrorText != 200 {
		t.Errorf("ProxyMaxErrorText = %d, want %d", cfg.ProxyMaxErrorText, 200)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[0] != "10.0.0.0/8" || cfg.TrustedProxies[1] != "192.0.2.7" {
		t.Errorf("TrustedProxies = %v, want [10.0.0.0/8 192.0.2.7]", cfg.TrustedProxies)
	}
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("REQUEST_TIMEOUT", "thirty")
	t.Setenv("RATE_LIMIT_AUTH", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 30*time.Second)
	}
	if cfg.RateLimitAuth != 10 {
		t.Errorf("RateLimitAuth = %d, want %d", cfg.RateLimitAuth, 10)
	}
}

func TestLoad_InvalidAPIBaseURL_ReturnsError(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("API_BASE_URL", "backend:8000/api")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid API_BASE_URL, got nil")
	}
}

func TestLoad_InvalidPublicAPIBaseURL_ReturnsError(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("PUBLIC_API_BASE_URL", "ftp://files.example.com")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid PUBLIC_API_BASE_URL, got nil")
	}
}

func TestLoad_NonPositiveRequestTimeout_ReturnsError(t *testing.T) {
	for _, v := range []string{"0s", "-5s"} {
		t.Run(v, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv("REQUEST_TIMEOUT", v)

			cfg, err := Load()
			if err == nil {
				t.Fatalf("expected error for REQUEST_TIMEOUT=%s, got config %+v", v, cfg)
			}
		})
	}
}
