package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/archbuilder/internal/model"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(rl.Stop)
	return rl
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		Rate:            2,
		Burst:           5,
		CleanupInterval: 1 * time.Minute,
	})

	handlerCallCount := 0
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("192.0.2.1:1234"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		Rate:            0.5, // 2秒に1トークン
		Burst:           2,
		CleanupInterval: 1 * time.Minute,
	})

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("192.0.2.1:1234"))
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.1:1234"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After should be integer, got %q", resp.Header.Get("Retry-After"))
	}
	if retryAfter != 2 {
		t.Errorf("Retry-After = %d, want 2", retryAfter)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimitExceeded {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimitExceeded)
	}
	if body.Message == "" {
		t.Error("message should not be empty")
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		Rate:            0.1,
		Burst:           1,
		CleanupInterval: 1 * time.Minute,
	})

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, requestFrom("192.0.2.1:1234"))
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, requestFrom("192.0.2.1:5678"))
	w3 := httptest.NewRecorder()
	handler.ServeHTTP(w3, requestFrom("192.0.2.2:1234"))

	if w1.Code != http.StatusOK {
		t.Errorf("client 1 first request: status = %d, want %d", w1.Code, http.StatusOK)
	}
	// 同一IPはポートが異なっても同じリミッター
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("client 1 second request: status = %d, want %d", w2.Code, http.StatusTooManyRequests)
	}
	if w3.Code != http.StatusOK {
		t.Errorf("client 2 request: status = %d, want %d", w3.Code, http.StatusOK)
	}
	if got := rl.LimiterCount(); got != 2 {
		t.Errorf("LimiterCount = %d, want 2", got)
	}
}

func TestRateLimitMiddleware_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		Rate:            2.0 / 60.0,
		Burst:           2,
		CleanupInterval: 1 * time.Minute,
	})

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 同じ接続元がリクエストごとにX-Forwarded-Forを変えても同じリミッターを使う
	allowed := 0
	for i := 0; i < 50; i++ {
		req := requestFrom("203.0.113.9:4000")
		req.Header.Set("X-Forwarded-For", "10.0.0."+strconv.Itoa(i+1))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			allowed++
		}
	}

	if allowed != 2 {
		t.Errorf("allowed = %d of 50, want 2", allowed)
	}
	if got := rl.LimiterCount(); got != 1 {
		t.Errorf("LimiterCount = %d, want 1", got)
	}
}

func TestRateLimitMiddleware_TrustedProxyUsesForwardedClient(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies() error = %v", err)
	}
	rl := newTestRateLimiter(t, RateLimiterConfig{
		Rate:            0.1,
		Burst:           1,
		CleanupInterval: 1 * time.Minute,
		TrustedProxies:  trusted,
	})

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 信頼済みプロキシ経由の別々のクライアントは個別に制限される
	for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
		req := requestFrom("10.0.0.5:8080")
		req.Header.Set("X-Forwarded-For", client)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("client %s: status = %d, want %d", client, w.Code, http.StatusOK)
		}
	}
	if got := rl.LimiterCount(); got != 2 {
		t.Errorf("LimiterCount = %d, want 2", got)
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		Rate:            2,
		Burst:           5,
		CleanupInterval: 50 * time.Millisecond, // テスト用に短く
	})

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1:1234"))

	if rl.LimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// TTLはCleanupIntervalの2倍（100ms）
	time.Sleep(300 * time.Millisecond)

	if count := rl.LimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(10), nil)
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	tests := []struct {
		perMinute int
		wantBurst int
	}{
		{10, 10},
		{60, 60},
		{0, 10},
		{-5, 10},
	}

	for _, tt := range tests {
		cfg := DefaultRateLimiterConfig(tt.perMinute)
		if cfg.Burst != tt.wantBurst {
			t.Errorf("DefaultRateLimiterConfig(%d).Burst = %d, want %d", tt.perMinute, cfg.Burst, tt.wantBurst)
		}
		wantRate := float64(tt.wantBurst) / 60.0
		if float64(cfg.Rate) != wantRate {
			t.Errorf("DefaultRateLimiterConfig(%d).Rate = %f, want %f", tt.perMinute, cfg.Rate, wantRate)
		}
		if cfg.CleanupInterval != 5*time.Minute {
			t.Errorf("CleanupInterval = %v, want %v", cfg.CleanupInterval, 5*time.Minute)
		}
	}
}
