package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func mustTrustedProxies(t *testing.T, values ...string) TrustedProxies {
	t.Helper()
	tp, err := ParseTrustedProxies(values)
	if err != nil {
		t.Fatalf("ParseTrustedProxies(%v) error = %v", values, err)
	}
	return tp
}

func TestParseTrustedProxies(t *testing.T) {
	tp := mustTrustedProxies(t, "10.0.0.0/8", " 192.0.2.7 ", "", "2001:db8::/32")
	if len(tp) != 3 {
		t.Fatalf("len = %d, want 3", len(tp))
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"192.0.2.7", true},
		{"192.0.2.8", false},
		{"2001:db8::1", true},
		{"::ffff:10.0.0.1", true},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		if got := tp.Contains(tt.ip); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	for _, v := range []string{"10.0.0.0/33", "example.com"} {
		if _, err := ParseTrustedProxies([]string{v}); err == nil {
			t.Errorf("ParseTrustedProxies(%q) expected error", v)
		}
	}
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	trusted := mustTrustedProxies(t, "10.0.0.0/8")

	tests := []struct {
		name       string
		trusted    TrustedProxies
		remoteAddr string
		xff        string
		want       string
	}{
		{"RemoteAddrのホスト部", nil, "192.0.2.1:1234", "", "192.0.2.1"},
		{"IPv6", nil, "[2001:db8::1]:443", "", "2001:db8::1"},
		{"ポートなしのRemoteAddr", nil, "192.0.2.9", "", "192.0.2.9"},
		{"信頼設定なしではX-Forwarded-Forを無視", nil, "192.0.2.1:1234", "203.0.113.5", "192.0.2.1"},
		{"信頼されない接続元のX-Forwarded-Forを無視", trusted, "192.0.2.1:1234", "203.0.113.5", "192.0.2.1"},
		{"信頼済みプロキシ経由", trusted, "10.0.0.1:80", "203.0.113.5", "203.0.113.5"},
		{"右から最初の信頼されないアドレス", trusted, "10.0.0.1:80", "198.51.100.1, 203.0.113.5, 10.0.0.2", "203.0.113.5"},
		{"全て信頼済みなら先頭", trusted, "10.0.0.1:80", "10.0.0.3, 10.0.0.2", "10.0.0.3"},
		{"X-Forwarded-Forなし", trusted, "10.0.0.1:80", "", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := tt.trusted.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrustedProxies_ForwardedFor(t *testing.T) {
	trusted := mustTrustedProxies(t, "10.0.0.0/8")

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"クライアントが付けた値は捨てる", "192.0.2.1:1234", "203.0.113.5", "192.0.2.1"},
		{"信頼済みプロキシからは追記", "10.0.0.1:80", "203.0.113.5", "203.0.113.5, 10.0.0.1"},
		{"信頼済みプロキシで既存値なし", "10.0.0.1:80", "", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := trusted.ForwardedFor(req); got != tt.want {
				t.Errorf("ForwardedFor() = %q, want %q", got, tt.want)
			}
		})
	}
}
