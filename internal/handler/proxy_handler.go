// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/archbuilder/internal/middleware"
	"github.com/hitoshi/archbuilder/internal/model"
	"github.com/hitoshi/archbuilder/internal/security"
)

const (
	// defaultProxyTimeout はバックエンド呼び出しの待機上限。
	defaultProxyTimeout = 30 * time.Second
	// maxProxyBodySize はバックエンドレスポンスの読み取り上限（1MB）。
	maxProxyBodySize = 1 << 20
)

// hopByHopHeaders はプロキシで転送しないヘッダー（RFC 7230 6.1）。
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyMetrics はプロキシのメトリクスを記録するインターフェース。
type ProxyMetrics interface {
	RecordProxyRequest(route string, statusCode int)
}

// ProxyConfig はProxyHandlerの設定。
type ProxyConfig struct {
	// BackendURL はサーバー側から見たバックエンドAPIのベースURL。
	BackendURL string
	// Client はバックエンド呼び出しに使うHTTPクライアント。nilの場合は30秒タイムアウトのクライアント。
	Client *http.Client
	// MaxErrorText はJSON以外のエラー本文を埋め込む際の最大文字数。
	MaxErrorText int
	// TrustedProxies はX-Forwarded-Forを引き継ぐ接続元。それ以外からの値は接続相手で置き換える。
	TrustedProxies middleware.TrustedProxies
	Metrics        ProxyMetrics
	Logger         *slog.Logger
}

// ProxyHandler はブラウザからの認証リクエストをバックエンドへ中継する。
// バックエンドがJSON以外を返した場合は、元のステータスのまま統一エラーフォーマットに変換する。
type ProxyHandler struct {
	backend   *url.URL
	client    *http.Client
	sanitizer *security.TextSanitizer
	trusted   middleware.TrustedProxies
	metrics   ProxyMetrics
	logger    *slog.Logger
}

// NewProxyHandler はProxyHandlerを生成する。BackendURLが絶対URLでない場合はエラーを返す。
func NewProxyHandler(cfg ProxyConfig) (*ProxyHandler, error) {
	backend, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if backend.Scheme == "" || backend.Host == "" {
		return nil, fmt.Errorf("backend URL must be absolute: %q", cfg.BackendURL)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultProxyTimeout}
	}
	// リダイレクトはブラウザに判断させるため、そのまま返す
	proxyClient := *client
	proxyClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ProxyHandler{
		backend:   backend,
		client:    &proxyClient,
		sanitizer: security.NewTextSanitizer(cfg.MaxErrorText),
		trusted:   cfg.TrustedProxies,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

// Google はGoogleログインのリクエストを中継する。
// POST /api/auth/google → /auth/google
func (h *ProxyHandler) Google(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, "google", "/auth/google")
}

// Login はメールアドレスでのログインリクエストを中継する。
// POST /api/auth/login → /auth/login
func (h *ProxyHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, "login", "/auth/login")
}

func (h *ProxyHandler) forward(w http.ResponseWriter, r *http.Request, route, backendPath string) {
	start := time.Now()
	requestID := middleware.RequestIDFromContext(r.Context())

	// 1. バックエンドへのリクエストを組み立てる
	target := *h.backend
	target.Path = strings.TrimRight(h.backend.Path, "/") + backendPath
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		h.logger.Error("failed to build proxy request",
			slog.String("route", route),
			slog.String("error", err.Error()),
		)
		h.record(route, http.StatusInternalServerError)
		middleware.WriteInternalServerError(w)
		return
	}
	outReq.ContentLength = r.ContentLength
	copyHeaders(outReq.Header, r.Header)
	// 圧縮の解除はTransportに任せる
	outReq.Header.Del("Accept-Encoding")
	outReq.Header.Set("X-Forwarded-For", h.trusted.ForwardedFor(r))
	if requestID != "" {
		outReq.Header.Set(middleware.RequestIDHeader, requestID)
	}

	// 2. バックエンドを呼び出す
	resp, err := h.client.Do(outReq)
	if err != nil {
		h.logger.Error("backend unreachable",
			slog.String("route", route),
			slog.String("backend", target.Redacted()),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		h.record(route, http.StatusBadGateway)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewBackendUnavailableError())
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBodySize+1))
	if err != nil {
		h.logger.Error("failed to read backend response",
			slog.String("route", route),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		h.record(route, http.StatusBadGateway)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewBackendUnavailableError())
		return
	}

	// 3. レスポンスを返す
	if len(body) > maxProxyBodySize {
		h.streamOversized(w, resp, body, route, requestID)
		return
	}
	isJSON := json.Valid(body)
	switch {
	case !bodyAllowed(resp.StatusCode):
		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
	case isJSON:
		copyHeaders(w.Header(), resp.Header)
		w.Header().Del("Content-Length")
		w.WriteHeader(resp.StatusCode)
		w.Write(body)
	default:
		// JSON以外はステータスを維持したまま統一エラーフォーマットに変換する
		passSetCookie(w.Header(), resp.Header)
		text := h.sanitizer.Sanitize(string(body))
		middleware.WriteErrorResponse(w, resp.StatusCode, model.NewUpstreamError(text, resp.StatusCode))
	}

	h.record(route, resp.StatusCode)
	h.logger.Info("proxy request completed",
		slog.String("route", route),
		slog.Int("status", resp.StatusCode),
		slog.Bool("json", isJSON),
		slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
		slog.String("request_id", requestID),
	)
}

// streamOversized は読み取り上限を超えたレスポンスを判定・変換せずにそのまま中継する。
// headには読み取り済みの先頭部分を渡す。
func (h *ProxyHandler) streamOversized(w http.ResponseWriter, resp *http.Response, head []byte, route, requestID string) {
	copyHeaders(w.Header(), resp.Header)
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)

	written, err := w.Write(head)
	if err == nil {
		var n int64
		n, err = io.Copy(w, resp.Body)
		written += int(n)
	}
	h.record(route, resp.StatusCode)
	if err != nil {
		h.logger.Error("failed to stream backend response",
			slog.String("route", route),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("proxy request streamed",
		slog.String("route", route),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", written),
		slog.String("request_id", requestID),
	)
}

func (h *ProxyHandler) record(route string, status int) {
	if h.metrics != nil {
		h.metrics.RecordProxyRequest(route, status)
	}
}

// copyHeaders はhop-by-hopヘッダーを除いてsrcをdstにコピーする。
// Connectionヘッダーで指定されたヘッダーも除く。
func copyHeaders(dst, src http.Header) {
	skip := make(map[string]bool, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		skip[h] = true
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				skip[http.CanonicalHeaderKey(name)] = true
			}
		}
	}

	for k, vs := range src {
		if skip[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// passSetCookie はエラー変換時にもバックエンドのSet-Cookieを引き継ぐ。
func passSetCookie(dst, src http.Header) {
	for _, v := range src.Values("Set-Cookie") {
		dst.Add("Set-Cookie", v)
	}
}

// bodyAllowed はステータスコードがレスポンスボディを持てるかどうかを返す。
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
