// Package apiclient はバックエンドAPIへの認証付きリクエストパイプラインを提供する。
//
// すべての呼び出しは同じ順序のステージを通る。
//
//	リクエスト: AttachAuth → SetCredentialsFlag → StripFormContentType
//	レスポンス: DecodeOrError → InvalidateOn401
//
// 各呼び出しは独立しており、順序付けや排他制御、リトライは行わない。
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout は1回の呼び出しの待機上限。
	DefaultTimeout = 30 * time.Second
	// maxResponseSize はレスポンスボディの読み取り上限（10MB）。
	maxResponseSize = 10 << 20
	// requestIDHeader はリクエストの追跡に使うヘッダー名。
	requestIDHeader = "X-Request-ID"
)

// supportedMethods はSendが受け付けるHTTPメソッド。
var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// MetricsRecorder はパイプラインのメトリクスを記録するインターフェース。
type MetricsRecorder interface {
	RecordAPIRequest(method, policyClass string, statusCode int, duration time.Duration)
	RecordAPIFailure(kind string)
	RecordCredentialInvalidation()
}

type noopRecorder struct{}

func (noopRecorder) RecordAPIRequest(string, string, int, time.Duration) {}
func (noopRecorder) RecordAPIFailure(string)                             {}
func (noopRecorder) RecordCredentialInvalidation()                       {}

// Credentials はパイプラインが使うトークンの保存先。credential.Storeが実装する。
type Credentials interface {
	TokenReader
	TokenClearer
}

// Config はClientの設定。
type Config struct {
	// BaseURL はバックエンドAPIのベースURL。パスを含んでもよい。
	BaseURL string
	// Timeout は1回の呼び出しの待機上限。0の場合はDefaultTimeout。
	Timeout time.Duration
	// Credentials はトークンの保存先。nilの場合は認証ヘッダーを付与しない。
	Credentials Credentials
	// Jar はクロスオリジンのCookie送受信に使うJar。nilの場合はCookieを扱わない。
	Jar http.CookieJar
	// Transport はHTTPトランスポート。nilの場合はhttp.DefaultTransport。
	Transport http.RoundTripper
	// Policies はエンドポイントごとのポリシー表。nilの場合はDefaultPolicyTable。
	Policies *PolicyTable
	Metrics  MetricsRecorder
	Logger   *slog.Logger
}

// Client は認証付きリクエストパイプライン。複数のgoroutineから同時に使用できる。
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	jar            http.CookieJar
	policies       *PolicyTable
	metrics        MetricsRecorder
	logger         *slog.Logger
	requestStages  []RequestStage
	responseStages []ResponseStage
}

// NewClient はClientを生成する。BaseURLが絶対URLでない場合はエラーを返す。
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	policies := cfg.Policies
	if policies == nil {
		policies = DefaultPolicyTable()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL: base,
		// Jarは設定しない。Cookieの送受信はWithCredentialsに従ってClient自身が行う。
		httpClient: &http.Client{
			Transport: cfg.Transport,
			Timeout:   timeout,
		},
		jar:      cfg.Jar,
		policies: policies,
		metrics:  metrics,
		logger:   logger,
	}

	var reader TokenReader
	var clearer TokenClearer
	if cfg.Credentials != nil {
		reader = cfg.Credentials
		clearer = cfg.Credentials
	}
	c.requestStages = []RequestStage{
		AttachAuth(reader),
		SetCredentialsFlag,
		StripFormContentType,
	}
	c.responseStages = []ResponseStage{
		DecodeOrError,
		InvalidateOn401(clearer, metrics.RecordCredentialInvalidation, logger),
	}
	return c, nil
}

// Response は2xxレスポンス。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode はJSONボディをvに展開する。ボディが空の場合は何もしない。
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Send はmethodとpathでバックエンドを呼び出す。bodyとheaderは省略可能。
func (c *Client) Send(ctx context.Context, method, path string, body any, header http.Header) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: method,
		Path:   path,
		Body:   body,
		Header: header,
	})
}

// DoJSON はDoを実行し、成功時のボディをoutに展開する。
func (c *Client) DoJSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return &RequestError{
			Kind:    KindBackend,
			Method:  strings.ToUpper(req.Method),
			Path:    req.Path,
			Status:  resp.Status,
			Message: "unexpected response format",
			Body:    resp.Body,
			Err:     err,
		}
	}
	return nil
}

// Do はリクエスト記述子に従ってバックエンドを1回だけ呼び出す。
// 2xx以外のレスポンス、通信失敗、タイムアウトはすべて*RequestErrorとして返す。
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if !supportedMethods[method] {
		c.metrics.RecordAPIFailure(string(KindClient))
		return nil, &RequestError{
			Kind:    KindClient,
			Method:  method,
			Path:    req.Path,
			Message: fmt.Sprintf("unsupported method: %q", req.Method),
		}
	}

	// 1. リクエストステージ
	out := &Outbound{
		Request: req,
		Policy:  c.policies.Lookup(req.Path),
		Header:  cloneHeader(req.Header),
		IsForm:  isForm(req.Body),
	}
	for _, stage := range c.requestStages {
		if err := stage(out); err != nil {
			return nil, c.clientError(method, req.Path, "failed to prepare request", err)
		}
	}

	// 2. ボディのエンコード
	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, c.clientError(method, req.Path, "failed to encode request body", err)
	}
	if out.IsForm || (contentType != "" && out.Header.Get("Content-Type") == "") {
		out.Header.Set("Content-Type", contentType)
	}

	// 3. HTTPリクエスト作成
	target := c.resolve(req.Path, req.Query)
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, c.clientError(method, req.Path, "failed to create request", err)
	}
	for k, vs := range out.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	requestID := httpReq.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		httpReq.Header.Set(requestIDHeader, requestID)
	}
	if out.WithCredentials && c.jar != nil {
		for _, ck := range c.jar.Cookies(target) {
			httpReq.AddCookie(ck)
		}
	}

	// 4. HTTPリクエスト実行
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(method, req.Path, requestID, time.Since(start), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	duration := time.Since(start)
	if err != nil {
		return nil, c.transportError(method, req.Path, requestID, duration, err)
	}
	if len(data) > maxResponseSize {
		c.metrics.RecordAPIFailure(string(KindBackend))
		c.logger.Warn("api response too large",
			slog.String("method", method),
			slog.String("path", req.Path),
			slog.Int("status", resp.StatusCode),
			slog.Int("limit_bytes", maxResponseSize),
			slog.String("request_id", requestID),
		)
		return nil, &RequestError{
			Kind:    KindBackend,
			Method:  method,
			Path:    req.Path,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("response too large (over %d bytes)", maxResponseSize),
		}
	}

	if out.WithCredentials && c.jar != nil {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			c.jar.SetCookies(target, cookies)
		}
	}

	// 5. レスポンスステージ
	in := &Inbound{
		Method: method,
		Path:   req.Path,
		Policy: out.Policy,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}
	for _, stage := range c.responseStages {
		stage(in)
	}

	c.metrics.RecordAPIRequest(method, out.Policy.Class(), resp.StatusCode, duration)

	attrs := []any{
		slog.String("method", method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
		slog.String("request_id", requestID),
	}
	if in.Err != nil {
		c.metrics.RecordAPIFailure(string(KindBackend))
		c.logger.Warn("api request failed", attrs...)
		return nil, in.Err
	}
	c.logger.Debug("api request completed", attrs...)
	return in.Response, nil
}

// resolve はベースURLにパスとクエリを連結する。
func (c *Client) resolve(path string, query url.Values) *url.URL {
	u := *c.baseURL
	rawPath := path
	rawQuery := ""
	if i := strings.Index(rawPath, "?"); i >= 0 {
		rawPath, rawQuery = rawPath[:i], rawPath[i+1:]
	}
	// pathはエスケープ済みの形で受け取る（例: /templates/a%2Fb）。
	escaped := strings.TrimRight(c.baseURL.EscapedPath(), "/") + "/" + strings.TrimLeft(rawPath, "/")
	if unescaped, err := url.PathUnescape(escaped); err == nil {
		u.Path = unescaped
		u.RawPath = escaped
	} else {
		u.Path = escaped
		u.RawPath = ""
	}

	if len(query) > 0 {
		q, _ := url.ParseQuery(rawQuery)
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	} else {
		u.RawQuery = rawQuery
	}
	return &u
}

func (c *Client) clientError(method, path, msg string, err error) error {
	c.metrics.RecordAPIFailure(string(KindClient))
	return &RequestError{
		Kind:    KindClient,
		Method:  method,
		Path:    path,
		Message: msg,
		Err:     err,
	}
}

// transportError はレスポンスを受信できなかった失敗を分類する。
func (c *Client) transportError(method, path, requestID string, duration time.Duration, err error) error {
	kind := KindTransport
	msg := "network error: backend unreachable"
	if isTimeout(err) {
		kind = KindTimeout
		msg = "request timed out"
	}

	c.metrics.RecordAPIFailure(string(kind))
	c.logger.Error("api request transport failure",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("kind", string(kind)),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
		slog.String("request_id", requestID),
		slog.String("error", err.Error()),
	)
	return &RequestError{
		Kind:    kind,
		Method:  method,
		Path:    path,
		Message: msg,
		Err:     err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}
