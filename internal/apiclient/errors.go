package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はRequestErrorの失敗分類。
type Kind string

const (
	// KindTransport はレスポンスを受信できなかった失敗（接続拒否、CORS拒否など）。
	KindTransport Kind = "transport"
	// KindTimeout は待機上限を超えた失敗。
	KindTimeout Kind = "timeout"
	// KindBackend はバックエンドが2xx以外のステータスを返した失敗。
	KindBackend Kind = "backend"
	// KindClient は送信前に検出した呼び出し側の誤り（未対応メソッドなど）。
	KindClient Kind = "client"
)

// RequestError はUIや呼び出し元に返す正規化済みのエラー。
// Statusはバックエンドからレスポンスを受信した場合のみ0以外になる。
type RequestError struct {
	Kind    Kind
	Method  string
	Path    string
	Status  int
	Message string
	Body    []byte
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.Path, e.Message, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsUnauthorized はerrがステータス401のRequestErrorかどうかを返す。
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// StatusCode はerrに含まれるHTTPステータスを返す。ステータスが無い場合は0を返す。
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// KindOf はerrの失敗分類を返す。RequestErrorでない場合は空文字列を返す。
func KindOf(err error) Kind {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
