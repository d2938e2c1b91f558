package model

import "fmt"

// APIError はプロキシが返す統一エラーフォーマットを表す。
// レスポンスではMessageがdetailフィールドにも出力される。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeUpstreamError      = "UPSTREAM_ERROR"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewBackendUnavailableError はバックエンドに接続できない場合のエラーを生成する。
func NewBackendUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  "backend unavailable",
		Category: "upstream",
		Action:   "Check that the backend API is running and retry.",
	}
}

// NewUpstreamError はバックエンドがJSON以外のレスポンスを返した場合のエラーを生成する。
// textにはHTMLを除去したレスポンス本文を渡す。
func NewUpstreamError(text string, status int) *APIError {
	msg := text
	if msg == "" {
		msg = fmt.Sprintf("backend returned status %d", status)
	}
	return &APIError{
		Code:     ErrCodeUpstreamError,
		Message:  msg,
		Category: "upstream",
		Action:   "Retry later. If the problem persists, contact the administrator.",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: "auth",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal error occurred.",
		Category: "system",
		Action:   "Please wait and retry.",
	}
}
