package apiclient

import (
	"log/slog"
	"net/http"
	"strings"
)

// Outbound は送信前のリクエストの状態。リクエストステージが順に書き換える。
type Outbound struct {
	Request         *Request
	Policy          EndpointPolicy
	Header          http.Header
	WithCredentials bool
	IsForm          bool
}

// RequestStage はリクエストを送信前に変換する処理。
type RequestStage func(o *Outbound) error

// Inbound は受信したレスポンスの状態。レスポンスステージが順に処理し、
// ResponseかErrのどちらかを設定する。
type Inbound struct {
	Method string
	Path   string
	Policy EndpointPolicy
	Status int
	Header http.Header
	Body   []byte

	Response *Response
	Err      error
}

// ResponseStage はレスポンスを受信後に処理する。
type ResponseStage func(in *Inbound)

// TokenReader は保存済みトークンを読み取る。
type TokenReader interface {
	Read() string
}

// TokenClearer は保存済みトークンを削除する。
type TokenClearer interface {
	Clear() error
}

const bearerPrefix = "Bearer "

// BearerValue はトークンをAuthorizationヘッダーの値に変換する。
// 保存値が既に"Bearer "で始まる場合は接頭辞を重ねない。
func BearerValue(token string) string {
	if len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		return token
	}
	return bearerPrefix + token
}

// AttachAuth は認証が必要なエンドポイントに保存済みトークンを付与するステージを返す。
// 公開エンドポイントでは、呼び出し側が指定したものも含めAuthorizationヘッダーを取り除く。
func AttachAuth(tokens TokenReader) RequestStage {
	return func(o *Outbound) error {
		if o.Policy.Public() {
			o.Header.Del("Authorization")
			return nil
		}
		if tokens == nil {
			return nil
		}
		if token := tokens.Read(); token != "" {
			o.Header.Set("Authorization", BearerValue(token))
		}
		return nil
	}
}

// SetCredentialsFlag はCookie送受信の可否を決める。
// ポリシーが許可する場合のみ有効にし、呼び出し単位の上書きは無効化方向にのみ働く。
func SetCredentialsFlag(o *Outbound) error {
	o.WithCredentials = o.Policy.NeedsCredentials
	if o.WithCredentials && o.Request.WithCredentials != nil {
		o.WithCredentials = *o.Request.WithCredentials
	}
	return nil
}

// StripFormContentType はmultipartボディの場合に明示的なContent-Typeを取り除く。
// 境界値を含むContent-Typeはエンコード時に設定される。
func StripFormContentType(o *Outbound) error {
	if o.IsForm {
		o.Header.Del("Content-Type")
	}
	return nil
}

// DecodeOrError は2xxならResponseを、それ以外ならバックエンドエラーを設定する。
func DecodeOrError(in *Inbound) {
	if in.Status >= 200 && in.Status < 300 {
		in.Response = &Response{
			Status: in.Status,
			Header: in.Header,
			Body:   in.Body,
		}
		return
	}
	in.Err = &RequestError{
		Kind:    KindBackend,
		Method:  in.Method,
		Path:    in.Path,
		Status:  in.Status,
		Message: ResolveMessage(in.Method, in.Status, in.Body),
		Body:    in.Body,
	}
}

// InvalidateOn401 はステータス401を受け取った場合に保存済みトークンを削除するステージを返す。
// どの呼び出しで401を受け取ったかに関係なく、プロセス全体のトークンが削除される。
func InvalidateOn401(tokens TokenClearer, onInvalidate func(), logger *slog.Logger) ResponseStage {
	return func(in *Inbound) {
		if in.Status != http.StatusUnauthorized || tokens == nil {
			return
		}
		if err := tokens.Clear(); err != nil {
			logger.Error("failed to clear credential after 401",
				slog.String("method", in.Method),
				slog.String("path", in.Path),
				slog.String("error", err.Error()),
			)
			return
		}
		if onInvalidate != nil {
			onInvalidate()
		}
		logger.Info("credential cleared after 401",
			slog.String("method", in.Method),
			slog.String("path", in.Path),
		)
	}
}
