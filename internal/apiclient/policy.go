package apiclient

import "strings"

// EndpointPolicy はエンドポイントごとの認証情報の扱いを表す。
type EndpointPolicy struct {
	// NeedsAuth がtrueの場合、保存済みトークンをAuthorizationヘッダーに付与する。
	NeedsAuth bool
	// NeedsCredentials がtrueの場合、クロスオリジンのCookie送受信を行う。
	NeedsCredentials bool
}

// Public はログイン前に呼び出す公開エンドポイントかどうかを返す。
func (p EndpointPolicy) Public() bool {
	return !p.NeedsAuth
}

// Class はメトリクスやログに使うポリシーの分類名を返す。
func (p EndpointPolicy) Class() string {
	switch {
	case !p.NeedsAuth:
		return "public"
	case !p.NeedsCredentials:
		return "auth_only"
	default:
		return "authenticated"
	}
}

var (
	// PolicyPublic はログイン・登録用。バックエンドはワイルドカードのCORSヘッダーを返すため、
	// Authorizationヘッダーもcredentialsも送ってはならない。
	PolicyPublic = EndpointPolicy{NeedsAuth: false, NeedsCredentials: false}
	// PolicyAuthOnly はトークンは付与するがCookieは送らない。
	PolicyAuthOnly = EndpointPolicy{NeedsAuth: true, NeedsCredentials: false}
	// PolicyAuthenticated は通常のAPI呼び出し。トークンとCookieの両方を送る。
	PolicyAuthenticated = EndpointPolicy{NeedsAuth: true, NeedsCredentials: true}
)

// PolicyTable はパスからEndpointPolicyを引く表。
// 表にないパスはすべてfallbackのポリシーになる。
type PolicyTable struct {
	exact    map[string]EndpointPolicy
	fallback EndpointPolicy
}

// NewPolicyTable は空の表を生成する。
func NewPolicyTable(fallback EndpointPolicy) *PolicyTable {
	return &PolicyTable{
		exact:    make(map[string]EndpointPolicy),
		fallback: fallback,
	}
}

// DefaultPolicyTable はバックエンドAPI用の標準の表を返す。
//
//	/auth/login, /auth/register   → 公開（トークンなし・Cookieなし）
//	/auth/cloud-credentials       → トークンのみ（Cookieなし）
//	その他                        → トークンとCookie
func DefaultPolicyTable() *PolicyTable {
	t := NewPolicyTable(PolicyAuthenticated)
	t.Set("/auth/login", PolicyPublic)
	t.Set("/auth/register", PolicyPublic)
	t.Set("/auth/cloud-credentials", PolicyAuthOnly)
	return t
}

// Set はパスにポリシーを設定する。
func (t *PolicyTable) Set(path string, p EndpointPolicy) {
	t.exact[NormalizePath(path)] = p
}

// Lookup はパスに対応するポリシーを返す。
func (t *PolicyTable) Lookup(path string) EndpointPolicy {
	if p, ok := t.exact[NormalizePath(path)]; ok {
		return p
	}
	return t.fallback
}

// NormalizePath はクエリとフラグメントを除去し、先頭スラッシュを補い、末尾スラッシュを取り除く。
func NormalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
