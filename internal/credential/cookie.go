package credential

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// NewJar はpublic suffixリストを用いたCookie Jarを生成する。
// リクエストパイプラインとCookieStoreで同じJarを共有する。
func NewJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// CookieStore はバックエンドのオリジンに紐づくCookieとしてトークンを保持する。
// ブラウザのdocument.cookieに相当する。
type CookieStore struct {
	jar    http.CookieJar
	origin *url.URL
}

// NewCookieStore はjar内のoriginに対するCookieを読み書きするCookieStoreを生成する。
func NewCookieStore(jar http.CookieJar, origin *url.URL) *CookieStore {
	return &CookieStore{
		jar:    jar,
		origin: &url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: "/"},
	}
}

// Get は指定名のCookie値を返す。存在しない場合は空文字列を返す。
func (c *CookieStore) Get(name string) string {
	for _, ck := range c.jar.Cookies(c.origin) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// Set は指定名のCookieをパス"/"で設定する。
func (c *CookieStore) Set(name, value string) {
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:     name,
		Value:    value,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}})
}

// Remove は指定名のCookieを失効させる。
func (c *CookieStore) Remove(name string) {
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
}
