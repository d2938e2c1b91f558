// Package credential はバックエンドAPIの認証に使うBearerトークンの保持を提供する。
//
// トークンは永続ローカルストアとCookieの2箇所に冗長に保存される。
// 読み取り時はローカルストアの値が空でなければそれを優先し、
// そうでなければCookieの値を使う。
package credential

import (
	"fmt"
	"log/slog"
	"sync"
)

// TokenKey はローカルストアのキー名であり、Cookie名でもある。
const TokenKey = "token"

// Store はトークンの読み取り・書き込み・削除を一箇所にまとめる。
// 複数のgoroutineから同時に使用できる。
type Store struct {
	mu      sync.Mutex
	local   LocalStore
	cookies *CookieStore
	logger  *slog.Logger
}

// NewStore はStoreを生成する。localまたはcookiesがnilの場合、その保存先は使わない。
func NewStore(local LocalStore, cookies *CookieStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		local:   local,
		cookies: cookies,
		logger:  logger,
	}
}

// Read は有効なトークンを返す。どちらにも無ければ空文字列を返す。
// ローカルストアの読み取りに失敗した場合はログに記録してCookieにフォールバックする。
func (s *Store) Read() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.local != nil {
		token, err := s.local.Get(TokenKey)
		if err != nil {
			s.logger.Warn("failed to read token from local store",
				slog.String("error", err.Error()),
			)
		} else if token != "" {
			return token
		}
	}

	if s.cookies != nil {
		return s.cookies.Get(TokenKey)
	}
	return ""
}

// Write はトークンを両方の保存先に書き込む。
func (s *Store) Write(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cookies != nil {
		s.cookies.Set(TokenKey, token)
	}
	if s.local != nil {
		if err := s.local.Set(TokenKey, token); err != nil {
			return fmt.Errorf("failed to write token: %w", err)
		}
	}
	return nil
}

// Clear はトークンを両方の保存先から削除する。
// ローカルストアの削除に失敗してもCookieは削除する。
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cookies != nil {
		s.cookies.Remove(TokenKey)
	}
	if s.local != nil {
		if err := s.local.Remove(TokenKey); err != nil {
			return fmt.Errorf("failed to clear token: %w", err)
		}
	}
	return nil
}
