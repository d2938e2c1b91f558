// Package model はバックエンドAPIとやり取りするドメインモデルを定義する。
package model

import "time"

// User はログイン中のユーザーを表す。GET /auth/me のレスポンス。
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// LoginRequest は POST /auth/login のリクエストボディ。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest は POST /auth/register のリクエストボディ。
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// AuthResponse はログイン・サインアップ成功時のレスポンス。
// バックエンドによってはtokenフィールド名が異なるため両方を受け付ける。
type AuthResponse struct {
	AccessToken string `json:"access_token,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	User        *User  `json:"user,omitempty"`
}

// BearerToken はレスポンスに含まれるトークンを返す。access_tokenを優先する。
func (r *AuthResponse) BearerToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// CloudCredentials は POST /auth/cloud-credentials で登録するAWS認証情報。
type CloudCredentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region,omitempty"`
}
