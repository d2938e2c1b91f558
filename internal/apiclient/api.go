package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hitoshi/archbuilder/internal/model"
)

// TokenStore はログイン・ログアウトでトークンを書き換えるための保存先。
type TokenStore interface {
	Write(token string) error
	Clear() error
}

// API はバックエンドの各エンドポイントを型付きで呼び出す。
// 画面やCLIはこのAPIを通してのみバックエンドにアクセスする。
type API struct {
	client *Client
	tokens TokenStore
}

// NewAPI はAPIを生成する。
func NewAPI(client *Client, tokens TokenStore) *API {
	return &API{client: client, tokens: tokens}
}

// Login はメールアドレスとパスワードでログインし、返却されたトークンを保存する。
// POST /auth/login
func (a *API) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	return a.authenticate(ctx, "/auth/login", model.LoginRequest{
		Email:    email,
		Password: password,
	})
}

// Register はアカウントを作成し、返却されたトークンを保存する。
// POST /auth/register
func (a *API) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	return a.authenticate(ctx, "/auth/register", req)
}

func (a *API) authenticate(ctx context.Context, path string, body any) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	if err := a.client.DoJSON(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, &resp); err != nil {
		return nil, err
	}

	token := resp.BearerToken()
	if token == "" {
		// トークンなしの応答（メール確認待ちなど）は保存せずそのまま返す
		return &resp, nil
	}
	if err := a.tokens.Write(token); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	return &resp, nil
}

// Logout は保存済みトークンを削除する。バックエンドは呼び出さない。
func (a *API) Logout() error {
	return a.tokens.Clear()
}

// Me はログイン中のユーザー情報を取得する。
// GET /auth/me
func (a *API) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := a.client.DoJSON(ctx, &Request{Method: http.MethodGet, Path: "/auth/me"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListPipelines は保存済みパイプラインの一覧を取得する。
// GET /pipelines
func (a *API) ListPipelines(ctx context.Context) ([]model.Pipeline, error) {
	var pipelines []model.Pipeline
	if err := a.client.DoJSON(ctx, &Request{Method: http.MethodGet, Path: "/pipelines"}, &pipelines); err != nil {
		return nil, err
	}
	return pipelines, nil
}

// SavePipeline はキャンバスで組み立てたパイプラインを保存する。
// POST /pipelines
func (a *API) SavePipeline(ctx context.Context, p *model.Pipeline) (*model.Pipeline, error) {
	var saved model.Pipeline
	if err := a.client.DoJSON(ctx, &Request{Method: http.MethodPost, Path: "/pipelines", Body: p}, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// ListTemplates はテンプレート一覧を取得する。
// GET /templates
func (a *API) ListTemplates(ctx context.Context) ([]model.Template, error) {
	var templates []model.Template
	if err := a.client.DoJSON(ctx, &Request{Method: http.MethodGet, Path: "/templates"}, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// GetTemplate は指定IDのテンプレートを取得する。
// GET /templates/{id}
func (a *API) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	var tmpl model.Template
	path := "/templates/" + url.PathEscape(id)
	if err := a.client.DoJSON(ctx, &Request{Method: http.MethodGet, Path: path}, &tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// ImportTemplate はテンプレート定義ファイルをmultipartでアップロードする。
// POST /templates
func (a *API) ImportTemplate(ctx context.Context, fileName string, content io.Reader) (*model.Template, error) {
	form := &FormData{}
	form.AddFile("file", fileName, "", content)

	var tmpl model.Template
	if err := a.client.DoJSON(ctx, &Request{Method: http.MethodPost, Path: "/templates", Body: form}, &tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// DeployTemplate はテンプレートのデプロイを要求する。
// POST /templates/deploy
func (a *API) DeployTemplate(ctx context.Context, req model.DeployRequest) (*model.Deployment, error) {
	var d model.Deployment
	if err := a.client.DoJSON(ctx, &Request{Method: http.MethodPost, Path: "/templates/deploy", Body: req}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DestroyTemplate はデプロイ済みテンプレートの破棄を要求する。
// POST /templates/destroy
func (a *API) DestroyTemplate(ctx context.Context, req model.DestroyRequest) (*model.Deployment, error) {
	var d model.Deployment
	if err := a.client.DoJSON(ctx, &Request{Method: http.MethodPost, Path: "/templates/destroy", Body: req}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveCloudCredentials はAWS認証情報を登録する。
// このエンドポイントにはCookieを送らない。
// POST /auth/cloud-credentials
func (a *API) SaveCloudCredentials(ctx context.Context, creds model.CloudCredentials) error {
	_, err := a.client.Do(ctx, &Request{Method: http.MethodPost, Path: "/auth/cloud-credentials", Body: creds})
	return err
}
