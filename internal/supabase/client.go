// Package supabase はSupabase Auth (GoTrue) REST APIのクライアントを提供する。
// サーバー側のアカウント作成・トークン検証と、CLIクライアント側のログイン・リフレッシュ・ログアウトで共用する。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseSize はレスポンスボディの最大読み取りサイズ。
const maxResponseSize = 1 << 20

// Config はクライアントの接続設定。
type Config struct {
	URL            string // プロジェクトURL（例: https://xyz.supabase.co）
	AnonKey        string
	ServiceRoleKey string // サーバー側のみ。アカウント作成に必要
}

// User は認証プロバイダーのユーザーを表す。
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// MetadataString はuser_metadataの文字列値を返す。存在しない場合は空文字を返す。
func (u *User) MetadataString(key string) string {
	if u.UserMetadata == nil {
		return ""
	}
	s, _ := u.UserMetadata[key].(string)
	return s
}

// Session はパスワードログインまたはリフレッシュで発行されたトークンを表す。
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// CreateUserParams は管理APIでのアカウント作成パラメータ。
type CreateUserParams struct {
	Email    string
	Password string
	Metadata map[string]any
}

// Error は認証プロバイダーが返したエラーレスポンスを表す。
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase auth error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase auth error %d: %s", e.Status, e.Message)
}

// IsAuthError はトークン不正・期限切れなど認証失敗を表すエラーかを返す。
func IsAuthError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// IsClientError は4xx応答のエラーかを返す。
func IsClientError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status >= 400 && e.Status < 500
}

// Client はGoTrue REST APIのクライアント。
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	endpoint       string // <URL>/auth/v1。テスト用に差し替え可能
	anonKey        string
	serviceRoleKey string
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	return &Client{
		httpClient:     httpClient,
		logger:         logger,
		endpoint:       strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey:        cfg.AnonKey,
		serviceRoleKey: cfg.ServiceRoleKey,
	}
}

// HasServiceRole はアカウント作成に必要なサービスロールキーを持つかを返す。
func (c *Client) HasServiceRole() bool {
	return c.serviceRoleKey != ""
}

// AdminCreateUser はメール確認済みのアカウントを作成する。
func (c *Client) AdminCreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	if c.serviceRoleKey == "" {
		return nil, fmt.Errorf("service role key is not configured")
	}

	body := map[string]any{
		"email":         params.Email,
		"password":      params.Password,
		"email_confirm": true,
		"user_metadata": params.Metadata,
	}

	var user User
	if err := c.do(ctx, http.MethodPost, "/admin/users", c.serviceRoleKey, c.serviceRoleKey, body, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("user creation returned no id")
	}
	return &user, nil
}

// GetUser はアクセストークンの持ち主を取得する。トークンが無効な場合は401の*Errorを返す。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/user", c.anonKey, accessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, &Error{Status: http.StatusUnauthorized, Code: "no_user", Message: "Invalid token"}
	}
	return &user, nil
}

// SignInWithPassword はメールアドレスとパスワードでログインする。
// メールアドレスは前後の空白を除去し小文字化してから送信する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{
		"email":    strings.ToLower(strings.TrimSpace(email)),
		"password": password,
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", c.anonKey, "", body, &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("sign in returned no session")
	}
	return &session, nil
}

// RefreshSession はリフレッシュトークンで新しいセッションを取得する。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", c.anonKey, "", body, &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("refresh returned no session")
	}
	return &session, nil
}

// SignOut はアクセストークンに紐づくセッションを失効させる。
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", c.anonKey, accessToken, nil, nil)
}

// do はリクエストを送信し、2xxの場合はoutにJSONをデコードする。
// 2xx以外はレスポンスボディから*Errorを組み立てて返す。
func (c *Client) do(ctx context.Context, method, path, apiKey, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	reqURL, err := url.Parse(c.endpoint + path)
	if err != nil {
		return fmt.Errorf("failed to parse endpoint url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("auth provider request failed",
			slog.String("method", method),
			slog.String("path", reqURL.Path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("auth provider request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read auth provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseError(resp.StatusCode, data)
		c.logger.Warn("auth provider returned error",
			slog.String("method", method),
			slog.String("path", reqURL.Path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("error_code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode auth provider response: %w", err)
	}
	return nil
}

// errorBody はGoTrueのエラーレスポンス。バージョンによりフィールド名が異なる。
type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func parseError(status int, data []byte) *Error {
	e := &Error{Status: status}

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		e.Message = strings.TrimSpace(string(data))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	e.Code = firstNonEmpty(body.ErrorCode, body.Error)
	e.Message = firstNonEmpty(body.Msg, body.ErrorDescription, body.Message, body.Error, http.StatusText(status))
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
