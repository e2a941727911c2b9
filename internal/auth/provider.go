package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxProviderBodySize は認証プロバイダー応答の読み取り上限。
const maxProviderBodySize = 1 << 20

// ProviderUser は認証プロバイダーが返すユーザー情報。
type ProviderUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

// TokenResponse はトークンエンドポイントの応答。
// メール確認が必要なサインアップではAccessTokenが空になる。
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         ProviderUser `json:"user"`
}

// ProviderError は認証プロバイダーがエラーステータスを返したことを表す。
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("auth provider returned %d: %s %s", e.Status, e.Code, e.Message)
}

// EmailNotConfirmed はメールアドレス未確認による失敗かを返す。
func (e *ProviderError) EmailNotConfirmed() bool {
	return e.Code == "email_not_confirmed" || strings.EqualFold(e.Message, "Email not confirmed")
}

// SignUpParams はサインアップの入力。
type SignUpParams struct {
	Email      string
	Password   string
	FullName   string
	Company    string
	RedirectTo string
}

// ProviderConfig は認証プロバイダークライアントの設定。
type ProviderConfig struct {
	BaseURL string // 例: https://xyz.supabase.co/auth/v1
	AnonKey string
}

// ProviderClient はGoTrue互換の認証プロバイダーREST APIクライアント。
// セッションのライフサイクルはプロバイダーが所有する。
type ProviderClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	anonKey    string
}

// NewProviderClient はProviderClientを生成する。
func NewProviderClient(httpClient *http.Client, logger *slog.Logger, config ProviderConfig) *ProviderClient {
	return &ProviderClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		anonKey:    config.AnonKey,
	}
}

// SignInWithPassword はメールアドレスとパスワードでトークンを取得する。
func (c *ProviderClient) SignInWithPassword(ctx context.Context, email, password string) (*TokenResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var tok TokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// SignUp はアカウントを作成する。
func (c *ProviderClient) SignUp(ctx context.Context, p SignUpParams) (*TokenResponse, error) {
	body := map[string]any{
		"email":    p.Email,
		"password": p.Password,
		"data": map[string]string{
			"full_name": p.FullName,
			"company":   p.Company,
		},
	}
	path := "/signup"
	if p.RedirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(p.RedirectTo)
	}

	// 確認メールが必要な場合はトークンを含まずユーザーのみが返る
	raw := json.RawMessage{}
	if err := c.do(ctx, http.MethodPost, path, "", body, &raw); err != nil {
		return nil, err
	}
	var tok TokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("サインアップ応答のパースに失敗しました: %w", err)
	}
	if tok.AccessToken == "" && tok.User.ID == "" {
		var user ProviderUser
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, fmt.Errorf("サインアップ応答のパースに失敗しました: %w", err)
		}
		tok.User = user
	}
	return &tok, nil
}

// Refresh はリフレッシュトークンで新しいトークンを取得する。
func (c *ProviderClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var tok TokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// ExchangeCode はPKCEフローの認可コードをトークンに交換する。
func (c *ProviderClient) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	var tok TokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", body, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// SignOut はアクセストークンに紐づくセッションを無効化する。
func (c *ProviderClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// Recover はパスワード再設定メールを送信する。
// codeChallengeが指定された場合、リンクはPKCEの認可コードを返す。
func (c *ProviderClient) Recover(ctx context.Context, email, redirectTo, codeChallenge string) error {
	body := map[string]string{"email": email}
	if codeChallenge != "" {
		body["code_challenge"] = codeChallenge
		body["code_challenge_method"] = "s256"
	}
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", body, nil)
}

// UpdatePassword はログイン中ユーザーのパスワードを変更する。
func (c *ProviderClient) UpdatePassword(ctx context.Context, accessToken, password string) error {
	body := map[string]string{"password": password}
	return c.do(ctx, http.MethodPut, "/user", accessToken, body, nil)
}

// AuthorizeURL は外部IdP（google, facebook）へのPKCE認可URLを生成する。
func (c *ProviderClient) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	params := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"s256"},
	}
	return c.baseURL + "/authorize?" + params.Encode()
}

// do はリクエストを送信し、2xxの場合はoutにJSONをデコードする。
// 通信失敗はそのまま返し、エラーステータスは*ProviderErrorとして返す。
func (c *ProviderClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Info", "creatorships-dashboard")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("認証プロバイダーの呼び出しに失敗しました",
			slog.String("path", strings.SplitN(path, "?", 2)[0]),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("認証プロバイダーの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBodySize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := parseProviderError(resp.StatusCode, body)
		c.logger.Warn("認証プロバイダーがエラーステータスを返しました",
			slog.String("path", strings.SplitN(path, "?", 2)[0]),
			slog.Int("http_status", resp.StatusCode),
			slog.String("code", perr.Code),
		)
		return perr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// parseProviderError はGoTrueの2種類のエラー形式を読み取る。
//
//	{"error": "invalid_grant", "error_description": "Invalid login credentials"}
//	{"code": 400, "error_code": "email_not_confirmed", "msg": "Email not confirmed"}
func parseProviderError(status int, body []byte) *ProviderError {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
	}
	_ = json.Unmarshal(body, &payload)

	perr := &ProviderError{Status: status}
	switch {
	case payload.ErrorCode != "":
		perr.Code = payload.ErrorCode
	default:
		perr.Code = payload.Error
	}
	switch {
	case payload.Msg != "":
		perr.Message = payload.Msg
	default:
		perr.Message = payload.ErrorDescription
	}
	return perr
}
