// Package auth は外部認証プロバイダーとのサインイン・サインアウト、
// アクセストークンの検証と自動更新、認証状態の変化通知を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/creatorships/dashboard/internal/model"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// Provider は外部認証プロバイダーのインターフェース。
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*TokenResponse, error)
	SignUp(ctx context.Context, p SignUpParams) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error)
	SignOut(ctx context.Context, accessToken string) error
	Recover(ctx context.Context, email, redirectTo, codeChallenge string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
}

// OAuthProviders はサポートする外部IdP。
var OAuthProviders = map[string]bool{
	"google":   true,
	"facebook": true,
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BaseURL string // SPAの公開オリジン。リダイレクト先の組み立てに使用する
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider Provider
	verifier *Verifier
	events   *Events
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(provider Provider, verifier *Verifier, events *Events, config ServiceConfig) *Service {
	return &Service{
		provider: provider,
		verifier: verifier,
		events:   events,
		config:   config,
		now:      time.Now,
	}
}

// Events は認証状態の変化通知を返す。
func (s *Service) Events() *Events {
	return s.events
}

// SignIn はメールアドレスとパスワードでサインインする。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, model.NewValidationError("パスワードは必須です")
	}

	tok, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, mapProviderError(err, model.NewInvalidCredentialsError())
	}

	session := s.sessionFromToken(tok)
	s.publish(model.AuthEventSignedIn, session.UserID)
	slog.Info("user signed in", slog.String("user_id", session.UserID))
	return session, nil
}

// SignUp はアカウントを作成する。メール確認が必要な場合はnilセッションを返す。
func (s *Service) SignUp(ctx context.Context, p SignUpParams) (*model.Session, error) {
	p.Email = strings.TrimSpace(p.Email)
	if err := validateEmail(p.Email); err != nil {
		return nil, err
	}
	if len(p.Password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください", MinPasswordLength))
	}
	if p.RedirectTo == "" {
		p.RedirectTo = s.config.BaseURL + "/login"
	}

	tok, err := s.provider.SignUp(ctx, p)
	if err != nil {
		return nil, mapProviderError(err, model.NewValidationError("アカウントを作成できませんでした"))
	}
	if tok.AccessToken == "" {
		slog.Info("user signed up, awaiting email confirmation", slog.String("user_id", tok.User.ID))
		return nil, nil
	}

	session := s.sessionFromToken(tok)
	s.publish(model.AuthEventSignedIn, session.UserID)
	return session, nil
}

// Authenticate はアクセストークンを検証してセッションを返す。
// アクセストークンが期限切れまたは未指定で、リフレッシュトークンがある場合は自動更新する。
// refreshedがtrueの場合、呼び出し元は新しいトークンをクライアントに返す必要がある。
func (s *Service) Authenticate(ctx context.Context, accessToken, refreshToken string) (session *model.Session, refreshed bool, err error) {
	if accessToken != "" {
		claims, verr := s.verifier.Verify(accessToken)
		if verr == nil {
			return &model.Session{
				UserID:       claims.Subject,
				Email:        claims.Email,
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
				ExpiresAt:    claims.ExpiresAt.Time,
			}, false, nil
		}
		if !errors.Is(verr, ErrTokenExpired) {
			slog.Debug("access token rejected", slog.String("error", verr.Error()))
		}
	}

	if refreshToken == "" {
		return nil, false, model.NewNoSessionError()
	}

	session, err = s.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// Refresh はリフレッシュトークンでセッションを更新する。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	tok, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, mapProviderError(err, model.NewNoSessionError())
	}

	session := s.sessionFromToken(tok)
	s.publish(model.AuthEventTokenRefreshed, session.UserID)
	return session, nil
}

// SignOut はセッションを破棄する。
// プロバイダー側の失敗はログに残し、ローカルのサインアウトは常に完了させる。
func (s *Service) SignOut(ctx context.Context, session *model.Session) {
	if session == nil {
		return
	}
	if session.AccessToken != "" {
		if err := s.provider.SignOut(ctx, session.AccessToken); err != nil {
			slog.Warn("provider sign out failed",
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.publish(model.AuthEventSignedOut, session.UserID)
	slog.Info("user signed out", slog.String("user_id", session.UserID))
}

// OAuthStart は外部IdPへの認可URLとPKCEのcode_verifierを返す。
func (s *Service) OAuthStart(providerName, redirectTo string) (authorizeURL, verifier string, err error) {
	if !OAuthProviders[providerName] {
		return "", "", model.NewValidationError(fmt.Sprintf("未対応のプロバイダーです: %s", providerName))
	}
	verifier, err = GenerateCodeVerifier()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return s.provider.AuthorizeURL(providerName, redirectTo, CodeChallenge(verifier)), verifier, nil
}

// OAuthComplete は認可コードをセッションに交換する。
func (s *Service) OAuthComplete(ctx context.Context, code, verifier string) (*model.Session, error) {
	if code == "" || verifier == "" {
		return nil, model.NewValidationError("認可コードが不正です")
	}
	tok, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, mapProviderError(err, model.NewNoSessionError())
	}

	session := s.sessionFromToken(tok)
	s.publish(model.AuthEventSignedIn, session.UserID)
	return session, nil
}

// ForgotPassword はパスワード再設定メールを送信し、PKCEのcode_verifierを返す。
// 再設定リンクは/reset-passwordにリダイレクトされる。
func (s *Service) ForgotPassword(ctx context.Context, email string) (verifier string, err error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	verifier, err = GenerateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}

	redirectTo := s.config.BaseURL + "/reset-password"
	if err := s.provider.Recover(ctx, email, redirectTo, CodeChallenge(verifier)); err != nil {
		return "", mapProviderError(err, model.NewValidationError("再設定メールを送信できませんでした"))
	}
	return verifier, nil
}

// RecoveryComplete は再設定リンクの認可コードをセッションに交換する。
func (s *Service) RecoveryComplete(ctx context.Context, code, verifier string) (*model.Session, error) {
	if code == "" || verifier == "" {
		return nil, model.NewValidationError("再設定リンクが不正です")
	}
	tok, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, mapProviderError(err, model.NewNoSessionError())
	}

	session := s.sessionFromToken(tok)
	s.publish(model.AuthEventPasswordRecovery, session.UserID)
	return session, nil
}

// ResetPassword はログイン中ユーザーのパスワードを変更する。
func (s *Service) ResetPassword(ctx context.Context, session *model.Session, password, confirm string) error {
	if session == nil || session.AccessToken == "" {
		return model.NewNoSessionError()
	}
	if len(password) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください", MinPasswordLength))
	}
	if password != confirm {
		return model.NewValidationError("パスワードが一致しません")
	}

	if err := s.provider.UpdatePassword(ctx, session.AccessToken, password); err != nil {
		return mapProviderError(err, model.NewValidationError("パスワードを変更できませんでした"))
	}
	s.publish(model.AuthEventUserUpdated, session.UserID)
	return nil
}

func (s *Service) sessionFromToken(tok *TokenResponse) *model.Session {
	expiresAt := s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if tok.ExpiresAt > 0 {
		expiresAt = time.Unix(tok.ExpiresAt, 0)
	}
	return &model.Session{
		UserID:       tok.User.ID,
		Email:        tok.User.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

func (s *Service) publish(t model.AuthEvent, userID string) {
	if s.events == nil {
		return
	}
	s.events.Publish(Event{Type: t, UserID: userID, At: s.now()})
}

func validateEmail(email string) error {
	if email == "" {
		return model.NewValidationError("メールアドレスは必須です")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	return nil
}

// mapProviderError はプロバイダーのエラーをAPIErrorに変換する。
// 4xxはrejectedとして返し、通信失敗と5xxは一時的なエラーとして扱う。
func mapProviderError(err error, rejected *model.APIError) error {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return model.NewTransientError("認証サービスに接続できません")
	}
	if perr.EmailNotConfirmed() {
		return model.NewEmailNotConfirmedError()
	}
	if perr.Status >= 500 || perr.Status == 429 {
		return model.NewTransientError("認証サービスが応答しません")
	}
	return rejected
}
