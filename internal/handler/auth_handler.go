package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/creatorships/dashboard/internal/auth"
	"github.com/creatorships/dashboard/internal/logger"
	"github.com/creatorships/dashboard/internal/middleware"
	"github.com/creatorships/dashboard/internal/model"
	"github.com/go-chi/chi/v5"
)

const (
	oauthStateCookie       = "oauth_state"
	oauthVerifierCookie    = "oauth_verifier"
	recoveryVerifierCookie = "recovery_verifier"
	rememberedEmailCookie  = "remembered_email"
	rememberMeCookie       = "remember_me"
)

const (
	oauthCookieMaxAge    = 10 * time.Minute
	recoveryCookieMaxAge = time.Hour
	rememberCookieMaxAge = 30 * 24 * time.Hour
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, p auth.SignUpParams) (*model.Session, error)
	SignOut(ctx context.Context, session *model.Session)
	OAuthStart(provider, redirectTo string) (authorizeURL, verifier string, err error)
	OAuthComplete(ctx context.Context, code, verifier string) (*model.Session, error)
	ForgotPassword(ctx context.Context, email string) (verifier string, err error)
	RecoveryComplete(ctx context.Context, code, verifier string) (*model.Session, error)
	ResetPassword(ctx context.Context, session *model.Session, password, confirm string) error
}

// SessionCookieWriter はセッションCookieの設定と削除を行う。
// middleware.SessionGateが実装する。
type SessionCookieWriter interface {
	SetSessionCookies(w http.ResponseWriter, session *model.Session)
	ClearSessionCookies(w http.ResponseWriter)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookies SessionCookieWriter
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookies SessionCookieWriter, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
		config:  config,
	}
}

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Company  string `json:"company"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
	Confirm  string `json:"confirm_password"`
}

// sessionResponse はログイン中ユーザーのAPIレスポンス。
type sessionResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type rememberedResponse struct {
	Email      string `json:"email"`
	RememberMe bool   `json:"remember_me"`
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("sign in failed",
			slog.String("email", logger.MaskEmail(req.Email)),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return
	}

	h.cookies.SetSessionCookies(w, session)
	if req.RememberMe {
		h.setCookie(w, rememberedEmailCookie, session.Email, rememberCookieMaxAge)
		h.setCookie(w, rememberMeCookie, "true", rememberCookieMaxAge)
	} else {
		h.clearCookie(w, rememberedEmailCookie)
		h.clearCookie(w, rememberMeCookie)
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// SignUp はアカウントを作成する。
// メール確認が必要な場合は202を返し、セッションCookieは設定しない。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.SignUp(r.Context(), auth.SignUpParams{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Company:  req.Company,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if session == nil {
		writeJSON(w, http.StatusAccepted, map[string]bool{"confirmation_required": true})
		return
	}

	h.cookies.SetSessionCookies(w, session)
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// OAuthLogin は外部IdPの認可フローを開始する。
// GET /auth/oauth/{provider}
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	redirectTo := h.config.BaseURL + "/auth/callback?state=" + url.QueryEscape(state)
	authorizeURL, verifier, err := h.service.OAuthStart(provider, redirectTo)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// stateとcode_verifierをCookieに保存（CSRF対策とPKCE）
	h.setCookie(w, oauthStateCookie, state, oauthCookieMaxAge)
	h.setCookie(w, oauthVerifierCookie, verifier, oauthCookieMaxAge)

	http.Redirect(w, r, authorizeURL, http.StatusTemporaryRedirect)
}

// OAuthCallback は外部IdPからのコールバックを処理する。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		http.Redirect(w, r, middleware.LoginPath+"?error=invalid_state", http.StatusSeeOther)
		return
	}

	verifier := cookieValue(r, oauthVerifierCookie)
	h.clearCookie(w, oauthStateCookie)
	h.clearCookie(w, oauthVerifierCookie)

	session, err := h.service.OAuthComplete(r.Context(), r.URL.Query().Get("code"), verifier)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, middleware.LoginPath+"?error=oauth_failed", http.StatusSeeOther)
		return
	}

	h.cookies.SetSessionCookies(w, session)
	http.Redirect(w, r, middleware.DashboardPath, http.StatusSeeOther)
}

// SignOut はセッションを破棄する。
// 認証サービスの成否に関わらずCookieはクリアする。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if session, ok := middleware.SessionFromContext(r.Context()); ok {
		h.service.SignOut(r.Context(), session)
	}
	h.cookies.ClearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword はパスワード再設定メールを送信する。
// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	verifier, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setCookie(w, recoveryVerifierCookie, verifier, recoveryCookieMaxAge)
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

// RecoveryExchange は再設定リンクの認可コードをセッションに交換するミドルウェア。
// codeクエリがない場合は後続のページを表示する。
// GET /reset-password?code=xxx
func (h *AuthHandler) RecoveryExchange(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			next.ServeHTTP(w, r)
			return
		}

		verifier := cookieValue(r, recoveryVerifierCookie)
		h.clearCookie(w, recoveryVerifierCookie)

		session, err := h.service.RecoveryComplete(r.Context(), code, verifier)
		if err != nil {
			slog.Warn("password recovery exchange failed", slog.String("error", err.Error()))
			http.Redirect(w, r, "/forgot-password?error=recovery_failed", http.StatusSeeOther)
			return
		}

		h.cookies.SetSessionCookies(w, session)
		http.Redirect(w, r, "/reset-password", http.StatusSeeOther)
	})
}

// ResetPassword はログイン中ユーザーのパスワードを変更する。
// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		handleServiceError(w, model.NewNoSessionError())
		return
	}

	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), session, req.Password, req.Confirm); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		handleServiceError(w, model.NewNoSessionError())
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Remembered は「ログイン状態を保持」で保存したメールアドレスを返す。
// GET /auth/remembered
func (h *AuthHandler) Remembered(w http.ResponseWriter, r *http.Request) {
	resp := rememberedResponse{
		RememberMe: cookieValue(r, rememberMeCookie) == "true",
	}
	if resp.RememberMe {
		resp.Email = cookieValue(r, rememberedEmailCookie)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func toSessionResponse(s *model.Session) sessionResponse {
	return sessionResponse{
		UserID:    s.UserID,
		Email:     s.Email,
		ExpiresAt: s.ExpiresAt,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
