// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/creatorships/dashboard/internal/model"
)

// セッションCookie名
const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
)

// 画面遷移先
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey  = contextKey("user_id")
	sessionContextKey = contextKey("session")
)

// Authenticator はトークンを検証し、必要であれば更新してセッションを返す。
// auth.Serviceの部分集合として定義する。
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken, refreshToken string) (*model.Session, bool, error)
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge time.Duration
}

// SessionGate はリクエストのセッションを検証するミドルウェア群。
type SessionGate struct {
	auth    Authenticator
	cookies CookieConfig
}

// NewSessionGate はSessionGateを生成する。
func NewSessionGate(auth Authenticator, cookies CookieConfig) *SessionGate {
	return &SessionGate{auth: auth, cookies: cookies}
}

// RequireAPI は未認証のリクエストに401 NO_SESSIONを返す。
func (g *SessionGate) RequireAPI() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := g.resolve(w, r)
			if session == nil {
				WriteAPIError(w, model.NewNoSessionError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// RequirePage は未認証のリクエストを/loginへリダイレクトする。
func (g *SessionGate) RequirePage() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := g.resolve(w, r)
			if session == nil {
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// PublicOnly は認証済みのリクエストを/dashboardへリダイレクトする。
// ログイン画面と登録画面に使用する。
func (g *SessionGate) PublicOnly() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session := g.resolve(w, r); session != nil {
				http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Optional はセッションがあればコンテキストに注入し、なくても処理を続ける。
func (g *SessionGate) Optional() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session := g.resolve(w, r); session != nil {
				r = r.WithContext(ContextWithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RootRedirect は/へのアクセスを認証状態に応じて振り分けるハンドラを返す。
func (g *SessionGate) RootRedirect() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session := g.resolve(w, r); session != nil {
			http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	})
}

// SetSessionCookies はセッションのトークンをHttpOnly Cookieに設定する。
func (g *SessionGate) SetSessionCookies(w http.ResponseWriter, session *model.Session) {
	maxAge := int(g.cookies.MaxAge.Seconds())
	http.SetCookie(w, g.cookie(AccessTokenCookie, session.AccessToken, maxAge))
	http.SetCookie(w, g.cookie(RefreshTokenCookie, session.RefreshToken, maxAge))
}

// ClearSessionCookies はセッションCookieを削除する。
func (g *SessionGate) ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, g.cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, g.cookie(RefreshTokenCookie, "", -1))
}

func (g *SessionGate) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   g.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   g.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// resolve はリクエストのトークンを検証してセッションを返す。
// トークンが自動更新された場合は新しいトークンをCookieに設定する。
func (g *SessionGate) resolve(w http.ResponseWriter, r *http.Request) *model.Session {
	access := bearerToken(r)
	if access == "" {
		access = cookieValue(r, AccessTokenCookie)
	}
	refresh := cookieValue(r, RefreshTokenCookie)
	if access == "" && refresh == "" {
		return nil
	}

	session, refreshed, err := g.auth.Authenticate(r.Context(), access, refresh)
	if err != nil {
		if !model.HasCode(err, model.ErrCodeNoSession) {
			slog.Warn("session authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		if refresh != "" && !model.HasCode(err, model.ErrCodeTransient) {
			g.ClearSessionCookies(w)
		}
		return nil
	}
	if refreshed {
		g.SetSessionCookies(w, session)
	}
	return session
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*model.Session)
	return s, ok && s != nil
}

// ContextWithSession はコンテキストにセッションとユーザーIDを注入する。
// リクエストログにもユーザーIDを記録する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	noteUserID(ctx, session.UserID)
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return context.WithValue(ctx, userIDContextKey, session.UserID)
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
