package model

import "time"

// User は認証プロバイダーが管理するサービス利用ユーザーを表す。
type User struct {
	ID       string
	Email    string
	FullName string
	Company  string
}

// Session は認証プロバイダーが発行したログインセッションを表す。
// ライフサイクルは認証プロバイダーが所有し、本サービスは読み取りと検証のみを行う。
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired は指定時刻の時点でアクセストークンが期限切れかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// AuthEvent は認証状態の変化を表す。
type AuthEvent string

const (
	AuthEventSignedIn         AuthEvent = "SIGNED_IN"
	AuthEventSignedOut        AuthEvent = "SIGNED_OUT"
	AuthEventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	AuthEventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
	AuthEventUserUpdated      AuthEvent = "USER_UPDATED"
)
