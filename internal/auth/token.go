package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired はアクセストークンの有効期限切れを表す。
// リフレッシュトークンがあれば自動更新の対象になる。
var ErrTokenExpired = errors.New("access token expired")

// Claims は認証プロバイダーが発行するアクセストークンのクレーム。
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Verifier はHS256で署名されたアクセストークンを検証する。
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier はVerifierを生成する。nowがnilの場合はtime.Nowを使用する。
func NewVerifier(secret []byte, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: secret, now: now}
}

// Verify はトークンの署名・有効期限・subを検証してクレームを返す。
// 期限切れの場合はErrTokenExpiredを返す。
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("access token is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid access token")
	}
	if claims.Subject == "" {
		return nil, errors.New("access token has no subject")
	}

	return claims, nil
}

// Sign はクレームに署名したトークンを返す。
// 本番のトークンは認証プロバイダーが発行するため、テストとローカル検証で使用する。
func (v *Verifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Role:  "authenticated",
	})
	return token.SignedString(v.secret)
}
