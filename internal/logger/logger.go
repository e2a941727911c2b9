package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel はLOG_LEVELの文字列をslog.Levelに変換する。
// 未知の値はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactedKeys はログ出力時に値を伏せる属性キー。
var redactedKeys = map[string]bool{
	"email":         true,
	"access_token":  true,
	"refresh_token": true,
	"password":      true,
}

// redact はメールアドレスのローカル部とトークン類を伏せる。
func redact(_ []string, a slog.Attr) slog.Attr {
	if !redactedKeys[a.Key] || a.Value.Kind() != slog.KindString {
		return a
	}
	if a.Key == "email" {
		return slog.String(a.Key, MaskEmail(a.Value.String()))
	}
	return slog.String(a.Key, "***")
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// email・トークン・パスワードの属性は出力時に伏せる。
func Setup(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer, level string) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, level))
}

// MaskEmail はログ出力用にメールアドレスのローカル部を伏せる。
// メールアドレスはログにそのまま残さない。
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
