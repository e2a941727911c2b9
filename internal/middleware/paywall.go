package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/creatorships/dashboard/internal/metrics"
	"github.com/creatorships/dashboard/internal/paywall"
)

// PageGate はページ閲覧数の判定を行う。paywall.Counterの部分集合。
type PageGate interface {
	Enter(ctx context.Context, userID string) (paywall.Decision, error)
}

// NewPaywallMiddleware は未購読の利用者が無料枠を使い切った場合に
// 購読ページへリダイレクトするミドルウェアを返す。
// 閲覧数の記録に失敗した場合は表示を妨げない。
// セッションミドルウェアの後に配置する。
func NewPaywallMiddleware(gate PageGate, mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}

			d, err := gate.Enter(r.Context(), userID)
			if err != nil {
				slog.Error("paywall check failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				mc.RecordPaywallRedirect()
				slog.Info("paywall redirect",
					slog.String("user_id", userID),
					slog.Int("pages_viewed", d.PagesViewed),
				)
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
